// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"fmt"
	"io"
)

// Stored is the identity codec.
type Stored struct{}

// Name implements Codec.
func (Stored) Name() string { return "stored" }

// Kind implements Codec.
func (Stored) Kind() CodecKind { return CodecTransform }

// NewReader implements Codec.
func (Stored) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	return src, nil
}

// Encode implements Encoder.
func (Stored) Encode(src []byte) ([]byte, error) {
	return bytes.Clone(src), nil
}

// XORByte XORs every byte with one fixed key byte.
type XORByte struct {
	Key byte
}

// Name implements Codec.
func (XORByte) Name() string { return "xor8" }

// Kind implements Codec.
func (XORByte) Kind() CodecKind { return CodecTransform }

// NewReader implements Codec.
func (c XORByte) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	return &xorReader{r: src, key: []byte{c.Key}}, nil
}

// Encode implements Encoder.
func (c XORByte) Encode(src []byte) ([]byte, error) {
	out := bytes.Clone(src)
	xorBytes(out, []byte{c.Key}, 0)

	return out, nil
}

// XORKey XORs with a repeating key.
// The byte at stream position P uses Key[(Phase+Origin+P) mod len(Key)].
// Origin is the absolute position of the first stream byte where a format
// keys by container offset; Phase is a per-entry key shift.
type XORKey struct {
	Key    []byte
	Phase  int64
	Origin int64
}

// Name implements Codec.
func (XORKey) Name() string { return "xor" }

// Kind implements Codec.
func (XORKey) Kind() CodecKind { return CodecTransform }

// NewReader implements Codec.
func (c XORKey) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	if len(c.Key) == 0 {
		return nil, fmt.Errorf("%w: empty xor key", ErrCodecUnsupported)
	}

	return &xorReader{r: src, key: c.Key, pos: c.start()}, nil
}

// Encode implements Encoder.
func (c XORKey) Encode(src []byte) ([]byte, error) {
	if len(c.Key) == 0 {
		return nil, fmt.Errorf("%w: empty xor key", ErrCodecUnsupported)
	}

	out := bytes.Clone(src)
	xorBytes(out, c.Key, c.start())

	return out, nil
}

// start returns the key index of the first stream byte.
func (c XORKey) start() int64 {
	l := int64(len(c.Key))
	return ((c.Phase+c.Origin)%l + l) % l
}

// xorReader applies a repeating key to a stream.
type xorReader struct {
	r   io.Reader
	key []byte
	pos int64
}

// Read implements io.Reader.
func (x *xorReader) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	if n > 0 {
		x.pos = xorBytes(p[:n], x.key, x.pos)
	}

	return n, err
}

// xorBytes XORs buf in place starting at key index pos and returns the next index.
func xorBytes(buf, key []byte, pos int64) int64 {
	l := int64(len(key))
	idx := pos % l
	for i := range buf {
		buf[i] ^= key[idx]
		idx++
		if idx == l {
			idx = 0
		}
	}

	return idx
}
