// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/crypto/blowfish"
)

// Blowfish decrypts in ECB mode. A trailing partial block is passed through unchanged.
type Blowfish struct {
	Key []byte
}

// Name implements Codec.
func (Blowfish) Name() string { return "blowfish" }

// Kind implements Codec.
func (Blowfish) Kind() CodecKind { return CodecTransform }

// NewReader implements Codec.
func (c Blowfish) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	cipher, err := c.cipher()
	if err != nil {
		return nil, err
	}

	return &blowfishReader{r: src, cipher: cipher}, nil
}

// Encode implements Encoder.
func (c Blowfish) Encode(src []byte) ([]byte, error) {
	cipher, err := c.cipher()
	if err != nil {
		return nil, err
	}

	out := bytes.Clone(src)
	full := len(out) - len(out)%blowfish.BlockSize
	for i := 0; i < full; i += blowfish.BlockSize {
		cipher.Encrypt(out[i:i+blowfish.BlockSize], out[i:i+blowfish.BlockSize])
	}

	return out, nil
}

// cipher builds the block cipher, mapping key errors to ErrCodecUnsupported.
func (c Blowfish) cipher() (*blowfish.Cipher, error) {
	cipher, err := blowfish.NewCipher(c.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: blowfish key: %w", ErrCodecUnsupported, err)
	}

	return cipher, nil
}

// blowfishReader decrypts whole blocks and keeps at most one pending block.
type blowfishReader struct {
	r      io.Reader
	cipher *blowfish.Cipher
	err    error
	out    []byte
	block  [blowfish.BlockSize]byte
	filled int
}

// Read implements io.Reader.
func (b *blowfishReader) Read(p []byte) (int, error) {
	for len(b.out) == 0 {
		if b.err != nil {
			return 0, b.err
		}

		n, err := io.ReadFull(b.r, b.block[b.filled:])
		b.filled += n
		switch {
		case err == nil:
			b.cipher.Decrypt(b.block[:], b.block[:])
			b.out = b.block[:]
			b.filled = 0
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			// trailing partial block stays as stored
			b.out = b.block[:b.filled]
			b.filled = 0
			b.err = io.EOF
		default:
			b.err = err
		}
	}

	n := copy(p, b.out)
	b.out = b.out[n:]

	return n, nil
}
