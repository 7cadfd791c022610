// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/pierrec/lz4/v4"
)

// LZ4Block decodes one raw LZ4 block (no frame header).
// Blocks carry no length, so the whole stored range is read before decoding.
type LZ4Block struct{}

// lz4MaxRatio is the largest expansion a single LZ4 block can encode.
const lz4MaxRatio = 255

// Name implements Codec.
func (LZ4Block) Name() string { return "lz4" }

// Kind implements Codec.
func (LZ4Block) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (c LZ4Block) NewReader(src io.Reader, stored, hint int64) (io.Reader, error) {
	return c.decode(src, stored, hint, false)
}

// NewBoundedReader implements BoundedCodec.
func (c LZ4Block) NewBoundedReader(src io.Reader, stored, limit int64) (io.Reader, error) {
	return c.decode(src, stored, limit, true)
}

// decode reads stored bytes and decompresses into a buffer of capacity bytes.
// Capacity never exceeds what stored bytes can expand to; an exact size
// above that is corrupt, a bound above it is clamped.
func (LZ4Block) decode(src io.Reader, stored, capacity int64, bounded bool) (io.Reader, error) {
	if stored < 0 || capacity < 0 {
		return nil, fmt.Errorf("%w: negative lz4 size", ErrCodecCorrupt)
	}

	packed := make([]byte, stored)
	if _, err := io.ReadFull(src, packed); err != nil {
		return nil, fmt.Errorf("%w: read lz4 block: %w", ErrCodecTruncated, err)
	}
	if stored == 0 {
		return bytes.NewReader(nil), nil
	}

	if maxOut := lz4MaxOutput(stored); capacity > maxOut {
		if !bounded {
			return nil, fmt.Errorf("%w: lz4 size %d exceeds %d for %d stored bytes", ErrCodecCorrupt, capacity, maxOut, stored)
		}

		capacity = maxOut
	}

	out := make([]byte, capacity)
	n, err := lz4.UncompressBlock(packed, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecCorrupt, err)
	}

	return bytes.NewReader(out[:n]), nil
}

// lz4MaxOutput returns the largest decoded size of a stored-byte block.
func lz4MaxOutput(stored int64) int64 {
	if stored > (math.MaxInt64-16)/lz4MaxRatio {
		return math.MaxInt64
	}

	return stored*lz4MaxRatio + 16
}

// Encode implements Encoder. Empty input encodes to an empty block.
func (LZ4Block) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}

	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible input
		return lz4LiteralBlock(src), nil
	}

	return dst[:n], nil
}

// lz4LiteralBlock encodes src as a single literal-only sequence.
func lz4LiteralBlock(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/255+2)
	n := len(src)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xf0)
		for rest := n - 15; ; rest -= 255 {
			if rest < 255 {
				out = append(out, byte(rest))
				break
			}
			out = append(out, 255)
		}
	}

	return append(out, src...)
}
