// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdMaxWindow caps decoder memory for hostile frame headers.
const zstdMaxWindow = 64 << 20

// Zstd decodes Zstandard frames.
type Zstd struct{}

// Name implements Codec.
func (Zstd) Name() string { return "zstd" }

// Kind implements Codec.
func (Zstd) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (Zstd) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	dec, err := zstd.NewReader(src,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxWindow(zstdMaxWindow),
	)
	if err != nil {
		return nil, err
	}

	return dec.IOReadCloser(), nil
}

// NewBoundedReader implements BoundedCodec; frames carry their own end marker.
func (c Zstd) NewBoundedReader(src io.Reader, stored, limit int64) (io.Reader, error) {
	return c.NewReader(src, stored, limit)
}

// Encode implements Encoder.
func (Zstd) Encode(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, err
	}
	defer func() { _ = enc.Close() }()

	return enc.EncodeAll(src, nil), nil
}
