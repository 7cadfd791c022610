// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Inflate decodes raw deflate streams (no zlib header).
type Inflate struct {
	// Level is used by Encode; zero selects the default level.
	Level int
}

// Name implements Codec.
func (Inflate) Name() string { return "deflate" }

// Kind implements Codec.
func (Inflate) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (Inflate) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	return flate.NewReader(src), nil
}

// NewBoundedReader implements BoundedCodec; deflate marks its own final block.
func (c Inflate) NewBoundedReader(src io.Reader, stored, limit int64) (io.Reader, error) {
	return c.NewReader(src, stored, limit)
}

// Encode implements Encoder.
func (c Inflate) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, deflateLevel(c.Level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Zlib decodes zlib-wrapped deflate streams with Adler-32 verification.
type Zlib struct {
	// Level is used by Encode; zero selects the default level.
	Level int
}

// Name implements Codec.
func (Zlib) Name() string { return "zlib" }

// Kind implements Codec.
func (Zlib) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (Zlib) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	zr, err := zlib.NewReader(src)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing zlib header", ErrCodecTruncated)
		}

		return nil, err
	}

	return zr, nil
}

// NewBoundedReader implements BoundedCodec.
func (c Zlib) NewBoundedReader(src io.Reader, stored, limit int64) (io.Reader, error) {
	return c.NewReader(src, stored, limit)
}

// Encode implements Encoder.
func (c Zlib) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, deflateLevel(c.Level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// deflateLevel maps the zero value to the library default.
func deflateLevel(level int) int {
	if level == 0 {
		return flate.DefaultCompression
	}

	return level
}
