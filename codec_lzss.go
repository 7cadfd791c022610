// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/woozymasta/lzss"
)

// LZSS decodes Bohemia Interactive LZSS streams (PBO "Cprs" entries).
// The stream has no end marker, so an exact output size is required.
type LZSS struct{}

// Name implements Codec.
func (LZSS) Name() string { return "lzss" }

// Kind implements Codec.
func (LZSS) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (LZSS) NewReader(src io.Reader, _, hint int64) (io.Reader, error) {
	if hint < 0 || uint64(hint) > uint64(math.MaxInt) {
		return nil, fmt.Errorf("%w: lzss output size %d", ErrSizeOverflow, hint)
	}
	if hint == 0 {
		return bytes.NewReader(nil), nil
	}

	pr, pw := io.Pipe()
	go streamDecompressLZSS(pw, src, int(hint))

	return pr, nil
}

// Encode implements Encoder.
func (LZSS) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}

	return lzss.Compress(src, lzss.DefaultCompressOptions())
}

// streamDecompressLZSS decodes one stream into the pipe writer.
func streamDecompressLZSS(dst *io.PipeWriter, src io.Reader, outLen int) {
	_, err := lzss.DecompressToWriter(dst, src, outLen, nil)
	if err != nil {
		_ = dst.CloseWithError(lzssError(err))
		return
	}

	_ = dst.Close()
}

// lzssError maps end-of-input failures of the lzss decoder to ErrCodecTruncated.
func lzssError(err error) error {
	if errors.Is(err, lzss.ErrUnexpectedEOF) ||
		errors.Is(err, lzss.ErrUnexpectedEOFBit) ||
		errors.Is(err, lzss.ErrInputTooShort) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: decompress lzss: %w", ErrCodecTruncated, err)
	}

	return fmt.Errorf("decompress lzss: %w", err)
}
