// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CodecKind separates length-preserving transforms from decompressors.
type CodecKind uint8

const (
	// CodecTransform keeps stream length (decryption, XOR, passthrough).
	CodecTransform CodecKind = iota
	// CodecDecompress expands stored bytes to a decoded size.
	CodecDecompress
)

// Codec is one decode step of a resource chain.
type Codec interface {
	// Name returns a short identifier used in listings and logs.
	Name() string
	// Kind reports whether the codec changes stream length.
	Kind() CodecKind
	// NewReader wraps src, which yields stored encoded bytes.
	// hint is the exact decoded size for decompressors and equals stored for transforms.
	NewReader(src io.Reader, stored, hint int64) (io.Reader, error)
}

// BoundedCodec is implemented by decompressors that can stop at their own
// end-of-stream when only an upper bound of the decoded size is known.
type BoundedCodec interface {
	NewBoundedReader(src io.Reader, stored, limit int64) (io.Reader, error)
}

// Encoder is implemented by codecs that can produce their own encoded form.
type Encoder interface {
	Encode(src []byte) ([]byte, error)
}

// OpenChain materializes a codec chain over src holding stored encoded bytes.
//
// size is the decoded size. In exact mode a decompressor producing fewer bytes
// fails with ErrCodecTruncated and more bytes with ErrCodecCorrupt. In bounded
// mode size is an upper bound and the stream ends at the codec's own end.
func OpenChain(src io.Reader, chain []Codec, stored, size int64, bounded bool) (io.ReadCloser, error) {
	if src == nil {
		return nil, ErrNilReader
	}

	decompressors := 0
	for i, c := range chain {
		if c == nil {
			return nil, fmt.Errorf("%w: nil codec at position %d", ErrCodecUnsupported, i)
		}
		if c.Kind() == CodecDecompress {
			decompressors++
		}
	}
	if decompressors > 1 {
		return nil, fmt.Errorf("%w: %d decompressors in one chain", ErrCodecUnsupported, decompressors)
	}

	out := &chainReader{r: src}
	curLen := stored
	for _, c := range chain {
		var (
			next io.Reader
			err  error
		)

		if c.Kind() == CodecDecompress {
			next, err = openDecompressor(c, src, curLen, size, bounded)
			curLen = size
			out.checked = true
			out.exact = !bounded
			out.limit = size
		} else {
			next, err = c.NewReader(src, curLen, curLen)
		}
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open %s: %w", c.Name(), classifyCodecError(err))
		}

		if closer, ok := next.(io.Closer); ok {
			out.closers = append(out.closers, closer)
		}

		src = next
	}

	out.r = src
	return out, nil
}

// openDecompressor opens c in exact or bounded mode.
func openDecompressor(c Codec, src io.Reader, stored, size int64, bounded bool) (io.Reader, error) {
	if !bounded {
		return c.NewReader(src, stored, size)
	}

	bc, ok := c.(BoundedCodec)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs an exact output size", ErrCodecUnsupported, c.Name())
	}

	return bc.NewBoundedReader(src, stored, size)
}

// DecodeBytes runs a chain over an in-memory buffer.
func DecodeBytes(chain []Codec, data []byte, size int64, bounded bool) ([]byte, error) {
	if len(chain) == 0 {
		return data, nil
	}

	rc, err := OpenChain(bytes.NewReader(data), chain, int64(len(data)), size, bounded)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if size > 0 && !bounded {
		buf.Grow(int(size))
	}
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeChain produces stored bytes for a chain by running encoders last to first.
func EncodeChain(chain []Codec, data []byte) ([]byte, error) {
	out := data
	for i := len(chain) - 1; i >= 0; i-- {
		enc, ok := chain[i].(Encoder)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no encoder", ErrCodecUnsupported, chain[i].Name())
		}

		encoded, err := enc.Encode(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", chain[i].Name(), err)
		}

		out = encoded
	}

	return out, nil
}

// ChainName joins codec names for display, e.g. "xor+zlib".
func ChainName(chain []Codec) string {
	if len(chain) == 0 {
		return "stored"
	}

	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name()
	}

	return strings.Join(names, "+")
}

// chainReader enforces output size rules and owns codec closers.
type chainReader struct {
	r       io.Reader
	err     error
	closers []io.Closer
	limit   int64
	n       int64
	checked bool
	exact   bool
}

// Read implements io.Reader.
func (c *chainReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	if c.checked {
		if c.n >= c.limit {
			c.err = c.probeEnd()
			return 0, c.err
		}
		if int64(len(p)) > c.limit-c.n {
			p = p[:c.limit-c.n]
		}
	}

	n, err := c.r.Read(p)
	c.n += int64(n)

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		if c.checked && c.exact && c.n < c.limit {
			c.err = fmt.Errorf("%w: decoded %d of %d bytes", ErrCodecTruncated, c.n, c.limit)
			return n, c.err
		}

		c.err = io.EOF
		return n, io.EOF
	default:
		c.err = classifyCodecError(err)
		return n, c.err
	}
}

// probeEnd checks that the decoder has nothing left once the limit is reached.
func (c *chainReader) probeEnd() error {
	var one [1]byte
	for range 100 {
		n, err := c.r.Read(one[:])
		if n > 0 {
			return fmt.Errorf("%w: output exceeds %d bytes", ErrCodecCorrupt, c.limit)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return io.EOF
		}

		return classifyCodecError(err)
	}

	return io.ErrNoProgress
}

// Close releases codec state (pipes, decoders) in reverse order.
func (c *chainReader) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil

	return errors.Join(errs...)
}

// classifyCodecError maps decoder errors onto the codec taxonomy.
func classifyCodecError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCodec), errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrCodecTruncated, err)
	default:
		return fmt.Errorf("%w: %w", ErrCodecCorrupt, err)
	}
}

// Stream adapts a decoded io.Reader to byte-at-a-time consumers.
type Stream struct {
	br  *bufio.Reader
	off int64
}

// NewStream wraps r.
func NewStream(r io.Reader) *Stream {
	if br, ok := r.(*bufio.Reader); ok {
		return &Stream{br: br}
	}

	return &Stream{br: bufio.NewReader(r)}
}

// Next returns the next byte or io.EOF at the end of the stream.
func (s *Stream) Next() (byte, error) {
	b, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}

	s.off++
	return b, nil
}

// Available reports whether at least one more byte can be read.
func (s *Stream) Available() bool {
	_, err := s.br.Peek(1)
	return err == nil
}

// Offset returns the number of bytes consumed so far.
func (s *Stream) Offset() int64 {
	return s.off
}
