// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// DefaultReaderBufferSize is the read-ahead window used for small typed reads.
const DefaultReaderBufferSize = 4 * 1024

// Reader is a bounds-checked cursor over one byte range of a Source.
//
// Every multi-byte read returns exactly the requested bytes or fails with
// ErrTruncated; the cursor does not move on failure. Positions are relative
// to the start of the range the Reader was created for.
type Reader struct {
	src    *Source
	order  binary.ByteOrder
	names  NameEncoding
	limits Limits

	window    []byte
	windowOff int64
	bufSize   int

	base    int64
	size    int64
	pos     int64
	big     bool
	scratch [8]byte
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithBufferSize sets the read-ahead window. It affects performance only.
func WithBufferSize(n int) ReaderOption {
	return func(r *Reader) {
		if n >= 0 {
			r.bufSize = n
		}
	}
}

// WithByteOrder sets the initial byte order.
func WithByteOrder(order binary.ByteOrder) ReaderOption {
	return func(r *Reader) {
		r.SetByteOrder(order)
	}
}

// WithReaderLimits sets the sanity ceilings used by the Check helpers.
func WithReaderLimits(limits Limits) ReaderOption {
	return func(r *Reader) {
		r.SetLimits(limits)
	}
}

// WithReaderNameEncoding sets the legacy code page used for string reads.
func WithReaderNameEncoding(enc NameEncoding) ReaderOption {
	return func(r *Reader) {
		r.names = enc
	}
}

// NewSourceReader returns a cursor over the whole source.
func NewSourceReader(src *Source, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:     src,
		size:    src.Size(),
		order:   binary.LittleEndian,
		limits:  DefaultLimits(),
		bufSize: DefaultReaderBufferSize,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewReader returns a cursor over a caller-owned io.ReaderAt.
func NewReader(ra io.ReaderAt, size int64, name string, opts ...ReaderOption) *Reader {
	return NewSourceReader(NewSource(ra, size, name), opts...)
}

// NewBytesReader returns a cursor over an in-memory container.
func NewBytesReader(b []byte, name string, opts ...ReaderOption) *Reader {
	return NewSourceReader(NewBytesSource(b, name), opts...)
}

// OpenReader opens a file and returns a cursor over it.
// Close the file through Reader.Source().Close.
func OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	src, err := OpenSource(path, false)
	if err != nil {
		return nil, err
	}

	return NewSourceReader(src, opts...), nil
}

// Source returns the underlying container.
func (r *Reader) Source() *Source {
	return r.src
}

// Name returns the container name (path or label).
func (r *Reader) Name() string {
	return r.src.Name()
}

// Len returns the size of the readable range.
func (r *Reader) Len() int64 {
	return r.size
}

// Pos returns the cursor position relative to the range start.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Remaining returns the number of bytes between cursor and range end.
func (r *Reader) Remaining() int64 {
	return r.size - r.pos
}

// Base returns the absolute source offset of the range start.
func (r *Reader) Base() int64 {
	return r.base
}

// Abs converts a range-relative offset to an absolute source offset.
func (r *Reader) Abs(rel int64) int64 {
	return r.base + rel
}

// Limits returns the sanity ceilings carried by the reader.
func (r *Reader) Limits() Limits {
	return r.limits
}

// SetLimits replaces the sanity ceilings.
func (r *Reader) SetLimits(limits Limits) {
	limits.applyDefaults()
	r.limits = limits
}

// ByteOrder returns the current byte order.
func (r *Reader) ByteOrder() binary.ByteOrder {
	return r.order
}

// SetByteOrder changes the byte order for subsequent typed reads.
func (r *Reader) SetByteOrder(order binary.ByteOrder) {
	if order == nil {
		order = binary.LittleEndian
	}

	r.order = order
	r.big = order.Uint16([]byte{0, 1}) == 1
}

// NameEncoding returns the code page used for string reads.
func (r *Reader) NameEncoding() NameEncoding {
	return r.names
}

// SetNameEncoding changes the code page used for string reads.
func (r *Reader) SetNameEncoding(enc NameEncoding) {
	r.names = enc
}

// SeekTo moves the cursor to abs, which must be within [0, Len()].
func (r *Reader) SeekTo(abs int64) error {
	if abs < 0 || abs > r.size {
		return r.at(newValidationError("seek", "outside range", abs, r.size))
	}

	r.pos = abs
	return nil
}

// RelativeSeek moves the cursor by delta.
func (r *Reader) RelativeSeek(delta int64) error {
	if (delta > 0 && r.pos > math.MaxInt64-delta) || (delta < 0 && r.pos+delta < 0) {
		return r.at(newValidationError("seek", "outside range", delta, r.size))
	}

	return r.SeekTo(r.pos + delta)
}

// Skip advances the cursor by n bytes, failing with ErrTruncated past the end.
func (r *Reader) Skip(n int64) error {
	if n < 0 {
		return r.at(newValidationError("skip", "negative", n, r.size))
	}
	if n > r.size-r.pos {
		return r.truncated(n)
	}

	r.pos += n
	return nil
}

// SubReader returns an independent cursor scoped to [offset, offset+length) of this range.
func (r *Reader) SubReader(offset, length int64) (*Reader, error) {
	if err := CheckRange(offset, length, r.size); err != nil {
		return nil, r.at(err)
	}

	sub := &Reader{
		src:     r.src,
		order:   r.order,
		big:     r.big,
		names:   r.names,
		limits:  r.limits,
		bufSize: r.bufSize,
		base:    r.base + offset,
		size:    length,
	}

	return sub, nil
}

// Clone returns an independent cursor over the same range, positioned at zero.
func (r *Reader) Clone() *Reader {
	sub, _ := r.SubReader(0, r.size)
	return sub
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.fill(r.scratch[:1]); err != nil {
		return 0, err
	}

	return r.scratch[0], nil
}

// U16 reads an unsigned 16-bit integer.
func (r *Reader) U16() (uint16, error) {
	if err := r.fill(r.scratch[:2]); err != nil {
		return 0, err
	}

	return r.order.Uint16(r.scratch[:2]), nil
}

// U24 reads an unsigned 24-bit integer.
func (r *Reader) U24() (uint32, error) {
	if err := r.fill(r.scratch[:3]); err != nil {
		return 0, err
	}

	b := r.scratch[:3]
	if r.big {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
	}

	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// U32 reads an unsigned 32-bit integer.
func (r *Reader) U32() (uint32, error) {
	if err := r.fill(r.scratch[:4]); err != nil {
		return 0, err
	}

	return r.order.Uint32(r.scratch[:4]), nil
}

// U64 reads an unsigned 64-bit integer.
func (r *Reader) U64() (uint64, error) {
	if err := r.fill(r.scratch[:8]); err != nil {
		return 0, err
	}

	return r.order.Uint64(r.scratch[:8]), nil
}

// I8 reads a signed byte.
func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err //nolint:gosec // two's complement reinterpretation
}

// I16 reads a signed 16-bit integer.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err //nolint:gosec // two's complement reinterpretation
}

// I32 reads a signed 32-bit integer.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err //nolint:gosec // two's complement reinterpretation
}

// I64 reads a signed 64-bit integer.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err //nolint:gosec // two's complement reinterpretation
}

// Bytes reads exactly n bytes into a new slice.
func (r *Reader) Bytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, r.at(newValidationError("length", "negative", n, r.size))
	}
	if n > r.size-r.pos {
		return nil, r.truncated(n)
	}

	out := make([]byte, n)
	if err := r.fill(out); err != nil {
		return nil, err
	}

	return out, nil
}

// Peek returns the next n bytes without moving the cursor.
func (r *Reader) Peek(n int64) ([]byte, error) {
	pos := r.pos
	out, err := r.Bytes(n)
	r.pos = pos

	return out, err
}

// FixedString reads an n-byte field and trims it at the first NUL.
func (r *Reader) FixedString(n int64) (string, error) {
	raw, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	if idx := bytes.IndexByte(raw, 0); idx >= 0 {
		raw = raw[:idx]
	}

	return r.names.Decode(raw), nil
}

// CString reads a NUL-terminated string of at most maxLen bytes (terminator excluded).
// A non-positive maxLen uses Limits.MaxNameLength.
func (r *Reader) CString(maxLen int) (string, error) {
	raw, err := r.RawCString(maxLen)
	if err != nil {
		return "", err
	}

	return r.names.Decode(raw), nil
}

// RawCString is CString without name decoding.
func (r *Reader) RawCString(maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		maxLen = r.limits.MaxNameLength
	}

	window := min(int64(maxLen)+1, r.size-r.pos)
	if window <= 0 {
		return nil, r.truncated(1)
	}

	raw, err := r.Peek(window)
	if err != nil {
		return nil, err
	}

	idx := bytes.IndexByte(raw, 0)
	if idx < 0 {
		if window == r.size-r.pos && window <= int64(maxLen) {
			return nil, fmt.Errorf("%w: unterminated string at %d", ErrTruncated, r.pos)
		}

		return nil, r.at(newValidationError("name", "too long", window, int64(maxLen)))
	}

	r.pos += int64(idx) + 1
	return raw[:idx], nil
}

// ReadAt reads len(p) bytes at range-relative offset off without moving the cursor.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > r.size {
		return 0, r.at(newValidationError("offset", "outside range", off, r.size))
	}
	if int64(len(p)) > r.size-off {
		return 0, fmt.Errorf("%w: need %d bytes at %d", ErrTruncated, len(p), off)
	}
	if err := r.readFull(p, off); err != nil {
		return 0, err
	}

	return len(p), nil
}

// CheckCount validates a declared count against the reader limits.
func (r *Reader) CheckCount(n int64) error {
	return r.at(r.limits.CheckCount(n))
}

// CheckOffset validates an offset against the reader range size.
func (r *Reader) CheckOffset(o int64) error {
	return r.at(CheckOffset(o, r.size))
}

// CheckLength validates a length against the reader range size.
func (r *Reader) CheckLength(l int64) error {
	return r.at(CheckLength(l, r.size))
}

// CheckRange validates offset and length against the reader range size.
func (r *Reader) CheckRange(o, l int64) error {
	return r.at(CheckRange(o, l, r.size))
}

// CheckName validates a decoded name against the reader limits.
func (r *Reader) CheckName(s string) error {
	return r.at(CheckName(s, r.limits.MaxNameLength))
}

// CheckDecodedSize validates a declared decoded size against the reader limits.
func (r *Reader) CheckDecodedSize(n int64) error {
	return r.at(r.limits.CheckDecodedSize(n))
}

// fill reads exactly len(p) bytes at the cursor and advances it.
func (r *Reader) fill(p []byte) error {
	n := int64(len(p))
	if n > r.size-r.pos {
		return r.truncated(n)
	}
	if n == 0 {
		return nil
	}

	if r.pos >= r.windowOff && r.pos+n <= r.windowOff+int64(len(r.window)) {
		copy(p, r.window[r.pos-r.windowOff:])
		r.pos += n
		return nil
	}

	if r.bufSize > 0 && n < int64(r.bufSize)/2 {
		if err := r.refill(); err != nil {
			return err
		}

		copy(p, r.window[:n])
		r.pos += n
		return nil
	}

	if err := r.readFull(p, r.pos); err != nil {
		return err
	}

	r.pos += n
	return nil
}

// refill loads the read-ahead window at the cursor.
func (r *Reader) refill() error {
	n := min(int64(r.bufSize), r.size-r.pos)
	if cap(r.window) < int(n) {
		r.window = make([]byte, r.bufSize)
	}

	r.window = r.window[:n]
	if err := r.readFull(r.window, r.pos); err != nil {
		r.window = r.window[:0]
		return err
	}

	r.windowOff = r.pos
	return nil
}

// readFull reads len(p) bytes at range-relative off from the source.
func (r *Reader) readFull(p []byte, off int64) error {
	n, err := r.src.ReadAt(p, r.base+off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read %d/%d at %d", ErrTruncated, n, len(p), off)
	}

	return fmt.Errorf("%w: read at %d: %w", ErrTruncated, off, err)
}

// truncated builds the error for a read of n bytes at the cursor.
func (r *Reader) truncated(n int64) error {
	return fmt.Errorf("%w: need %d bytes at %d, %d available", ErrTruncated, n, r.pos, r.size-r.pos)
}

// at stamps the cursor position onto validation errors.
func (r *Reader) at(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Pos < 0 {
		ve.Pos = r.pos
	}

	return err
}
