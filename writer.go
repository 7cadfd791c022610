// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between writes.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// defaultPackCopyBufferPool reuses payload copy buffers between writes.
	defaultPackCopyBufferPool = sync.Pool{
		New: func() any {
			return new([packCopyBufferSize]byte)
		},
	}
)

// packCopyBufferSize is per-write temporary buffer used by streaming payload copy.
const packCopyBufferSize = 64 * 1024

// Pack builds an archive of the format registered under formatID in the default registry.
func Pack(ctx context.Context, formatID string, out io.WriteSeeker, inputs []Input, opts WriteOptions) (*WriteResult, error) {
	return defaultRegistry.Pack(ctx, formatID, out, inputs, opts)
}

// PackFile builds an archive file at outPath.
func PackFile(ctx context.Context, formatID, outPath string, inputs []Input, opts WriteOptions) (*WriteResult, error) {
	return defaultRegistry.PackFile(ctx, formatID, outPath, inputs, opts)
}

// Pack builds an archive with the Writer of the plugin registered under formatID.
func (g *Registry) Pack(ctx context.Context, formatID string, out io.WriteSeeker, inputs []Input, opts WriteOptions) (*WriteResult, error) {
	if out == nil {
		return nil, ErrNilWriter
	}
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	w, err := g.writer(formatID)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return w.Write(ctx, out, inputs, opts.WithDefaults())
}

// PackFile builds an archive file at outPath and runs the format's file finalizer.
func (g *Registry) PackFile(ctx context.Context, formatID, outPath string, inputs []Input, opts WriteOptions) (*WriteResult, error) {
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // caller-provided output path
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	res, err := g.Pack(ctx, formatID, f, inputs, opts)
	if err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync archive file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}
	f = nil

	if err := g.finalizeFile(formatID, outPath); err != nil {
		return nil, err
	}

	return res, nil
}

// writer returns the Writer of formatID.
func (g *Registry) writer(formatID string) (Writer, error) {
	p, ok := g.Lookup(formatID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, formatID)
	}

	w, ok := p.(Writer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, formatID)
	}

	return w, nil
}

// finalizeFile runs the optional FileFinalizer of formatID.
func (g *Registry) finalizeFile(formatID, path string) error {
	p, ok := g.Lookup(formatID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, formatID)
	}

	fin, ok := p.(FileFinalizer)
	if !ok {
		return nil
	}

	if err := fin.FinalizeFile(path); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}

	return nil
}

// AcquireWriter returns a buffered writer and release callback.
func AcquireWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// AcquireCopyBuffer returns reusable payload copy buffer and release callback.
func AcquireCopyBuffer() ([]byte, func()) {
	arr := defaultPackCopyBufferPool.Get().(*[packCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		defaultPackCopyBufferPool.Put(arr)
	}
}

// PrepareInputs normalizes input paths to the archive form joined by sep,
// sorts them for deterministic output and rejects duplicates.
func PrepareInputs(inputs []Input, sep string) ([]Input, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)

	paths := make([]string, len(sorted))
	for i := range sorted {
		normalizedPath, err := NormalizeEntryPath(sorted[i].Path, sep)
		if err != nil {
			return nil, err
		}

		sorted[i].Path = normalizedPath
		paths[i] = normalizedPath
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	if err := ValidateUniquePaths(paths); err != nil {
		return nil, err
	}

	return sorted, nil
}

// OpenInput opens the source stream of one input.
func OpenInput(in Input) (io.ReadCloser, error) {
	if in.Open == nil {
		return nil, fmt.Errorf("input %s: Open is nil", in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", in.Path, err)
	}

	return rc, nil
}

// ReadInput reads a whole input into memory, failing above limit bytes.
func ReadInput(in Input, limit int64, copyBuf []byte) ([]byte, error) {
	rc, err := OpenInput(in)
	if err != nil {
		return nil, err
	}

	var dst bytes.Buffer
	if in.SizeHint > 0 && in.SizeHint <= limit {
		dst.Grow(int(in.SizeHint))
	}

	_, copyErr := CopyBounded(&dst, rc, limit, copyBuf)
	closeErr := rc.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("read input %s: %w", in.Path, copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close input %s: %w", in.Path, closeErr)
	}

	return dst.Bytes(), nil
}

// CopyStored copies the stored bytes of res unchanged to dst.
func CopyStored(dst io.Writer, res Resource, copyBuf []byte) (int64, error) {
	if res.Source == nil {
		return 0, fmt.Errorf("copy stored %s: %w", res.Path, ErrNilReader)
	}
	if err := CheckRange(res.Offset, res.StoredSize, res.Source.Size()); err != nil {
		return 0, fmt.Errorf("copy stored %s: %w", res.Path, err)
	}

	written, err := CopyBounded(dst, res.Source.Section(res.Offset, res.StoredSize), res.StoredSize, copyBuf)
	if err != nil {
		return written, fmt.Errorf("copy stored %s: %w", res.Path, err)
	}
	if written != res.StoredSize {
		return written, fmt.Errorf("copy stored %s: short read (%d/%d)", res.Path, written, res.StoredSize)
	}

	return written, nil
}

// CopyBounded streams src to dst and fails with ErrSizeOverflow when src
// holds more than limit bytes.
func CopyBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return written, readErr
		}
	}

	// A source of exactly limit bytes must be at EOF now.
	if written == limit {
		var probe [1]byte
		n, err := src.Read(probe[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return written, err
		}
	}

	return written, nil
}

// CheckedUint32 validates a size for uint32 fields given the running offset.
func CheckedUint32(path string, size, currentOffset int64) (uint32, error) {
	if size < 0 || size > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: entry %s size %d is out of uint32 range", ErrSizeOverflow, path, size)
	}

	if size > int64(^uint32(0))-currentOffset {
		return 0, fmt.Errorf("%w: entry %s size would exceed 4 GiB", ErrSizeOverflow, path)
	}

	return uint32(size), nil
}

// TimeToUint32 converts time to uint32 Unix timestamp with bounds clamping.
func TimeToUint32(t time.Time) uint32 {
	u := t.Unix()
	if u < 0 {
		return 0
	}

	if u > 0xffffffff {
		return 0xffffffff
	}

	return uint32(u)
}

// WriteTracker accumulates WriteResult statistics and progress callbacks
// shared by format writers.
type WriteTracker struct {
	result    WriteResult
	opts      WriteOptions
	startedAt time.Time
}

// NewWriteTracker starts timing one write.
func NewWriteTracker(opts WriteOptions) *WriteTracker {
	return &WriteTracker{opts: opts, startedAt: time.Now()}
}

// Entry records one written entry. candidate reports whether compression was attempted.
func (t *WriteTracker) Entry(res Resource, candidate bool) {
	compressed := len(res.Codecs) > 0
	t.result.Resources = append(t.result.Resources, res)
	t.result.WrittenEntries++
	t.result.DataSize += res.StoredSize

	if compressed {
		t.result.CompressedEntries++
		t.result.CompressedBytes += res.StoredSize
	} else {
		t.result.RawBytes += res.StoredSize
	}
	if candidate && !compressed {
		t.result.SkippedCompressionEntries++
	}

	if t.opts.OnEntryDone != nil {
		t.opts.OnEntryDone(WriteProgress{
			Path:                 res.Path,
			Codec:                res.Codec(),
			Offset:               res.Offset,
			StoredSize:           res.StoredSize,
			Size:                 res.Size,
			CompressionCandidate: candidate,
			Compressed:           compressed,
		})
	}
}

// Result finalizes statistics. indexSize is the directory byte size.
func (t *WriteTracker) Result(indexSize int64) *WriteResult {
	out := t.result
	out.IndexSize = indexSize
	out.Duration = time.Since(t.startedAt)

	return &out
}
