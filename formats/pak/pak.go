// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package pak implements the id Software PACK container of Quake and
// Quake II: a 12-byte header pointing at a directory of 64-byte records.
package pak

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/gamepak/formats/internal/flat"
)

const (
	headerSize = 12
	entrySize  = 64

	// MaxFiles is the maximum number of files in a PAK file.
	MaxFiles = 4096

	// MaxFileName is the name field length, terminator included.
	MaxFileName = 56

	// MaxOffset is the maximum size of a PAK file and all files it contains.
	MaxOffset = 1<<31 - 1
)

var magic = []byte("PACK")

var (
	// ErrBadDirLen means the directory length is not a multiple of the record size.
	ErrBadDirLen = fmt.Errorf("%w: pak: bad directory length", gamepak.ErrValidation)
	// ErrTooManyFiles means the directory declares more than MaxFiles records.
	ErrTooManyFiles = fmt.Errorf("%w: pak: too many files", gamepak.ErrValidation)
	// ErrBadIdent means the header magic is not "PACK".
	ErrBadIdent = fmt.Errorf("%w: pak: bad ident", gamepak.ErrValidation)
)

// Format is the PAK plugin.
type Format struct{}

// New returns the PAK plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "pak",
		Name:       "id Software PACK",
		Extensions: []string{"pak"},
		Platforms:  []string{"Quake", "Quake II", "Half-Life"},
		Caps:       gamepak.CapRead | gamepak.CapWrite | gamepak.CapReplace | gamepak.CapRename,
	}
}

// header is the fixed PAK header.
type header struct {
	dirOffset int64
	dirLen    int64
}

// readHeader reads and validates the header at the cursor.
func readHeader(r *gamepak.Reader) (header, error) {
	ident, err := r.Bytes(int64(len(magic)))
	if err != nil {
		return header{}, err
	}
	if !bytes.Equal(ident, magic) {
		return header{}, ErrBadIdent
	}

	dirOffset, err := r.U32()
	if err != nil {
		return header{}, err
	}
	dirLen, err := r.U32()
	if err != nil {
		return header{}, err
	}

	h := header{dirOffset: int64(dirOffset), dirLen: int64(dirLen)}
	if h.dirLen%entrySize != 0 {
		return header{}, ErrBadDirLen
	}
	if h.dirLen/entrySize > MaxFiles {
		return header{}, ErrTooManyFiles
	}
	if err := r.CheckRange(h.dirOffset, h.dirLen); err != nil {
		return header{}, fmt.Errorf("pak directory: %w", err)
	}

	return h, nil
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "pak")

	head, err := r.Peek(headerSize)
	if err != nil || !s.Magic(bytes.Equal(head[:4], magic)) {
		return s.Value(), nil
	}

	dirOffset := int64(binary.LittleEndian.Uint32(head[4:8]))
	dirLen := int64(binary.LittleEndian.Uint32(head[8:12]))
	s.Structure(dirLen%entrySize == 0 && dirLen/entrySize <= MaxFiles)
	s.Range(r, dirOffset, dirLen)

	return s.Value(), nil
}

// Parse implements gamepak.Plugin.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	count := h.dirLen / entrySize
	if err := r.CheckCount(count); err != nil {
		return nil, err
	}
	if err := r.SeekTo(h.dirOffset); err != nil {
		return nil, err
	}

	out := make([]gamepak.Resource, 0, count)
	for range count {
		name, err := r.FixedString(MaxFileName)
		if err != nil {
			return nil, err
		}
		filePos, err := r.U32()
		if err != nil {
			return nil, err
		}
		fileLen, err := r.U32()
		if err != nil {
			return nil, err
		}

		if err := r.CheckName(name); err != nil {
			env.Skip(name, err)
			continue
		}
		if fileLen > MaxOffset || filePos > MaxOffset-fileLen {
			env.Skip(name, gamepak.ErrSizeOverflow)
			continue
		}

		out = append(out, gamepak.Resource{
			Path:       name,
			Offset:     int64(filePos),
			StoredSize: int64(fileLen),
			Size:       int64(fileLen),
		})
	}

	return out, nil
}

// Write implements gamepak.Writer.
func (*Format) Write(ctx context.Context, w io.WriteSeeker, inputs []gamepak.Input, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	plan, err := flat.Plan(inputs, "/")
	if err != nil {
		return nil, err
	}

	return writeArchive(ctx, w, plan, opts)
}

// Rewrite implements gamepak.Replacer.
func (*Format) Rewrite(ctx context.Context, w io.WriteSeeker, entries []gamepak.RewriteEntry, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	plan, err := flat.NormalizePlan(entries, "/")
	if err != nil {
		return nil, err
	}

	return writeArchive(ctx, w, plan, opts)
}

// writeArchive writes a header placeholder, payloads, the directory, then
// patches the header.
func writeArchive(ctx context.Context, out io.WriteSeeker, plan []gamepak.RewriteEntry, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	if out == nil {
		return nil, gamepak.ErrNilWriter
	}
	if len(plan) == 0 {
		return nil, gamepak.ErrEmptyInputs
	}
	if len(plan) > MaxFiles {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyFiles, len(plan))
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts = opts.WithDefaults()
	tracker := gamepak.NewWriteTracker(opts)

	names := make([][]byte, len(plan))
	for i, e := range plan {
		name, err := opts.NameEncoding.Encode(e.Path)
		if err != nil {
			return nil, err
		}
		if len(name) >= MaxFileName {
			return nil, fmt.Errorf("%w: %s is longer than %d bytes", gamepak.ErrInvalidEntryPath, e.Path, MaxFileName-1)
		}

		names[i] = name
	}

	start, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}

	w, release := gamepak.AcquireWriter(out, opts.WriterBufferSize)
	defer release()

	if _, err := w.Write(make([]byte, headerSize)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	copyBuf, releaseCopy := gamepak.AcquireCopyBuffer()
	defer releaseCopy()

	offset := int64(headerSize)
	dir := make([]byte, 0, len(plan)*entrySize)
	for i, e := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := flat.CopyEntry(w, e, MaxOffset-offset, copyBuf)
		if err != nil {
			return nil, err
		}

		var rec [entrySize]byte
		copy(rec[:MaxFileName], names[i])
		binary.LittleEndian.PutUint32(rec[56:60], uint32(offset)) //nolint:gosec // bounded by MaxOffset
		binary.LittleEndian.PutUint32(rec[60:64], uint32(n))      //nolint:gosec // bounded by MaxOffset
		dir = append(dir, rec[:]...)

		tracker.Entry(gamepak.Resource{Path: e.Path, Offset: offset, StoredSize: n, Size: n}, false)
		offset += n
	}

	if offset > MaxOffset-int64(len(dir)) {
		return nil, fmt.Errorf("%w: pak exceeds %d bytes", gamepak.ErrSizeOverflow, MaxOffset)
	}

	if _, err := w.Write(dir); err != nil {
		return nil, fmt.Errorf("write directory: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(offset))    //nolint:gosec // checked above
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(dir))) //nolint:gosec // bounded by MaxFiles
	if _, err := out.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek header: %w", err)
	}
	if _, err := out.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("patch header: %w", err)
	}
	if _, err := out.Seek(start+offset+int64(len(dir)), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek end: %w", err)
	}

	return tracker.Result(int64(len(dir)) + headerSize), nil
}
