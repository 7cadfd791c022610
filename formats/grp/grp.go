// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package grp implements the Build engine GRP container of Duke Nukem 3D,
// Shadow Warrior and Blood: a "KenSilverman" magic, a file count, 16-byte
// records of 12-byte names and sizes, then payloads back to back.
package grp

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/gamepak/formats/internal/flat"
	"github.com/woozymasta/gamepak/formats/internal/sniff"
)

const (
	headerSize = 16
	recordSize = 16

	// MaxFileName is the name field length; names are not NUL-terminated when full.
	MaxFileName = 12
)

var magic = []byte("KenSilverman")

// ErrBadMagic means the container does not start with "KenSilverman".
var ErrBadMagic = fmt.Errorf("%w: grp: bad magic", gamepak.ErrValidation)

// Format is the GRP plugin.
type Format struct{}

// New returns the GRP plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "grp",
		Name:       "Build engine GRP",
		Extensions: []string{"grp"},
		Platforms:  []string{"Duke Nukem 3D", "Shadow Warrior", "Blood"},
		Caps:       gamepak.CapRead | gamepak.CapWrite | gamepak.CapReplace | gamepak.CapRename,
	}
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "grp")

	head, err := r.Peek(headerSize)
	if err != nil || !s.Magic(bytes.Equal(head[:len(magic)], magic)) {
		return s.Value(), nil
	}

	count := int64(binary.LittleEndian.Uint32(head[12:16]))
	if s.Count(r, count) {
		s.Range(r, headerSize, count*recordSize)
	}

	return s.Value(), nil
}

// Parse implements gamepak.Plugin.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	head, err := r.Bytes(int64(len(magic)))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic) {
		return nil, ErrBadMagic
	}

	n, err := r.U32()
	if err != nil {
		return nil, err
	}

	count := int64(n)
	if err := r.CheckCount(count); err != nil {
		return nil, err
	}
	if err := r.CheckRange(headerSize, count*recordSize); err != nil {
		return nil, fmt.Errorf("grp directory: %w", err)
	}

	out := make([]gamepak.Resource, 0, count)
	offset := headerSize + count*recordSize
	for i := range count {
		name, err := r.FixedString(MaxFileName)
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, err
		}

		res := gamepak.Resource{
			Path:       name,
			Offset:     offset,
			StoredSize: int64(size),
			Size:       int64(size),
		}
		res.SetProperty(gamepak.PropID, i)
		offset += int64(size)

		if err := r.CheckName(name); err != nil {
			env.Skip(fmt.Sprintf("#%d", i), err)
			continue
		}

		out = append(out, res)
	}

	return out, nil
}

// GuessExtension implements gamepak.ExtensionGuesser.
func (*Format) GuessExtension(_ gamepak.Resource, head []byte) string {
	return sniff.Extension(head)
}

// Write implements gamepak.Writer. Names are at most 12 bytes and nested
// paths are rejected.
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

// writeArchive writes the header and the directory with placeholder sizes,
// streams payloads, then patches sizes.
func writeArchive(ctx context.Context, out io.WriteSeeker, plan []gamepak.RewriteEntry, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	if out == nil {
		return nil, gamepak.ErrNilWriter
	}
	if len(plan) == 0 {
		return nil, gamepak.ErrEmptyInputs
	}
	if uint64(len(plan)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d entries", gamepak.ErrSizeOverflow, len(plan))
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts = opts.WithDefaults()
	tracker := gamepak.NewWriteTracker(opts)

	dir := make([]byte, headerSize+len(plan)*recordSize)
	copy(dir, magic)
	binary.LittleEndian.PutUint32(dir[12:16], uint32(len(plan))) //nolint:gosec // checked above
	for i, e := range plan {
		name, err := opts.NameEncoding.Encode(e.Path)
		if err != nil {
			return nil, err
		}
		if len(name) > MaxFileName || bytes.IndexByte(name, '/') >= 0 {
			return nil, fmt.Errorf("%w: grp names are flat and at most %d bytes: %s", gamepak.ErrInvalidEntryPath, MaxFileName, e.Path)
		}

		copy(dir[headerSize+i*recordSize:], name)
	}

	start, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}

	w, release := gamepak.AcquireWriter(out, opts.WriterBufferSize)
	defer release()

	if _, err := w.Write(dir); err != nil {
		return nil, fmt.Errorf("write directory: %w", err)
	}

	copyBuf, releaseCopy := gamepak.AcquireCopyBuffer()
	defer releaseCopy()

	offset := int64(len(dir))
	for i, e := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := flat.CopyEntry(w, e, math.MaxUint32, copyBuf)
		if err != nil {
			return nil, err
		}

		binary.LittleEndian.PutUint32(dir[headerSize+i*recordSize+MaxFileName:], uint32(n)) //nolint:gosec // bounded by CopyEntry limit
		tracker.Entry(gamepak.Resource{Path: e.Path, Offset: offset, StoredSize: n, Size: n}, false)
		offset += n
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	if _, err := out.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek directory: %w", err)
	}
	if _, err := out.Write(dir); err != nil {
		return nil, fmt.Errorf("patch directory: %w", err)
	}
	if _, err := out.Seek(start+offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek end: %w", err)
	}

	return tracker.Result(int64(len(dir))), nil
}
