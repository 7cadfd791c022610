// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package nestedtree

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/woozymasta/gamepak"
)

// dirNode is a folder being assembled; files and folders keep first-seen order.
type dirNode struct {
	index    map[string]*dirNode
	name     string
	children []*dirChild
}

// dirChild is either a folder or a file of a dirNode.
type dirChild struct {
	folder *dirNode
	entry  *gamepak.RewriteEntry
	name   string

	// filled while writing payloads
	codec  CodecID
	offset uint32
	stored uint32
	size   uint32
}

// Write implements gamepak.Writer. Compression candidates are encoded with
// the codec named by OptionCodec when that saves space.
func (*Format) Write(ctx context.Context, w io.WriteSeeker, inputs []gamepak.Input, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	prepared, err := gamepak.PrepareInputs(inputs, "/")
	if err != nil {
		return nil, err
	}

	plan := make([]gamepak.RewriteEntry, len(prepared))
	for i := range prepared {
		plan[i] = gamepak.RewriteEntry{Path: prepared[i].Path, Input: &prepared[i]}
	}

	return writeArchive(ctx, w, plan, opts)
}

// Rewrite implements gamepak.Replacer. Kept resources keep their codec.
func (*Format) Rewrite(ctx context.Context, w io.WriteSeeker, entries []gamepak.RewriteEntry, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	if len(entries) == 0 {
		return nil, gamepak.ErrEmptyInputs
	}

	plan := make([]gamepak.RewriteEntry, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		p, err := gamepak.NormalizeEntryPath(e.Path, "/")
		if err != nil {
			return nil, err
		}

		e.Path = p
		plan[i] = e
		paths[i] = p
	}

	if err := gamepak.ValidateUniquePaths(paths); err != nil {
		return nil, err
	}

	return writeArchive(ctx, w, plan, opts)
}

// buildTree groups plan entries by folder.
func buildTree(plan []gamepak.RewriteEntry) (*dirNode, []*dirChild) {
	root := &dirNode{index: map[string]*dirNode{}}
	files := make([]*dirChild, 0, len(plan))

	for i := range plan {
		parts := strings.Split(plan[i].Path, "/")
		node := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := node.index[part]
			if !ok {
				next = &dirNode{name: part, index: map[string]*dirNode{}}
				node.index[part] = next
				node.children = append(node.children, &dirChild{folder: next, name: part})
			}
			node = next
		}

		leaf := &dirChild{entry: &plan[i], name: parts[len(parts)-1]}
		node.children = append(node.children, leaf)
	}

	// payload order follows the directory walk
	var walk func(n *dirNode)
	walk = func(n *dirNode) {
		for _, c := range n.children {
			if c.folder != nil {
				walk(c.folder)
				continue
			}
			files = append(files, c)
		}
	}
	walk(root)

	return root, files
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

	if ctx == nil {
		ctx = context.Background()
	}

	opts = opts.WithDefaults()
	codecName, _ := opts.Option(OptionCodec)
	codecID, encoder, err := parseCodecName(codecName)
	if err != nil {
		return nil, err
	}

	policy, err := gamepak.NewCompressPolicy(opts)
	if err != nil {
		return nil, err
	}

	root, files := buildTree(plan)

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

	tracker := gamepak.NewWriteTracker(opts)
	offset := int64(headerSize)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, candidate, err := writePayload(w, f, offset, policy, codecID, encoder, copyBuf)
		if err != nil {
			return nil, err
		}

		tracker.Entry(res, candidate)
		offset += res.StoredSize
	}

	if offset > math.MaxUint32 {
		return nil, fmt.Errorf("%w: directory offset past 4 GiB", gamepak.ErrSizeOverflow)
	}

	var dir bytes.Buffer
	if err := encodeChildren(&dir, root, opts.NameEncoding); err != nil {
		return nil, err
	}

	if _, err := w.Write(dir.Bytes()); err != nil {
		return nil, fmt.Errorf("write directory: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(offset))              //nolint:gosec // checked above
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(root.children))) //nolint:gosec // bounded by input count
	if _, err := out.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek header: %w", err)
	}
	if _, err := out.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("patch header: %w", err)
	}
	if _, err := out.Seek(start+offset+int64(dir.Len()), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek end: %w", err)
	}

	return tracker.Result(int64(dir.Len()) + headerSize), nil
}

// writePayload writes one file payload and fills its record fields.
func writePayload(
	w io.Writer,
	f *dirChild,
	offset int64,
	policy *gamepak.CompressPolicy,
	codecID CodecID,
	encoder gamepak.Encoder,
	copyBuf []byte,
) (gamepak.Resource, bool, error) {
	e := f.entry
	res := gamepak.Resource{Path: e.Path, Offset: offset}

	if _, err := gamepak.CheckedUint32(e.Path, 0, offset); err != nil {
		return res, false, err
	}

	if e.Resource != nil {
		id, err := codecOf(*e.Resource)
		if err != nil {
			return res, false, err
		}
		if e.Resource.Size > math.MaxUint32 {
			return res, false, fmt.Errorf("%w: entry %s", gamepak.ErrSizeOverflow, e.Path)
		}

		n, err := gamepak.CopyStored(w, *e.Resource, copyBuf)
		if err != nil {
			return res, false, err
		}

		f.codec = id
		res.StoredSize = n
		res.Size = e.Resource.Size
		res.Codecs = e.Resource.Codecs
		res.SizeBound = e.Resource.SizeBound

		return res, false, f.setSizes(n, e.Resource.Size, offset)
	}

	if e.Input == nil {
		return res, false, fmt.Errorf("entry %s: missing input/source", e.Path)
	}

	in := *e.Input
	candidate := in.SizeHint > 0 && in.SizeHint <= policy.MaxSize() && policy.ShouldCompress(e.Path, in.SizeHint)
	if !candidate {
		rc, err := gamepak.OpenInput(in)
		if err != nil {
			return res, false, err
		}

		n, copyErr := gamepak.CopyBounded(w, rc, math.MaxUint32-offset, copyBuf)
		closeErr := rc.Close()
		if copyErr != nil {
			return res, false, fmt.Errorf("stream input %s: %w", e.Path, copyErr)
		}
		if closeErr != nil {
			return res, false, fmt.Errorf("close input %s: %w", e.Path, closeErr)
		}

		res.StoredSize, res.Size = n, n
		return res, false, f.setSizes(n, n, offset)
	}

	raw, err := gamepak.ReadInput(in, policy.MaxSize(), copyBuf)
	if err != nil {
		return res, candidate, err
	}

	payload := raw
	f.codec = CodecStored
	if packed, err := encoder.Encode(raw); err == nil && len(packed) < len(raw) {
		payload = packed
		f.codec = codecID
		res.Codecs, _, _ = codecID.chain()
	}

	if _, err := w.Write(payload); err != nil {
		return res, candidate, fmt.Errorf("write payload %s: %w", e.Path, err)
	}

	res.StoredSize = int64(len(payload))
	res.Size = int64(len(raw))

	return res, candidate, f.setSizes(res.StoredSize, res.Size, offset)
}

// setSizes range-checks and stores record fields.
func (f *dirChild) setSizes(stored, size, offset int64) error {
	s, err := gamepak.CheckedUint32(f.entry.Path, stored, offset)
	if err != nil {
		return err
	}
	if size < 0 || size > math.MaxUint32 {
		return fmt.Errorf("%w: entry %s", gamepak.ErrSizeOverflow, f.entry.Path)
	}

	f.offset = uint32(offset) //nolint:gosec // checked by CheckedUint32
	f.stored = s
	f.size = uint32(size)

	return nil
}

// encodeChildren serializes the records of one folder.
func encodeChildren(buf *bytes.Buffer, n *dirNode, enc gamepak.NameEncoding) error {
	for _, c := range n.children {
		name, err := enc.Encode(c.name)
		if err != nil {
			return err
		}
		if len(name) > math.MaxUint8 {
			return fmt.Errorf("%w: segment %q longer than %d bytes", gamepak.ErrInvalidEntryPath, c.name, math.MaxUint8)
		}

		if c.folder != nil {
			buf.WriteByte(KindFolder)
			buf.WriteByte(byte(len(name)))
			buf.Write(name)
			_ = binary.Write(buf, binary.LittleEndian, uint32(len(c.folder.children))) //nolint:gosec // bounded by input count
			if err := encodeChildren(buf, c.folder, enc); err != nil {
				return err
			}

			continue
		}

		buf.WriteByte(KindFile)
		buf.WriteByte(byte(len(name)))
		buf.Write(name)
		buf.WriteByte(byte(c.codec))
		_ = binary.Write(buf, binary.LittleEndian, c.offset)
		_ = binary.Write(buf, binary.LittleEndian, c.stored)
		_ = binary.Write(buf, binary.LittleEndian, c.size)
	}

	return nil
}
