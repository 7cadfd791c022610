// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package pbo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/woozymasta/gamepak"
)

// planItem is one entry to be written: a new input or a kept resource.
type planItem struct {
	input *gamepak.Input
	res   *gamepak.Resource
	path  string
	name  []byte
}

// record holds index fields of one written entry.
type record struct {
	dataSize     uint32
	originalSize uint32
	timestamp    uint32
	mime         MimeType
	candidate    bool
}

// Write implements gamepak.Writer. Inputs are sorted by path; entries
// matching the compression policy are LZSS packed when it saves space.
func (*Format) Write(ctx context.Context, w io.WriteSeeker, inputs []gamepak.Input, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	prepared, err := gamepak.PrepareInputs(inputs, `\`)
	if err != nil {
		return nil, err
	}

	plan := make([]planItem, len(prepared))
	for i := range prepared {
		plan[i] = planItem{input: &prepared[i], path: prepared[i].Path}
	}

	return writeArchive(ctx, w, plan, opts)
}

// Rewrite implements gamepak.Replacer. Kept resources are copied in their
// stored encoding with their original index fields.
func (*Format) Rewrite(ctx context.Context, w io.WriteSeeker, entries []gamepak.RewriteEntry, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	if len(entries) == 0 {
		return nil, gamepak.ErrEmptyInputs
	}

	plan := make([]planItem, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		if e.Input == nil && e.Resource == nil {
			return nil, fmt.Errorf("entry %s: missing input/source", e.Path)
		}

		p, err := gamepak.NormalizeEntryPath(e.Path, `\`)
		if err != nil {
			return nil, err
		}

		plan[i] = planItem{input: e.Input, res: e.Resource, path: p}
		paths[i] = p
	}

	if err := gamepak.ValidateUniquePaths(paths); err != nil {
		return nil, err
	}

	return writeArchive(ctx, w, plan, opts)
}

// writeArchive writes the header, a placeholder index, payloads, then
// patches index records once payload sizes are known.
func writeArchive(ctx context.Context, out io.WriteSeeker, plan []planItem, opts gamepak.WriteOptions) (*gamepak.WriteResult, error) {
	if out == nil {
		return nil, gamepak.ErrNilWriter
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts = opts.WithDefaults()
	tracker := gamepak.NewWriteTracker(opts)

	policy, err := gamepak.NewCompressPolicy(opts)
	if err != nil {
		return nil, fmt.Errorf("compile compress rules: %w", err)
	}

	for i := range plan {
		name, err := opts.NameEncoding.Encode(plan[i].path)
		if err != nil {
			return nil, fmt.Errorf("encode entry name %s: %w", plan[i].path, err)
		}
		if len(name) > maxNameLen {
			return nil, fmt.Errorf("%w: entry name %s is longer than %d bytes", gamepak.ErrInvalidEntryPath, plan[i].path, maxNameLen)
		}

		plan[i].name = name
	}

	w, releaseWriter := gamepak.AcquireWriter(out, opts.WriterBufferSize)
	defer releaseWriter()

	if err := writeHeaders(w, opts.Headers); err != nil {
		return nil, err
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush headers: %w", err)
	}

	entriesStart, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek after headers: %w", err)
	}

	var placeholder [recordSize]byte
	for _, item := range plan {
		if _, err := w.Write(item.name); err != nil {
			return nil, fmt.Errorf("write entry path: %w", err)
		}

		if err := w.WriteByte(0); err != nil {
			return nil, fmt.Errorf("write entry path terminator: %w", err)
		}

		if _, err := w.Write(placeholder[:]); err != nil {
			return nil, fmt.Errorf("write entry placeholder: %w", err)
		}
	}

	if err := w.WriteByte(0); err != nil {
		return nil, fmt.Errorf("write entries terminator: %w", err)
	}

	if _, err := w.Write(placeholder[:]); err != nil {
		return nil, fmt.Errorf("write entries tail fields: %w", err)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush after entries: %w", err)
	}

	dataStart, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	if dataStart > maxPBOData {
		return nil, fmt.Errorf("%w: data start offset %d", gamepak.ErrSizeOverflow, dataStart)
	}

	copyBuf, releaseCopyBuffer := gamepak.AcquireCopyBuffer()
	defer releaseCopyBuffer()

	records := make([]record, 0, len(plan))
	currentOffset := dataStart
	for _, item := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var rec record
		if item.res != nil {
			rec, err = writeKeptPayload(w, *item.res, item.path, currentOffset, copyBuf)
		} else {
			rec, err = writeInputPayload(w, *item.input, item.path, policy, currentOffset, copyBuf)
		}
		if err != nil {
			return nil, err
		}

		res := gamepak.Resource{
			Path:       item.path,
			Offset:     currentOffset,
			StoredSize: int64(rec.dataSize),
			Size:       int64(rec.dataSize),
		}
		res.SetProperty(gamepak.PropMime, rec.mime)
		res.SetProperty(gamepak.PropTimestamp, rec.timestamp)
		if rec.mime == MimeCompress {
			res.Codecs = []gamepak.Codec{gamepak.LZSS{}}
			res.Size = int64(rec.originalSize)
		}
		tracker.Entry(res, rec.candidate)

		records = append(records, rec)
		currentOffset += int64(rec.dataSize)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush payloads: %w", err)
	}

	pos := entriesStart
	var fields [recordSize]byte
	for i, item := range plan {
		pos += int64(len(item.name) + 1)
		if _, err := out.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek to entry %d: %w", i, err)
		}

		rec := records[i]
		binary.LittleEndian.PutUint32(fields[0:4], uint32(rec.mime))
		binary.LittleEndian.PutUint32(fields[4:8], rec.originalSize)
		// Common tooling emits zero in index offset and derives offsets sequentially.
		binary.LittleEndian.PutUint32(fields[8:12], 0)
		binary.LittleEndian.PutUint32(fields[12:16], rec.timestamp)
		binary.LittleEndian.PutUint32(fields[16:20], rec.dataSize)
		if _, err := out.Write(fields[:]); err != nil {
			return nil, fmt.Errorf("patch entry %d: %w", i, err)
		}

		pos += recordSize
	}

	if _, err := out.Seek(currentOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}

	return tracker.Result(dataStart - entriesStart), nil
}

// writeHeaders writes the "Vers" record and key-value pairs.
func writeHeaders(w io.Writer, headers []gamepak.HeaderPair) error {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[1:5], uint32(MimeHeader))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, h := range headers {
		value := h.Value
		if strings.EqualFold(strings.TrimSpace(h.Key), "prefix") {
			value = NormalizePrefix(value)
		}

		for _, part := range []string{h.Key, value} {
			if strings.IndexByte(part, 0) >= 0 {
				return fmt.Errorf("header %q contains NUL", h.Key)
			}
			if _, err := io.WriteString(w, part); err != nil {
				return fmt.Errorf("write header %q: %w", h.Key, err)
			}
			if _, err := w.Write([]byte{0}); err != nil {
				return fmt.Errorf("write header terminator: %w", err)
			}
		}
	}

	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("write header terminator: %w", err)
	}

	return nil
}

// NormalizePrefix converts a "prefix" header value to backslash form.
func NormalizePrefix(raw string) string {
	normalized, err := gamepak.NormalizeEntryPath(raw, `\`)
	if err != nil {
		return ""
	}

	return normalized
}

// writeKeptPayload copies the stored bytes of an existing PBO entry.
func writeKeptPayload(dst io.Writer, res gamepak.Resource, path string, currentOffset int64, copyBuf []byte) (record, error) {
	dataSize, err := gamepak.CheckedUint32(path, res.StoredSize, currentOffset)
	if err != nil {
		return record{}, err
	}

	if _, err := gamepak.CopyStored(dst, res, copyBuf); err != nil {
		return record{}, err
	}

	rec := record{dataSize: dataSize, mime: MimeNil}
	if ts, ok := res.Property(gamepak.PropTimestamp); ok {
		if v, ok := ts.(uint32); ok {
			rec.timestamp = v
		}
	}

	if res.Encoded() {
		if res.Codec() != (gamepak.LZSS{}).Name() {
			return record{}, fmt.Errorf("%w: entry %s is stored as %s", gamepak.ErrCodecUnsupported, path, res.Codec())
		}

		originalSize, err := gamepak.CheckedUint32(path, res.Size, 0)
		if err != nil {
			return record{}, err
		}

		rec.mime = MimeCompress
		rec.originalSize = originalSize
	}

	return rec, nil
}

// writeInputPayload writes one input. Known-size compression candidates are
// packed in memory; everything else is streamed raw.
func writeInputPayload(
	dst io.Writer,
	in gamepak.Input,
	path string,
	policy *gamepak.CompressPolicy,
	currentOffset int64,
	copyBuf []byte,
) (record, error) {
	maxEntrySize := int64(^uint32(0)) - currentOffset
	candidate := in.SizeHint > 0 && in.SizeHint <= maxEntrySize && policy.ShouldCompress(path, in.SizeHint)
	timestamp := gamepak.TimeToUint32(in.ModTime)

	if !candidate {
		rc, err := gamepak.OpenInput(in)
		if err != nil {
			return record{}, err
		}

		streamed, copyErr := gamepak.CopyBounded(dst, rc, maxEntrySize, copyBuf)
		closeErr := rc.Close()
		if copyErr != nil {
			return record{}, fmt.Errorf("stream input %s: %w", path, copyErr)
		}
		if closeErr != nil {
			return record{}, fmt.Errorf("close input %s: %w", path, closeErr)
		}

		dataSize, err := gamepak.CheckedUint32(path, streamed, currentOffset)
		if err != nil {
			return record{}, err
		}

		return record{dataSize: dataSize, mime: MimeNil, timestamp: timestamp}, nil
	}

	raw, err := gamepak.ReadInput(in, maxEntrySize, copyBuf)
	if err != nil {
		return record{}, err
	}

	originalSize, err := gamepak.CheckedUint32(path, int64(len(raw)), currentOffset)
	if err != nil {
		return record{}, err
	}

	rec := record{dataSize: originalSize, mime: MimeNil, timestamp: timestamp, candidate: true}
	payload := raw
	if policy.ShouldCompress(path, int64(len(raw))) {
		compressed, err := gamepak.LZSS{}.Encode(raw)
		if err != nil {
			return record{}, fmt.Errorf("compress %s: %w", path, err)
		}

		if len(compressed) < len(raw) {
			payload = compressed
			rec.mime = MimeCompress
			rec.originalSize = originalSize
			rec.dataSize = uint32(len(compressed)) //nolint:gosec // smaller than originalSize
		}
	}

	if _, err := dst.Write(payload); err != nil {
		return record{}, fmt.Errorf("write payload %s: %w", path, err)
	}

	return rec, nil
}
