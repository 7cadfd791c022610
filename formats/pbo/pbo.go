// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package pbo implements the Bohemia Interactive PBO container used by
// Arma and DayZ: a "Vers" header with key-value pairs, a NUL-terminated
// name table with 20-byte records, sequential payloads with optional LZSS
// compression and an optional SHA1 trailer.
package pbo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/woozymasta/gamepak"
)

// Binary layout and format limits.
const (
	headerSize = 21      // fixed header record: empty name + 20-byte fields
	recordSize = 20      // fields of one entry record
	shaSize    = 20      // SHA1 digest size in trailer
	maxNameLen = 512     // max entry filename length
	maxPBOData = 1 << 32 // max addressable payload in classic PBO (4 GiB)
)

// MimeType is the 4-byte PBO entry type (stored little-endian).
type MimeType uint32

// PBO entry mime constants.
const (
	// MimeHeader marks the first header record ("Vers").
	MimeHeader MimeType = 0x56657273
	// MimeCompress marks LZSS-compressed data ("Cprs").
	MimeCompress MimeType = 0x43707273
	// MimeEncoded marks VBS-encrypted data ("Enco").
	MimeEncoded MimeType = 0x456e6372
	// MimeNil marks uncompressed or terminator entry.
	MimeNil MimeType = 0x00000000
)

// OffsetMode controls how payload offsets are resolved from the index table.
type OffsetMode string

const (
	// OffsetModeSequential ignores stored index offsets and derives payload offsets sequentially.
	OffsetModeSequential OffsetMode = "sequential"
	// OffsetModeStoredCompat tries to use non-zero stored offsets and falls back to sequential on malformed data.
	OffsetModeStoredCompat OffsetMode = "stored_compat"
	// OffsetModeStoredStrict requires stored non-zero offsets to be valid and fails otherwise.
	OffsetModeStoredStrict OffsetMode = "stored_strict"
)

// Plugin option keys.
const (
	// OptionOffsets selects an OffsetMode.
	OptionOffsets = "pbo.offsets"
	// OptionJunkFilter set to "true" skips malformed entries instead of listing them.
	OptionJunkFilter = "pbo.junk_filter"
)

var (
	// ErrInvalidHeader means the leading "Vers" record is missing or malformed.
	ErrInvalidHeader = fmt.Errorf("%w: invalid pbo header", gamepak.ErrValidation)
	// ErrInvalidEntryOffset means a resolved payload offset is outside the file.
	ErrInvalidEntryOffset = fmt.Errorf("%w: invalid pbo entry offset", gamepak.ErrValidation)
	// errEncrypted marks entries with the "Enco" mime.
	errEncrypted = fmt.Errorf("%w: encrypted pbo entry", gamepak.ErrCodecUnsupported)
)

// Format is the PBO plugin. The zero value is ready to use.
type Format struct{}

// New returns the PBO plugin.
func New() *Format {
	return &Format{}
}

// entry is one parsed index record.
type entry struct {
	path         string
	offset       uint32
	dataSize     uint32
	originalSize uint32
	timestamp    uint32
	mime         MimeType
}

// compressed reports whether the payload is LZSS packed.
func (e entry) compressed() bool {
	return e.mime == MimeCompress || (e.originalSize != 0 && e.dataSize < e.originalSize)
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "pbo",
		Name:       "Bohemia PBO",
		Extensions: []string{"pbo"},
		Platforms:  []string{"Arma", "DayZ"},
		Caps:       gamepak.CapRead | gamepak.CapWrite | gamepak.CapReplace | gamepak.CapRename,
	}
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "pbo")

	var head [headerSize]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		return s.Value(), nil
	}

	if !s.Magic(head[0] == 0 && MimeType(binary.LittleEndian.Uint32(head[1:5])) == MimeHeader) {
		return s.Value(), nil
	}

	s.Structure(allZero(head[5:]))

	if _, err := parseHeaderSection(r.Clone()); err == nil {
		s.Structure(true)
	}

	return s.Value(), nil
}

// Parse implements gamepak.Plugin.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	mode := OffsetModeSequential
	if v, ok := env.Option(OptionOffsets); ok && v != "" {
		mode = OffsetMode(v)
	}

	headers, err := parseHeaderSection(r)
	if err != nil {
		return nil, err
	}
	env.SetHeaders(headers)

	entries, err := parseEntries(r)
	if err != nil {
		return nil, err
	}

	dataStart := r.Pos()
	if err := resolveEntryOffsets(entries, dataStart, r.Len(), mode); err != nil {
		return nil, err
	}

	if v, _ := env.Option(OptionJunkFilter); v == "true" {
		entries = filterJunkEntries(entries, env)
	}

	if _, ok := Trailer(r); ok && env.Logger != nil {
		env.Logger.Debug("pbo sha1 trailer present", "archive", env.Name())
	}

	out := make([]gamepak.Resource, 0, len(entries))
	for _, e := range entries {
		if e.mime == MimeEncoded {
			env.Skip(e.path, errEncrypted)
			continue
		}

		out = append(out, e.resource())
	}

	return out, nil
}

// resource converts an index record to a resource.
func (e entry) resource() gamepak.Resource {
	res := gamepak.Resource{
		Path:       e.path,
		Offset:     int64(e.offset),
		StoredSize: int64(e.dataSize),
		Size:       int64(e.dataSize),
	}
	res.SetProperty(gamepak.PropTimestamp, e.timestamp)
	res.SetProperty(gamepak.PropMime, e.mime)

	if e.compressed() {
		res.Codecs = []gamepak.Codec{gamepak.LZSS{}}
		res.Size = int64(e.originalSize)
	}

	return res
}

// parseHeaderSection parses the fixed header record and key-value header pairs.
// The cursor is left at the entry table.
func parseHeaderSection(r *gamepak.Reader) ([]gamepak.HeaderPair, error) {
	header, err := r.Bytes(headerSize)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	// The first directory entry must be "Vers".
	if header[0] != 0 || MimeType(binary.LittleEndian.Uint32(header[1:5])) != MimeHeader {
		return nil, ErrInvalidHeader
	}

	headers := make([]gamepak.HeaderPair, 0, 4)
	for {
		key, err := r.CString(maxNameLen)
		if err != nil {
			return nil, fmt.Errorf("read header key: %w", err)
		}
		if key == "" {
			break
		}

		value, err := r.CString(maxNameLen)
		if err != nil {
			return nil, fmt.Errorf("read header value: %w", err)
		}

		if err := r.CheckCount(int64(len(headers) + 1)); err != nil {
			return nil, fmt.Errorf("header pairs: %w", err)
		}
		headers = append(headers, gamepak.HeaderPair{Key: key, Value: value})
	}

	return headers, nil
}

// parseEntries reads index records up to the all-zero terminator.
func parseEntries(r *gamepak.Reader) ([]entry, error) {
	entries := make([]entry, 0, estimateEntryCapacity(r.Remaining()))

	for {
		filename, err := r.CString(maxNameLen)
		if err != nil {
			return nil, fmt.Errorf("read entry filename: %w", err)
		}

		fields, err := r.Bytes(recordSize)
		if err != nil {
			return nil, fmt.Errorf("read entry fields: %w", err)
		}

		e := entry{
			path:         filename,
			mime:         MimeType(binary.LittleEndian.Uint32(fields[0:4])),
			originalSize: binary.LittleEndian.Uint32(fields[4:8]),
			offset:       binary.LittleEndian.Uint32(fields[8:12]),
			timestamp:    binary.LittleEndian.Uint32(fields[12:16]),
			dataSize:     binary.LittleEndian.Uint32(fields[16:20]),
		}

		if filename == "" && allZero(fields) {
			return entries, nil
		}

		if err := r.CheckCount(int64(len(entries) + 1)); err != nil {
			return nil, fmt.Errorf("entry table: %w", err)
		}

		entries = append(entries, e)
	}
}

// estimateEntryCapacity returns a conservative initial capacity for parsed entry metadata.
func estimateEntryCapacity(remainingBytes int64) int {
	if remainingBytes <= 0 {
		return 0
	}

	const (
		minCap = 16
		maxCap = 8192
		// remainingBytes includes payload region, so keep estimate intentionally conservative.
		avgEntryBytes = 512
	)

	return int(min(max(remainingBytes/avgEntryBytes, minCap), maxCap))
}

// resolveEntryOffsets applies selected offset policy and validates payload bounds.
func resolveEntryOffsets(entries []entry, dataStart, totalSize int64, mode OffsetMode) error {
	switch mode {
	case OffsetModeSequential:
		if err := assignSequentialOffsets(entries, dataStart); err != nil {
			return err
		}
	case OffsetModeStoredCompat:
		usedStored, err := tryAssignStoredOffsets(entries, dataStart, totalSize)
		if err != nil || !usedStored {
			if err := assignSequentialOffsets(entries, dataStart); err != nil {
				return err
			}
		}
	case OffsetModeStoredStrict:
		usedStored, err := tryAssignStoredOffsets(entries, dataStart, totalSize)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEntryOffset, err)
		}
		if !usedStored {
			if err := assignSequentialOffsets(entries, dataStart); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown offset mode %q", ErrInvalidEntryOffset, mode)
	}

	return validateResolvedOffsets(entries, dataStart, totalSize)
}

// assignSequentialOffsets derives payload offsets from dataStart and previous entry sizes.
func assignSequentialOffsets(entries []entry, dataStart int64) error {
	if dataStart < 0 || uint64(dataStart) > uint64(math.MaxUint32) {
		return fmt.Errorf("%w: data start offset %d", gamepak.ErrSizeOverflow, dataStart)
	}

	current := uint32(dataStart) //nolint:gosec // bounded by check above
	for i := range entries {
		entries[i].offset = current

		if uint64(entries[i].dataSize) > uint64(math.MaxUint32-current) {
			return fmt.Errorf("%w: entry %s size would exceed 4 GiB", gamepak.ErrSizeOverflow, entries[i].path)
		}

		current += entries[i].dataSize
	}

	return nil
}

// tryAssignStoredOffsets tries to apply stored non-zero index offsets in relative or absolute form.
func tryAssignStoredOffsets(entries []entry, dataStart, totalSize int64) (bool, error) {
	hasMeaningful := false
	for i := range entries {
		if entries[i].offset != 0 {
			hasMeaningful = true
			break
		}
	}
	if !hasMeaningful {
		return false, nil
	}

	// First offset below dataStart usually means relative, otherwise absolute.
	order := []bool{true, false}
	if first := entries[0].offset; first == 0 || int64(first) < dataStart {
		order = []bool{false, true}
	}

	for _, absolute := range order {
		if err := assignStoredOffsets(entries, dataStart, totalSize, absolute); err == nil {
			return true, nil
		}
	}

	return false, errors.New("stored offsets are malformed")
}

// assignStoredOffsets applies stored offsets as absolute or relative-to-dataStart values.
// Entries are left unchanged on failure.
func assignStoredOffsets(entries []entry, dataStart, totalSize int64, absolute bool) error {
	adjust := dataStart
	if absolute {
		adjust = 0
	}

	resolved := make([]uint32, len(entries))
	prev := int64(-1)
	for i := range entries {
		offset := int64(entries[i].offset) + adjust
		if offset < dataStart {
			return fmt.Errorf("entry %s offset before data start", entries[i].path)
		}
		if uint64(offset) > uint64(math.MaxUint32) {
			return fmt.Errorf("entry %s offset out of range", entries[i].path)
		}
		if offset < prev {
			return fmt.Errorf("entry %s offset is not monotonic", entries[i].path)
		}

		end := offset + int64(entries[i].dataSize)
		if end > totalSize {
			return fmt.Errorf("entry %s payload out of file bounds", entries[i].path)
		}

		resolved[i] = uint32(offset) //nolint:gosec // bounded by range check above
		prev = offset
	}

	for i := range entries {
		entries[i].offset = resolved[i]
	}

	return nil
}

// validateResolvedOffsets validates final offsets regardless of policy branch.
func validateResolvedOffsets(entries []entry, dataStart, totalSize int64) error {
	for i := range entries {
		if err := gamepak.CheckRange(int64(entries[i].offset), int64(entries[i].dataSize), totalSize); err != nil {
			return fmt.Errorf("%w: entry %s: %w", ErrInvalidEntryOffset, entries[i].path, err)
		}
		if int64(entries[i].offset) < dataStart {
			return fmt.Errorf("%w: entry %s offset before data start", ErrInvalidEntryOffset, entries[i].path)
		}
	}

	return nil
}

// filterJunkEntries removes malformed or unusable entries and records them as skipped.
func filterJunkEntries(entries []entry, env *gamepak.Env) []entry {
	filtered := make([]entry, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.dataSize == 0:
			env.Skip(e.path, errors.New("empty payload"))
		case e.mime == MimeCompress && e.originalSize == 0:
			env.Skip(e.path, errors.New("compressed entry without original size"))
		default:
			if _, err := gamepak.NormalizeEntryPath(e.path, `\`); err != nil {
				env.Skip(e.path, err)
				continue
			}

			filtered = append(filtered, e)
		}
	}

	return filtered
}

// allZero reports whether every byte of b is zero.
func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}

	return true
}
