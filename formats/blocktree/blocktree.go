// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

/*
Package blocktree implements BTRE, a container whose folder records point
at child blocks stored elsewhere in the directory.

Layout (little-endian):

	header: "BTRE" | flags u32 | dir offset u32 | dir stored size u32 |
	        dir size bound u32 | root record count u32
	directory: 48-byte records, root block at directory offset 0
	  name [32] NUL padded | kind u8 | codec u8 | reserved u16 | a u32 | b u32 | c u32
	  folder: a = child block offset inside the directory, b = child count
	  file:   a = absolute payload offset, b = stored size, c = size
	  label:  ignored

With FlagDeflatedDir the directory is a zlib stream whose decoded size is
only known to be at most the size bound. Paths are joined with "\".
*/
package blocktree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/woozymasta/gamepak"
)

// Record kinds.
const (
	KindFile uint8 = iota
	KindFolder
	KindLabel
)

// File codecs.
const (
	CodecStored uint8 = iota
	CodecZlib
	CodecZstd
)

const (
	// FlagDeflatedDir marks a zlib compressed directory.
	FlagDeflatedDir = 1

	headerSize = 24
	recordSize = 48
	nameSize   = 32
)

var magic = []byte("BTRE")

var (
	// ErrBadMagic means the container does not start with "BTRE".
	ErrBadMagic = fmt.Errorf("%w: btre: bad magic", gamepak.ErrValidation)
	// ErrBadFlags means unknown header flags are set.
	ErrBadFlags = fmt.Errorf("%w: btre: unknown flags", gamepak.ErrValidation)
)

// Format is the BTRE plugin.
type Format struct{}

// New returns the BTRE plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "blocktree",
		Name:       "Block tree container",
		Extensions: []string{"btre"},
		Caps:       gamepak.CapRead,
	}
}

// header is the fixed BTRE header.
type header struct {
	flags     uint32
	dirOffset int64
	dirStored int64
	dirBound  int64
	rootCount int64
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "btre")

	h, err := readHeader(r.Clone())
	if err != nil {
		if head, perr := r.Peek(int64(len(magic))); perr == nil {
			s.Magic(bytes.Equal(head, magic))
		}

		return s.Value(), nil
	}

	s.Magic(true)
	s.Range(r, h.dirOffset, h.dirStored)

	return s.Value(), nil
}

// readHeader reads and validates the header at the cursor.
func readHeader(r *gamepak.Reader) (header, error) {
	head, err := r.Bytes(int64(len(magic)))
	if err != nil {
		return header{}, err
	}
	if !bytes.Equal(head, magic) {
		return header{}, ErrBadMagic
	}

	var fields [5]uint32
	for i := range fields {
		if fields[i], err = r.U32(); err != nil {
			return header{}, err
		}
	}

	h := header{
		flags:     fields[0],
		dirOffset: int64(fields[1]),
		dirStored: int64(fields[2]),
		dirBound:  int64(fields[3]),
		rootCount: int64(fields[4]),
	}
	if h.flags&^FlagDeflatedDir != 0 {
		return header{}, fmt.Errorf("%w: 0x%08x", ErrBadFlags, h.flags)
	}

	return h, nil
}

// Parse implements gamepak.Plugin.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	dir, err := readDirectory(r, h)
	if err != nil {
		return nil, err
	}

	tree := gamepak.Tree{
		Record:     func(r *gamepak.Reader) (gamepak.Node, error) { return readRecord(r, env) },
		Separator:  `\`,
		RecordSize: recordSize,
		Mode:       gamepak.TreeIndirect,
	}

	resources, err := tree.Walk(dir, h.rootCount)
	if err != nil {
		return nil, fmt.Errorf("btre directory: %w", err)
	}

	return resources, nil
}

// readDirectory returns a reader over the decoded directory blob.
func readDirectory(r *gamepak.Reader, h header) (*gamepak.Reader, error) {
	if err := r.CheckRange(h.dirOffset, h.dirStored); err != nil {
		return nil, fmt.Errorf("btre directory: %w", err)
	}

	if h.flags&FlagDeflatedDir == 0 {
		return r.SubReader(h.dirOffset, h.dirStored)
	}

	if err := r.CheckDecodedSize(h.dirBound); err != nil {
		return nil, fmt.Errorf("btre directory bound: %w", err)
	}
	if err := r.SeekTo(h.dirOffset); err != nil {
		return nil, err
	}

	stored, err := r.Bytes(h.dirStored)
	if err != nil {
		return nil, err
	}

	blob, err := gamepak.DecodeBytes([]gamepak.Codec{gamepak.Zlib{}}, stored, h.dirBound, true)
	if err != nil {
		return nil, fmt.Errorf("btre directory: %w", err)
	}

	return gamepak.NewBytesReader(blob, r.Name(), gamepak.WithReaderLimits(r.Limits()), gamepak.WithReaderNameEncoding(r.NameEncoding())), nil
}

// readRecord decodes one 48-byte directory record.
func readRecord(r *gamepak.Reader, env *gamepak.Env) (gamepak.Node, error) {
	raw, err := r.Bytes(recordSize)
	if err != nil {
		return gamepak.Node{}, err
	}

	name := r.NameEncoding().Decode(trimNUL(raw[:nameSize]))
	kind := raw[nameSize]
	codec := raw[nameSize+1]
	a := int64(binary.LittleEndian.Uint32(raw[36:40]))
	b := int64(binary.LittleEndian.Uint32(raw[40:44]))
	c := int64(binary.LittleEndian.Uint32(raw[44:48]))

	switch kind {
	case KindFolder:
		return gamepak.Node{Kind: gamepak.NodeFolder, Name: name, Offset: a, Count: b}, nil
	case KindLabel:
		return gamepak.Node{Kind: gamepak.NodeSkip}, nil
	case KindFile:
	default:
		return gamepak.Node{}, fmt.Errorf("%w: btre: record kind %d", gamepak.ErrValidation, kind)
	}

	res := gamepak.Resource{Offset: a, StoredSize: b, Size: c}
	switch codec {
	case CodecStored:
	case CodecZlib:
		res.Codecs = []gamepak.Codec{gamepak.Zlib{}}
	case CodecZstd:
		res.Codecs = []gamepak.Codec{gamepak.Zstd{}}
	default:
		env.Skip(name, fmt.Errorf("%w: btre codec %d", gamepak.ErrCodecUnsupported, codec))
		return gamepak.Node{Kind: gamepak.NodeSkip}, nil
	}

	return gamepak.Node{Kind: gamepak.NodeFile, Name: name, Resource: res}, nil
}

// trimNUL cuts a fixed-width field at its first NUL.
func trimNUL(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}

	return b
}
