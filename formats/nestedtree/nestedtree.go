// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

/*
Package nestedtree implements NTRE, a container whose directory nests
folder records inline.

Layout (little-endian):

	header:  "NTRE" | directory offset u32 | top-level record count u32
	records: kind u8, then per kind
	  file:   name len u8 | name | codec u8 | offset u32 | stored u32 | size u32
	  folder: name len u8 | name | child count u32 (children follow inline)
	  open:   name len u8 | name (segment stays until a pop record)
	  pop:    no fields
	  pad:    no fields

Payload offsets are absolute. Paths are joined with "/".
*/
package nestedtree

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
	KindOpen
	KindPop
	KindPad
)

const (
	headerSize = 12

	// OptionCodec selects the writer codec for compression candidates:
	// zstd (default), zlib, lzhuf, lz4 or deflate.
	OptionCodec = "ntre.codec"
)

var magic = []byte("NTRE")

// ErrBadMagic means the container does not start with "NTRE".
var ErrBadMagic = fmt.Errorf("%w: ntre: bad magic", gamepak.ErrValidation)

// Format is the NTRE plugin.
type Format struct{}

// New returns the NTRE plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "nestedtree",
		Name:       "Nested tree container",
		Extensions: []string{"ntre"},
		Caps:       gamepak.CapRead | gamepak.CapWrite | gamepak.CapReplace | gamepak.CapRename,
	}
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "ntre")

	head, err := r.Peek(headerSize)
	if err != nil || !s.Magic(bytes.Equal(head[:4], magic)) {
		return s.Value(), nil
	}

	dirOffset := int64(binary.LittleEndian.Uint32(head[4:8]))
	s.Structure(dirOffset >= headerSize && r.CheckOffset(dirOffset) == nil)

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

	dirOffset, err := r.U32()
	if err != nil {
		return nil, err
	}
	count, err := r.U32()
	if err != nil {
		return nil, err
	}

	if err := r.SeekTo(int64(dirOffset)); err != nil {
		return nil, err
	}

	tree := gamepak.Tree{
		Record:    func(r *gamepak.Reader) (gamepak.Node, error) { return readRecord(r, env) },
		Separator: "/",
		Mode:      gamepak.TreeInline,
	}

	return tree.Walk(r, int64(count))
}

// readRecord decodes one directory record. File records with an unknown
// codec are reported through env and turned into pad records.
func readRecord(r *gamepak.Reader, env *gamepak.Env) (gamepak.Node, error) {
	kind, err := r.U8()
	if err != nil {
		return gamepak.Node{}, err
	}

	switch kind {
	case KindPop:
		return gamepak.Node{Kind: gamepak.NodePop}, nil
	case KindPad:
		return gamepak.Node{Kind: gamepak.NodeSkip}, nil
	case KindFile, KindFolder, KindOpen:
	default:
		return gamepak.Node{}, fmt.Errorf("%w: ntre: record kind %d at %d", gamepak.ErrValidation, kind, r.Pos()-1)
	}

	nameLen, err := r.U8()
	if err != nil {
		return gamepak.Node{}, err
	}
	raw, err := r.Bytes(int64(nameLen))
	if err != nil {
		return gamepak.Node{}, err
	}
	name := r.NameEncoding().Decode(raw)

	switch kind {
	case KindOpen:
		return gamepak.Node{Kind: gamepak.NodeOpen, Name: name}, nil
	case KindFolder:
		n, err := r.U32()
		if err != nil {
			return gamepak.Node{}, err
		}

		return gamepak.Node{Kind: gamepak.NodeFolder, Name: name, Count: int64(n)}, nil
	}

	var fields [13]byte
	b, err := r.Bytes(int64(len(fields)))
	if err != nil {
		return gamepak.Node{}, err
	}
	copy(fields[:], b)

	id := CodecID(fields[0])
	res := gamepak.Resource{
		Offset:     int64(binary.LittleEndian.Uint32(fields[1:5])),
		StoredSize: int64(binary.LittleEndian.Uint32(fields[5:9])),
		Size:       int64(binary.LittleEndian.Uint32(fields[9:13])),
	}

	chain, bounded, err := id.chain()
	if err != nil {
		env.Skip(name, err)
		return gamepak.Node{Kind: gamepak.NodeSkip}, nil
	}
	if err := r.CheckDecodedSize(res.Size); err != nil {
		env.Skip(name, err)
		return gamepak.Node{Kind: gamepak.NodeSkip}, nil
	}

	res.Codecs = chain
	res.SizeBound = bounded

	return gamepak.Node{Kind: gamepak.NodeFile, Name: name, Resource: res}, nil
}
