// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package idxdat reads split containers made of a directory file (.idx) and
// a payload file (.dat) sharing its base name.
//
// The directory is little-endian: magic "IDXD", version u16, key length u16
// and key bytes, entry count u32, then per entry a name length u16, name,
// payload offset u32, payload size u32 and key phase u16. With a non-empty
// key every payload is XORed by key[(phase + P) mod len(key)] where P is the
// byte position inside the .dat file.
package idxdat

import (
	"bytes"
	"fmt"

	"github.com/woozymasta/gamepak"
)

const (
	// Version is the only supported directory version.
	Version = 1

	// DataExt is the extension of the payload sibling.
	DataExt = "dat"

	// MaxKeyLen caps the XOR key length.
	MaxKeyLen = 1024
)

var magic = []byte("IDXD")

var (
	// ErrBadMagic means the directory does not start with "IDXD".
	ErrBadMagic = fmt.Errorf("%w: idxdat: bad magic", gamepak.ErrValidation)
	// ErrVersion means the directory version is unsupported.
	ErrVersion = fmt.Errorf("%w: idxdat: unsupported version", gamepak.ErrValidation)
)

// Format is the split .idx/.dat plugin.
type Format struct{}

// New returns the split .idx/.dat plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "idxdat",
		Name:       "Split index and data",
		Extensions: []string{"idx"},
		Caps:       gamepak.CapRead,
	}
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "idx")

	head, err := r.Peek(int64(len(magic)) + 2)
	if err != nil || !s.Magic(bytes.Equal(head[:len(magic)], magic)) {
		return s.Value(), nil
	}

	s.Structure(head[4] == Version && head[5] == 0)

	return s.Value(), nil
}

// Parse implements gamepak.Plugin. The .dat sibling is required.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	head, err := r.Bytes(int64(len(magic)))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic) {
		return nil, ErrBadMagic
	}

	version, err := r.U16()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	keyLen, err := r.U16()
	if err != nil {
		return nil, err
	}
	if keyLen > MaxKeyLen {
		return nil, fmt.Errorf("%w: key length %d", gamepak.ErrValidation, keyLen)
	}
	key, err := r.Bytes(int64(keyLen))
	if err != nil {
		return nil, err
	}

	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	count := int64(n)
	if err := r.CheckCount(count); err != nil {
		return nil, err
	}

	data, err := env.OpenSibling(DataExt)
	if err != nil {
		return nil, err
	}

	out := make([]gamepak.Resource, 0, min(count, 4096))
	for range count {
		nameLen, err := r.U16()
		if err != nil {
			return nil, err
		}
		raw, err := r.Bytes(int64(nameLen))
		if err != nil {
			return nil, err
		}
		offset, err := r.U32()
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		phase, err := r.U16()
		if err != nil {
			return nil, err
		}

		name := r.NameEncoding().Decode(raw)
		if err := r.CheckName(name); err != nil {
			env.Skip(name, err)
			continue
		}

		res := gamepak.Resource{
			Source:     data.Source(),
			Path:       name,
			Offset:     int64(offset),
			StoredSize: int64(size),
			Size:       int64(size),
		}
		res.SetProperty(gamepak.PropPhase, int64(phase))
		if len(key) > 0 {
			res.Codecs = []gamepak.Codec{gamepak.XORKey{Key: key, Phase: int64(phase), Origin: int64(offset)}}
		}

		out = append(out, res)
	}

	return out, nil
}
