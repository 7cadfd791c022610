// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// fakeFormat is a minimal "FAKE" container used by package tests:
// magic | count u8 | count * (name cstring | offset u32 | size u32) | payloads.
type fakeFormat struct {
	scoreErr   error
	parseErr   error
	guess      string
	id         string
	exts       []string
	score      int
	fixedScore bool
	panicScore bool
	panicParse bool
}

func (f *fakeFormat) Info() Info {
	return Info{ID: f.id, Name: "fake " + f.id, Extensions: f.exts, Caps: CapRead}
}

func (f *fakeFormat) Score(r *Reader) (int, error) {
	if f.panicScore {
		panic("score exploded")
	}
	if f.fixedScore {
		return f.score, f.scoreErr
	}

	var s Score
	s.Extension(r, f.exts...)
	head, err := r.Peek(4)
	if err == nil {
		s.Magic(bytes.Equal(head, []byte("FAKE")))
	}

	return s.Value(), nil
}

func (f *fakeFormat) Parse(r *Reader, env *Env) ([]Resource, error) {
	if f.panicParse {
		var m map[string]int
		m["boom"]++
	}
	if f.parseErr != nil {
		return nil, f.parseErr
	}

	if err := r.Skip(4); err != nil {
		return nil, err
	}
	count, err := r.U8()
	if err != nil {
		return nil, err
	}

	out := make([]Resource, 0, count)
	for range count {
		name, err := r.CString(0)
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

		if name == "" {
			env.Skip(name, errors.New("empty name"))
			continue
		}

		out = append(out, Resource{Path: name, Offset: int64(offset), StoredSize: int64(size)})
	}

	if v, ok := env.Option("fake.header"); ok {
		env.SetHeaders([]HeaderPair{{Key: "fake.header", Value: v}})
	}

	return out, nil
}

// guessingFormat adds extension guessing to fakeFormat.
type guessingFormat struct {
	fakeFormat
	guess string
}

func (g *guessingFormat) GuessExtension(_ Resource, head []byte) string {
	if bytes.HasPrefix(head, []byte("RIFF")) {
		return "wav"
	}

	return g.guess
}

// fakeEntry is one entry of a fixture built by buildFake.
type fakeEntry struct {
	name string
	data []byte
}

// buildFake lays out a FAKE container.
func buildFake(entries ...fakeEntry) []byte {
	dirSize := 5
	for _, e := range entries {
		dirSize += len(e.name) + 1 + 8
	}

	var dir, payload bytes.Buffer
	dir.WriteString("FAKE")
	dir.WriteByte(byte(len(entries)))

	offset := dirSize
	for _, e := range entries {
		dir.WriteString(e.name)
		dir.WriteByte(0)
		_ = binary.Write(&dir, binary.LittleEndian, uint32(offset))
		_ = binary.Write(&dir, binary.LittleEndian, uint32(len(e.data)))
		payload.Write(e.data)
		offset += len(e.data)
	}

	return append(dir.Bytes(), payload.Bytes()...)
}

// fakeRegistry returns a registry holding plugins in order.
func fakeRegistry(plugins ...Plugin) *Registry {
	reg := NewRegistry()
	for _, p := range plugins {
		reg.MustRegister(p)
	}

	return reg
}
