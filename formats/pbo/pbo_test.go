// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package pbo

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/pathrules"
)

// testEntry is one hand-built index record with payload.
type testEntry struct {
	name     string
	data     []byte
	mime     MimeType
	original uint32
	offset   uint32
}

// buildPBO assembles a PBO image in memory.
func buildPBO(t testing.TB, headers []gamepak.HeaderPair, entries []testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[1:5], uint32(MimeHeader))
	buf.Write(header)

	for _, h := range headers {
		buf.WriteString(h.Key)
		buf.WriteByte(0)
		buf.WriteString(h.Value)
		buf.WriteByte(0)
	}
	buf.WriteByte(0)

	for _, e := range entries {
		buf.WriteString(e.name)
		buf.WriteByte(0)

		var fields [recordSize]byte
		binary.LittleEndian.PutUint32(fields[0:4], uint32(e.mime))
		binary.LittleEndian.PutUint32(fields[4:8], e.original)
		binary.LittleEndian.PutUint32(fields[8:12], e.offset)
		binary.LittleEndian.PutUint32(fields[16:20], uint32(len(e.data)))
		buf.Write(fields[:])
	}
	buf.Write(make([]byte, 1+recordSize))

	for _, e := range entries {
		buf.Write(e.data)
	}

	return buf.Bytes()
}

func testRegistry(t testing.TB) *gamepak.Registry {
	t.Helper()

	reg := gamepak.NewRegistry()
	require.NoError(t, reg.Register(New()))

	return reg
}

func openTestArchive(t *testing.T, data []byte, opts ...gamepak.Option) *gamepak.Archive {
	t.Helper()

	opts = append([]gamepak.Option{gamepak.WithRegistry(testRegistry(t))}, opts...)
	a, err := gamepak.OpenBytes(data, "test.pbo", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func bytesInput(path string, payload []byte) gamepak.Input {
	return gamepak.Input{
		Path:     path,
		SizeHint: int64(len(payload)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
	}
}

func TestParse_ManualPBO(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, nil, []testEntry{{name: "a.txt", data: []byte("hello")}})
	a := openTestArchive(t, data)

	require.Equal(t, 1, a.Len())
	res := a.Resources()[0]
	assert.Equal(t, "a.txt", res.Path)
	assert.Equal(t, int64(5), res.Size)

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestParse_HeadersAndNestedPaths(t *testing.T) {
	t.Parallel()

	headers := []gamepak.HeaderPair{
		{Key: "prefix", Value: `mod\addon`},
		{Key: "version", Value: "1"},
	}
	data := buildPBO(t, headers, []testEntry{
		{name: `config.cpp`, data: []byte("class CfgPatches {};")},
		{name: `data\tex.paa`, data: []byte{1, 2, 3}},
	})

	a := openTestArchive(t, data)
	assert.Equal(t, headers, a.Headers())

	res, ok := a.Lookup("DATA/tex.paa")
	require.True(t, ok)
	assert.Equal(t, `data\tex.paa`, res.Path)

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestParse_EntryCounts(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			entries := make([]testEntry, n)
			for i := range entries {
				entries[i] = testEntry{name: fmt.Sprintf(`dir\file%04d.bin`, i), data: []byte{byte(i)}}
			}

			a := openTestArchive(t, buildPBO(t, nil, entries))
			require.Equal(t, n, a.Len())

			for i, res := range a.Resources() {
				assert.Equal(t, entries[i].name, res.Path)
				got, err := a.ReadAll(res)
				require.NoError(t, err)
				assert.Equal(t, entries[i].data, got)
			}
		})
	}
}

func TestParse_CompressedEntry(t *testing.T) {
	t.Parallel()

	plain := bytes.Repeat([]byte("abcdefgh"), 512)
	packed, err := gamepak.LZSS{}.Encode(plain)
	require.NoError(t, err)

	data := buildPBO(t, nil, []testEntry{{
		name:     "big.txt",
		data:     packed,
		mime:     MimeCompress,
		original: uint32(len(plain)),
	}})

	a := openTestArchive(t, data)
	res := a.Resources()[0]
	assert.Equal(t, "lzss", res.Codec())
	assert.Equal(t, int64(len(plain)), res.Size)
	assert.Equal(t, int64(len(packed)), res.StoredSize)

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestParse_EncryptedEntrySkipped(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, nil, []testEntry{
		{name: "secret.sqf", data: []byte("xxxx"), mime: MimeEncoded},
		{name: "plain.sqf", data: []byte("hint")},
	})

	a := openTestArchive(t, data)
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "plain.sqf", a.Resources()[0].Path)

	skipped := a.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "secret.sqf", skipped[0].Path)
	assert.ErrorIs(t, skipped[0].Err, gamepak.ErrCodecUnsupported)
}

func TestParse_JunkFilter(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, nil, []testEntry{
		{name: "empty.txt"},
		{name: "ok.txt", data: []byte("ok")},
	})

	a := openTestArchive(t, data, gamepak.WithPluginOption(OptionJunkFilter, "true"))
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "ok.txt", a.Resources()[0].Path)
	assert.Len(t, a.Skipped(), 1)
}

func TestParse_RejectsBadHeader(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, nil, []testEntry{{name: "a", data: []byte("a")}})
	data[1] = 'X'

	_, err := New().Parse(gamepak.NewBytesReader(data, "bad.pbo"), gamepak.NewEnv("bad.pbo"))
	require.ErrorIs(t, err, ErrInvalidHeader)
	assert.True(t, gamepak.IsValidation(err))
}

func TestParse_PayloadPastEndFails(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, nil, []testEntry{{name: "a", data: []byte("abcdef")}})
	data = data[:len(data)-2]

	_, err := New().Parse(gamepak.NewBytesReader(data, "short.pbo"), gamepak.NewEnv("short.pbo"))
	require.ErrorIs(t, err, ErrInvalidEntryOffset)
}

func TestParse_TruncatedPrefixesNeverPanic(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, []gamepak.HeaderPair{{Key: "prefix", Value: "x"}}, []testEntry{
		{name: "a.txt", data: []byte("hello")},
		{name: `b\c.txt`, data: []byte("world")},
	})

	for n := range len(data) {
		prefix := data[:n]
		require.NotPanics(t, func() {
			_, err := New().Parse(gamepak.NewBytesReader(prefix, "cut.pbo"), gamepak.NewEnv("cut.pbo"))
			assert.Error(t, err, "prefix %d", n)
		})
	}
}

func TestResolveEntryOffsets_Modes(t *testing.T) {
	t.Parallel()

	const dataStart = 100
	newEntries := func() []entry {
		return []entry{
			{path: "a", dataSize: 10, offset: 0},
			{path: "b", dataSize: 5, offset: 20},
		}
	}

	t.Run("sequential ignores stored", func(t *testing.T) {
		t.Parallel()

		entries := newEntries()
		require.NoError(t, resolveEntryOffsets(entries, dataStart, 200, OffsetModeSequential))
		assert.Equal(t, uint32(100), entries[0].offset)
		assert.Equal(t, uint32(110), entries[1].offset)
	})

	t.Run("stored relative", func(t *testing.T) {
		t.Parallel()

		entries := newEntries()
		require.NoError(t, resolveEntryOffsets(entries, dataStart, 200, OffsetModeStoredCompat))
		assert.Equal(t, uint32(100), entries[0].offset)
		assert.Equal(t, uint32(120), entries[1].offset)
	})

	t.Run("compat falls back", func(t *testing.T) {
		t.Parallel()

		entries := newEntries()
		entries[1].offset = 5000
		require.NoError(t, resolveEntryOffsets(entries, dataStart, 200, OffsetModeStoredCompat))
		assert.Equal(t, uint32(110), entries[1].offset)
	})

	t.Run("strict fails", func(t *testing.T) {
		t.Parallel()

		entries := newEntries()
		entries[1].offset = 5000
		require.ErrorIs(t, resolveEntryOffsets(entries, dataStart, 200, OffsetModeStoredStrict), ErrInvalidEntryOffset)
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, resolveEntryOffsets(newEntries(), dataStart, 200, "bogus"), ErrInvalidEntryOffset)
	})
}

func TestScore(t *testing.T) {
	t.Parallel()

	data := buildPBO(t, []gamepak.HeaderPair{{Key: "prefix", Value: "x"}}, []testEntry{{name: "a", data: []byte("a")}})

	score, err := New().Score(gamepak.NewBytesReader(data, "addon.pbo"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightExtension+gamepak.WeightMagic+2*gamepak.WeightStructure, score)

	score, err = New().Score(gamepak.NewBytesReader(bytes.Repeat([]byte{0xAB}, 64), "addon.pbo"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightExtension, score)
	assert.LessOrEqual(t, score, gamepak.DefaultAcceptanceFloor)
}

func TestPack_RoundTripWithCompression(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	compressible := bytes.Repeat([]byte("rvmat "), 2048)
	inputs := []gamepak.Input{
		bytesInput("data/b.rvmat", compressible),
		bytesInput("config.cpp", []byte("class X {};")),
	}

	outPath := filepath.Join(t.TempDir(), "out.pbo")
	var done []gamepak.WriteProgress
	res, err := reg.PackFile(context.Background(), "pbo", outPath, inputs, gamepak.WriteOptions{
		Headers:     []gamepak.HeaderPair{{Key: "prefix", Value: "my/addon/"}},
		Compress:    []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.rvmat"}},
		OnEntryDone: func(p gamepak.WriteProgress) { done = append(done, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.WrittenEntries)
	assert.Equal(t, 1, res.CompressedEntries)
	require.Len(t, done, 2)
	assert.Equal(t, "config.cpp", done[0].Path)
	assert.True(t, done[1].Compressed)

	ok, err := VerifyTrailer(outPath)
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := gamepak.Open(outPath, gamepak.WithRegistry(reg))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.Equal(t, []gamepak.HeaderPair{{Key: "prefix", Value: `my\addon`}}, a.Headers())

	got, err := a.ReadAll(a.Resources()[1])
	require.NoError(t, err)
	assert.Equal(t, `data\b.rvmat`, a.Resources()[1].Path)
	assert.Equal(t, compressible, got)
}

func TestPack_CompressEnabledNoMatchKeepsUncompressed(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), 4096)
	a := packAndOpen(t, []gamepak.Input{bytesInput("data/a.txt", payload)}, gamepak.WriteOptions{
		Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.paa"}},
	})

	require.Equal(t, 1, a.Len())
	assert.False(t, a.Resources()[0].Encoded(), "entry must stay uncompressed when compress patterns do not match")
}

func TestPack_UnknownSizeHintKeepsRaw(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("y"), 4096)
	in := bytesInput("a.txt", payload)
	in.SizeHint = 0

	a := packAndOpen(t, []gamepak.Input{in}, gamepak.WriteOptions{
		Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.txt"}},
	})

	assert.False(t, a.Resources()[0].Encoded())
	got, err := a.ReadAll(a.Resources()[0])
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPack_RejectsDuplicateEntryPathsCaseInsensitive(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "out.pbo"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = testRegistry(t).Pack(context.Background(), "pbo", f, []gamepak.Input{
		bytesInput("data/a.txt", []byte("1")),
		bytesInput(`DATA\A.TXT`, []byte("2")),
	}, gamepak.WriteOptions{})
	require.ErrorIs(t, err, gamepak.ErrDuplicateEntryPath)
}

func TestPack_RejectsInvalidNormalizedEntryPath(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "out.pbo"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = testRegistry(t).Pack(context.Background(), "pbo", f, []gamepak.Input{
		bytesInput("./", []byte("1")),
	}, gamepak.WriteOptions{})
	require.ErrorIs(t, err, gamepak.ErrInvalidEntryPath)
}

func TestRewrite_KeepsStoredEncoding(t *testing.T) {
	t.Parallel()

	compressible := bytes.Repeat([]byte("keep me "), 1024)
	src := packAndOpen(t, []gamepak.Input{
		bytesInput("a.txt", compressible),
		bytesInput("b.txt", []byte("old")),
	}, gamepak.WriteOptions{
		Compress: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "a.txt"}},
	})

	kept, ok := src.Lookup("a.txt")
	require.True(t, ok)
	require.True(t, kept.Encoded())

	replacement := bytesInput("b.txt", []byte("new"))
	outPath := filepath.Join(t.TempDir(), "rewritten.pbo")
	f, err := os.Create(outPath)
	require.NoError(t, err)

	_, err = New().Rewrite(context.Background(), f, []gamepak.RewriteEntry{
		{Path: "a.txt", Resource: &kept},
		{Path: "b.txt", Input: &replacement},
	}, gamepak.WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := gamepak.Open(outPath, gamepak.WithRegistry(testRegistry(t)))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	res, ok := a.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, kept.StoredSize, res.StoredSize)
	assert.True(t, res.Encoded())

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, compressible, got)

	res, ok = a.Lookup("b.txt")
	require.True(t, ok)
	got, err = a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestFinalizeFile_Idempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "t.pbo")
	require.NoError(t, os.WriteFile(path, buildPBO(t, nil, []testEntry{{name: "a", data: []byte("a")}}), 0o600))

	require.NoError(t, New().FinalizeFile(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, New().FinalizeFile(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	sum, ok := Trailer(gamepak.NewBytesReader(second, "t.pbo"))
	require.True(t, ok)
	assert.Equal(t, first[len(first)-shaSize:], sum[:])

	a := openTestArchive(t, second)
	assert.Equal(t, 1, a.Len())
}

// packAndOpen packs inputs into a temp file and opens the result.
func packAndOpen(t *testing.T, inputs []gamepak.Input, opts gamepak.WriteOptions) *gamepak.Archive {
	t.Helper()

	reg := testRegistry(t)
	outPath := filepath.Join(t.TempDir(), "out.pbo")
	_, err := reg.PackFile(context.Background(), "pbo", outPath, inputs, opts)
	require.NoError(t, err)

	a, err := gamepak.Open(outPath, gamepak.WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}
