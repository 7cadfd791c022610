// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package pak

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/gamepak"
)

type testFile struct {
	name string
	data []byte
}

// buildPAK lays out payloads after the header and appends the directory.
func buildPAK(t testing.TB, files []testFile) []byte {
	t.Helper()

	var body bytes.Buffer
	dir := make([]byte, 0, len(files)*entrySize)
	offset := headerSize
	for _, f := range files {
		var rec [entrySize]byte
		copy(rec[:MaxFileName], f.name)
		binary.LittleEndian.PutUint32(rec[56:60], uint32(offset))
		binary.LittleEndian.PutUint32(rec[60:64], uint32(len(f.data)))
		dir = append(dir, rec[:]...)
		body.Write(f.data)
		offset += len(f.data)
	}

	out := make([]byte, headerSize, headerSize+body.Len()+len(dir))
	copy(out, magic)
	binary.LittleEndian.PutUint32(out[4:8], uint32(offset))
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(dir)))
	out = append(out, body.Bytes()...)

	return append(out, dir...)
}

func testRegistry(t testing.TB) *gamepak.Registry {
	t.Helper()

	reg := gamepak.NewRegistry()
	require.NoError(t, reg.Register(New()))

	return reg
}

func openTestArchive(t *testing.T, data []byte) *gamepak.Archive {
	t.Helper()

	a, err := gamepak.OpenBytes(data, "test.pak", gamepak.WithRegistry(testRegistry(t)))
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

func TestParse_EntryCounts(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			files := make([]testFile, n)
			for i := range files {
				files[i] = testFile{name: fmt.Sprintf("maps/e%dm%d.bsp", i/10, i%10), data: []byte{byte(i), byte(i >> 8)}}
			}

			a := openTestArchive(t, buildPAK(t, files))
			require.Equal(t, n, a.Len())

			for i, res := range a.Resources() {
				assert.Equal(t, files[i].name, res.Path)
				got, err := a.ReadAll(res)
				require.NoError(t, err)
				assert.Equal(t, files[i].data, got)
			}
		})
	}
}

func TestParse_RejectsBadDirectory(t *testing.T) {
	t.Parallel()

	data := buildPAK(t, []testFile{{name: "a.txt", data: []byte("x")}})
	binary.LittleEndian.PutUint32(data[8:12], entrySize+1)

	_, err := New().Parse(gamepak.NewBytesReader(data, "bad.pak"), gamepak.NewEnv("bad.pak"))
	require.ErrorIs(t, err, ErrBadDirLen)
	assert.True(t, gamepak.IsValidation(err))
}

func TestParse_OverflowingEntrySkipped(t *testing.T) {
	t.Parallel()

	data := buildPAK(t, []testFile{
		{name: "ok.txt", data: []byte("ok")},
		{name: "huge.bin", data: []byte("zz")},
	})
	dirOffset := binary.LittleEndian.Uint32(data[4:8])
	binary.LittleEndian.PutUint32(data[dirOffset+entrySize+60:], MaxOffset)

	env := gamepak.NewEnv("test.pak")
	res, err := New().Parse(gamepak.NewBytesReader(data, "test.pak"), env)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ok.txt", res[0].Path)
	require.Len(t, env.Skipped(), 1)
	assert.Equal(t, "huge.bin", env.Skipped()[0].Path)
}

func TestParse_TruncatedPrefixesNeverPanic(t *testing.T) {
	t.Parallel()

	data := buildPAK(t, []testFile{
		{name: "progs.dat", data: []byte("bytecode")},
		{name: "gfx/palette.lmp", data: make([]byte, 768)},
	})

	for n := range len(data) {
		prefix := data[:n]
		require.NotPanics(t, func() {
			_, err := New().Parse(gamepak.NewBytesReader(prefix, "cut.pak"), gamepak.NewEnv("cut.pak"))
			assert.Error(t, err, "prefix %d", n)
		})
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	data := buildPAK(t, []testFile{{name: "a.txt", data: []byte("x")}})
	score, err := New().Score(gamepak.NewBytesReader(data, "id1.pak"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightExtension+gamepak.WeightMagic+2*gamepak.WeightStructure, score)

	score, err = New().Score(gamepak.NewBytesReader([]byte("not a pack file"), "id1.pak"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightExtension, score)
}

func TestPack_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	outPath := filepath.Join(t.TempDir(), "out.pak")
	inputs := []gamepak.Input{
		bytesInput("progs.dat", []byte("qc")),
		bytesInput(`sound\misc\menu1.wav`, []byte("RIFF....WAVE")),
	}

	result, err := reg.PackFile(context.Background(), "pak", outPath, inputs, gamepak.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.WrittenEntries)
	assert.Equal(t, int64(2*entrySize+headerSize), result.IndexSize)

	a, err := gamepak.Open(outPath, gamepak.WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, ok := a.Lookup("sound/misc/menu1.wav")
	require.True(t, ok)
	assert.Equal(t, "sound/misc/menu1.wav", res.Path)

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(got))
}

func TestPack_RejectsLongName(t *testing.T) {
	t.Parallel()

	long := bytes.Repeat([]byte("a"), MaxFileName)
	var buf bytes.Buffer
	_, err := New().Write(context.Background(), &seekBuffer{buf: &buf}, []gamepak.Input{bytesInput(string(long), []byte("x"))}, gamepak.WriteOptions{})
	require.ErrorIs(t, err, gamepak.ErrInvalidEntryPath)
}

func TestRewrite_KeepsEntries(t *testing.T) {
	t.Parallel()

	src := openTestArchive(t, buildPAK(t, []testFile{
		{name: "a.txt", data: []byte("alpha")},
		{name: "b.txt", data: []byte("beta")},
	}))

	kept, ok := src.Lookup("a.txt")
	require.True(t, ok)
	replacement := bytesInput("b.txt", []byte("BETA!"))

	sb := &seekBuffer{buf: &bytes.Buffer{}}
	_, err := New().Rewrite(context.Background(), sb, []gamepak.RewriteEntry{
		{Path: "renamed/a.txt", Resource: &kept},
		{Path: "b.txt", Input: &replacement},
	}, gamepak.WriteOptions{})
	require.NoError(t, err)

	out := openTestArchive(t, sb.buf.Bytes())
	require.Equal(t, 2, out.Len())

	res, ok := out.Lookup("renamed/a.txt")
	require.True(t, ok)
	got, err := out.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	res, ok = out.Lookup("b.txt")
	require.True(t, ok)
	got, err = out.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "BETA!", string(got))
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	data := s.buf.Bytes()
	end := s.pos + int64(len(p))
	if end > int64(len(data)) {
		s.buf.Write(make([]byte, end-int64(len(data))))
		data = s.buf.Bytes()
	}

	copy(data[s.pos:end], p)
	s.pos = end

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = int64(s.buf.Len()) + offset
	}

	return s.pos, nil
}
