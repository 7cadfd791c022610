// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package grp

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

func buildGRP(t testing.TB, files []testFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(magic)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(files)))
	for _, f := range files {
		var rec [recordSize]byte
		copy(rec[:MaxFileName], f.name)
		binary.LittleEndian.PutUint32(rec[MaxFileName:], uint32(len(f.data)))
		buf.Write(rec[:])
	}
	for _, f := range files {
		buf.Write(f.data)
	}

	return buf.Bytes()
}

func testRegistry(t testing.TB) *gamepak.Registry {
	t.Helper()

	reg := gamepak.NewRegistry()
	require.NoError(t, reg.Register(New()))

	return reg
}

func openTestArchive(t *testing.T, data []byte) *gamepak.Archive {
	t.Helper()

	a, err := gamepak.OpenBytes(data, "duke3d.grp", gamepak.WithRegistry(testRegistry(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestParse_EntryCounts(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			files := make([]testFile, n)
			for i := range files {
				files[i] = testFile{name: fmt.Sprintf("TILES%03d.ART", i), data: bytes.Repeat([]byte{byte(i)}, i%7)}
			}

			a := openTestArchive(t, buildGRP(t, files))
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

func TestParse_FullWidthName(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, buildGRP(t, []testFile{{name: "GAMEDATA.CON", data: []byte("define")}}))
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "GAMEDATA.CON", a.Resources()[0].Path)
}

func TestParse_PayloadPastEndSkipped(t *testing.T) {
	t.Parallel()

	data := buildGRP(t, []testFile{
		{name: "A.TXT", data: []byte("aa")},
		{name: "B.TXT", data: []byte("bb")},
	})
	binary.LittleEndian.PutUint32(data[headerSize+recordSize+MaxFileName:], 1000)

	a := openTestArchive(t, data)
	require.Equal(t, 1, a.Len())
	require.Len(t, a.Skipped(), 1)
	assert.Equal(t, "B.TXT", a.Skipped()[0].Path)
}

func TestParse_TruncatedDirectory(t *testing.T) {
	t.Parallel()

	data := buildGRP(t, []testFile{{name: "A.TXT", data: []byte("aa")}})
	for n := range headerSize + recordSize {
		prefix := data[:n]
		require.NotPanics(t, func() {
			_, err := New().Parse(gamepak.NewBytesReader(prefix, "cut.grp"), gamepak.NewEnv("cut.grp"))
			assert.Error(t, err, "prefix %d", n)
		})
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	data := buildGRP(t, []testFile{{name: "A.TXT", data: []byte("aa")}})
	score, err := New().Score(gamepak.NewBytesReader(data, "x.grp"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightExtension+gamepak.WeightMagic+2*gamepak.WeightStructure, score)

	score, err = New().Score(gamepak.NewBytesReader(data, "x.bin"))
	require.NoError(t, err)
	assert.Equal(t, gamepak.WeightMagic+2*gamepak.WeightStructure, score)
}

func TestGuessExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "voc", New().GuessExtension(gamepak.Resource{}, []byte("Creative Voice File\x1a")))
	assert.Empty(t, New().GuessExtension(gamepak.Resource{}, []byte{0, 1, 2}))
}

func TestPack_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	outPath := filepath.Join(t.TempDir(), "out.grp")
	payloads := map[string][]byte{
		"GAME.CON":     []byte("gamestartup"),
		"E1L1.MAP":     {7, 0, 0, 0},
		"EMPTY.TXT":    {},
		"TILES000.ART": bytes.Repeat([]byte{0xAB}, 4096),
	}
	names := []string{"GAME.CON", "E1L1.MAP", "EMPTY.TXT", "TILES000.ART"}

	inputs := make([]gamepak.Input, 0, len(names))
	for _, name := range names {
		payload := payloads[name]
		inputs = append(inputs, gamepak.Input{
			Path:     name,
			SizeHint: int64(len(payload)),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(payload)), nil
			},
		})
	}

	result, err := reg.PackFile(context.Background(), "grp", outPath, inputs, gamepak.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(names), result.WrittenEntries)

	a, err := gamepak.Open(outPath, gamepak.WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	// entries are written in sorted path order, not input order
	sorted := []string{"E1L1.MAP", "EMPTY.TXT", "GAME.CON", "TILES000.ART"}
	require.Equal(t, len(sorted), a.Len())
	for i, res := range a.Resources() {
		assert.Equal(t, sorted[i], res.Path)
		got, err := a.ReadAll(res)
		require.NoError(t, err)
		assert.Equal(t, payloads[sorted[i]], got)
	}
}

func TestPack_RejectsNestedAndLongNames(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	for _, name := range []string{"maps/E1L1.MAP", "THIRTEENCHARS"} {
		input := gamepak.Input{
			Path: name,
			Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(nil)), nil },
		}

		_, err := reg.PackFile(context.Background(), "grp", filepath.Join(t.TempDir(), "bad.grp"), []gamepak.Input{input}, gamepak.WriteOptions{})
		require.ErrorIs(t, err, gamepak.ErrInvalidEntryPath, name)
	}
}
