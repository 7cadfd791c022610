// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestBatchExtractsAndRecordsFailures(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	out := t.TempDir()
	paths := []string{
		writeFakeFile(t, in, "pak0.fake", buildFake(fakeEntry{name: "a.txt", data: []byte("a0")})),
		writeFakeFile(t, in, "junk.fake", []byte("not a container")),
		writeFakeFile(t, in, "PAK0.dat", buildFake(fakeEntry{name: "a.txt", data: []byte("a1")}, fakeEntry{name: "b.txt", data: []byte("b")})),
	}

	var events []Progress
	result, err := Batch(t.Context(), paths, BatchOptions{
		Open:        []Option{WithRegistry(fakeRegistry(&fakeFormat{id: "fake", exts: []string{"fake"}}))},
		OutputDir:   out,
		Concurrency: 2,
		Progress:    func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	assert.False(t, result.RunID.IsNil())
	require.Len(t, result.Files, 3)
	assert.Equal(t, BatchTally{Files: 3, Succeeded: 2, Failed: 1, Resources: 3, Bytes: 5}, result.Tally)
	assert.Len(t, events, 3)

	assert.Equal(t, "fake", result.Files[0].Format)
	assert.Equal(t, filepath.Join(out, "pak0"), result.Files[0].Output)
	assert.ErrorIs(t, result.Files[1].Err, ErrUnrecognized)
	assert.Equal(t, filepath.Join(out, "PAK0~2"), result.Files[2].Output)

	got, err := os.ReadFile(filepath.Join(out, "PAK0~2", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestBatchListOnly(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	path := writeFakeFile(t, in, "x.fake", buildFake(fakeEntry{name: "a.txt", data: []byte("a")}))

	result, err := Batch(t.Context(), []string{path}, BatchOptions{
		Open: []Option{WithRegistry(fakeRegistry(&fakeFormat{id: "fake", exts: []string{"fake"}}))},
	})
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Empty(t, result.Files[0].Output)
	assert.Nil(t, result.Files[0].Extract)
	assert.Equal(t, 1, result.Files[0].Resources)
}

func TestBatchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Batch(ctx, []string{"a.fake", "b.fake"}, BatchOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBatchOutputDirs(t *testing.T) {
	t.Parallel()

	got := batchOutputDirs([]string{"/x/CON.pak", "/y/data.grp", "/z/DATA.pbo", "noext"}, "out")
	assert.Equal(t, []string{
		filepath.Join("out", "_CON"),
		filepath.Join("out", "data"),
		filepath.Join("out", "DATA~2"),
		filepath.Join("out", "noext"),
	}, got)

	assert.Equal(t, []string{"", ""}, batchOutputDirs([]string{"a", "b"}, ""))
}
