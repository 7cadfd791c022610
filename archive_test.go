// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFake(t *testing.T, data []byte, name string, opts ...Option) *Archive {
	t.Helper()

	reg := fakeRegistry(&fakeFormat{id: "fake", exts: []string{"fake"}})
	a, err := OpenBytes(data, name, append([]Option{WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestArchiveOpenAndRead(t *testing.T) {
	t.Parallel()

	a := openFake(t, buildFake(
		fakeEntry{name: `Data\Config.cpp`, data: []byte("class Cfg {};")},
		fakeEntry{name: "empty.txt"},
	), "mod.fake")

	assert.Equal(t, "fake", a.Format().ID)
	assert.Equal(t, WeightExtension+WeightMagic, a.Score())
	assert.Equal(t, "mod.fake", a.Name())
	require.Equal(t, 2, a.Len())

	res, ok := a.Lookup("data/config.CPP")
	require.True(t, ok)
	assert.Equal(t, int64(13), res.Size, "stored entries take their stored size")

	got, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "class Cfg {};", string(got))

	got, err = a.ReadAll(a.Resources()[1])
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)

	rc, err := a.OpenPath(`DATA\CONFIG.CPP`)
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "class Cfg {};", string(streamed))

	_, err = a.OpenPath("missing.txt")
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestArchiveReadAllCacheReturnsCopies(t *testing.T) {
	t.Parallel()

	a := openFake(t, buildFake(fakeEntry{name: "a.txt", data: []byte("abc")}), "x.fake")
	res := a.Resources()[0]

	first, err := a.ReadAll(res)
	require.NoError(t, err)
	first[0] = 'X'

	second, err := a.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(second))

	uncached := openFake(t, buildFake(fakeEntry{name: "a.txt", data: []byte("abc")}), "x.fake", WithCacheSize(0))
	got, err := uncached.ReadAll(uncached.Resources()[0])
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestArchiveDropsOutOfRangeResources(t *testing.T) {
	t.Parallel()

	data := buildFake(
		fakeEntry{name: "ok.bin", data: []byte{1, 2}},
		fakeEntry{name: "late.bin", data: []byte{3, 4}},
		fakeEntry{name: "", data: nil},
	)
	// cut the last payload byte: late.bin now ends past the container
	a := openFake(t, data[:len(data)-1], "x.fake")

	require.Equal(t, 1, a.Len())
	assert.Equal(t, "ok.bin", a.Resources()[0].Path)

	skipped := a.Skipped()
	require.Len(t, skipped, 2)
	assert.Empty(t, skipped[0].Path)
	assert.Equal(t, "late.bin", skipped[1].Path)
	assert.True(t, IsValidation(skipped[1].Err))
}

func TestArchiveFallsBackToNextCandidate(t *testing.T) {
	t.Parallel()

	broken := &fakeFormat{id: "broken", exts: []string{"fake"}, parseErr: newValidationError("count", "bad", 1, 0)}
	exploding := &fakeFormat{id: "exploding", exts: []string{"fake"}, panicParse: true}
	good := &fakeFormat{id: "good"}
	reg := fakeRegistry(broken, exploding, good)

	a, err := OpenBytes(buildFake(fakeEntry{name: "a", data: []byte("1")}), "x.fake", WithRegistry(reg))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.Equal(t, "good", a.Format().ID)
	assert.Equal(t, WeightMagic, a.Score())
}

func TestArchiveAllCandidatesFail(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(
		&fakeFormat{id: "broken", parseErr: newValidationError("count", "bad", 1, 0)},
		&fakeFormat{id: "exploding", panicParse: true},
	)

	_, err := OpenBytes(buildFake(), "x.bin", WithRegistry(reg))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrPluginFault)

	_, err = OpenBytes([]byte("garbage"), "x.bin", WithRegistry(reg))
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestArchiveForcedFormat(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(&fakeFormat{id: "fake", exts: []string{"fake"}})

	a, err := OpenBytes(buildFake(fakeEntry{name: "a", data: []byte("1")}), "renamed.dat", WithRegistry(reg), WithFormat("FAKE"))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	assert.Zero(t, a.Score())
	assert.Equal(t, 1, a.Len())

	_, err = OpenBytes(buildFake(), "x.fake", WithRegistry(reg), WithFormat("zip"))
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = OpenBytes([]byte("x"), "x.fake", WithRegistry(reg), WithAcceptanceFloor(10))
	require.Error(t, err, "extension passes a lowered floor but parse still fails")
	assert.False(t, errors.Is(err, ErrUnrecognized))
}

func TestArchivePluginOptionsAndHeaders(t *testing.T) {
	t.Parallel()

	a := openFake(t, buildFake(), "x.fake", WithPluginOption("fake.header", "v1"))
	assert.Equal(t, []HeaderPair{{Key: "fake.header", Value: "v1"}}, a.Headers())
}

func TestArchiveGuessesMissingExtensions(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(&guessingFormat{fakeFormat: fakeFormat{id: "fake", exts: []string{"fake"}}, guess: "bin"})
	a, err := OpenBytes(buildFake(
		fakeEntry{name: "0001", data: []byte("RIFF....WAVE")},
		fakeEntry{name: "0002", data: []byte{0, 1, 2}},
		fakeEntry{name: "named.txt", data: []byte("RIFF")},
	), "x.fake", WithRegistry(reg))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	paths := make([]string, 0, a.Len())
	for _, res := range a.Resources() {
		paths = append(paths, res.Path)
	}
	assert.Equal(t, []string{"0001.wav", "0002.bin", "named.txt"}, paths)
}

func TestArchiveClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.fake")
	require.NoError(t, os.WriteFile(path, buildFake(fakeEntry{name: "a", data: []byte("1")}), 0o600))

	reg := fakeRegistry(&fakeFormat{id: "fake", exts: []string{"fake"}})
	a, err := Open(path, WithRegistry(reg))
	require.NoError(t, err)

	res := a.Resources()[0]
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Open(res)
	require.ErrorIs(t, err, ErrClosed)
}

func TestArchiveParallelReads(t *testing.T) {
	t.Parallel()

	entries := make([]fakeEntry, 50)
	for i := range entries {
		entries[i] = fakeEntry{name: string(rune('a'+i%26)) + string(rune('0'+i/26)), data: payloadOf(1000 + i)}
	}
	a := openFake(t, buildFake(entries...), "x.fake", WithCacheSize(4))

	var wg sync.WaitGroup
	errs := make(chan error, len(entries)*4)
	for round := range 4 {
		for i, res := range a.Resources() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := a.ReadAll(res)
				if err != nil {
					errs <- err
					return
				}
				if len(got) != 1000+i {
					errs <- errors.New("wrong size in round " + string(rune('0'+round)))
				}
			}()
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestOpenReaderAtRejectsNil(t *testing.T) {
	t.Parallel()

	_, err := OpenReaderAt(nil, 0, "x")
	require.ErrorIs(t, err, ErrNilReader)
}
