// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command; commands share globals so tests run serially.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	flags = globalFlags{}
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestParseOptions(t *testing.T) {
	got, err := parseOptions([]string{"mix.key=00ff", "ntre.codec = zlib", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mix.key": "00ff", "ntre.codec": " zlib", "empty": ""}, got)

	_, err = parseOptions([]string{"novalue"})
	require.Error(t, err)
	_, err = parseOptions([]string{"=x"})
	require.Error(t, err)
}

func TestFormatsJSON(t *testing.T) {
	out, err := run(t, "formats", "--json")
	require.NoError(t, err)

	var infos []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &infos))

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	assert.Contains(t, ids, "pbo")
	assert.Contains(t, ids, "mix")
}

func TestPackListExtract(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "maps"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "maps", "e1m1.bsp"), []byte("bsp"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "readme.txt"), []byte("hello"), 0o600))

	archive := filepath.Join(tmp, "pak0.pak")
	_, err := run(t, "pack", "--type", "pak", archive, src)
	require.NoError(t, err)

	out, err := run(t, "list", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "format: pak")
	assert.Contains(t, out, "maps/e1m1.bsp")

	outDir := filepath.Join(tmp, "out")
	out, err = run(t, "extract", "-o", outDir, archive)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok"), out)

	got, err := os.ReadFile(filepath.Join(outDir, "pak0", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExtractReportsFailedArchives(t *testing.T) {
	tmp := t.TempDir()
	junk := filepath.Join(tmp, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not an archive"), 0o600))

	out, err := run(t, "extract", "-o", filepath.Join(tmp, "out"), junk)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestBadConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	_, err := run(t, "formats", "--config", path)
	require.Error(t, err)
}
