// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"io"
)

// ListResources opens an archive and returns its resource table without payload reads.
func ListResources(path string, opts ...Option) ([]Resource, Info, error) {
	a, err := Open(path, append(opts, WithCacheSize(0))...)
	if err != nil {
		return nil, Info{}, err
	}
	defer func() { _ = a.Close() }()

	return a.Resources(), a.Format(), nil
}

// ReadHeaders opens an archive and returns its container-level key-value pairs.
func ReadHeaders(path string, opts ...Option) ([]HeaderPair, error) {
	a, err := Open(path, append(opts, WithCacheSize(0))...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return a.Headers(), nil
}

// DetectFile scores every plugin of the selected registry against a file and
// returns the full ranking, best first.
func DetectFile(path string, opts ...Option) ([]Ranking, error) {
	o := buildOptions(opts)

	src, err := OpenSource(path, o.mmap)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = src.Close() }()

	return detectSource(src, o), nil
}

// DetectReaderAt scores every plugin against a random-access container.
func DetectReaderAt(ra io.ReaderAt, size int64, name string, opts ...Option) ([]Ranking, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	return detectSource(NewSource(ra, size, name), buildOptions(opts)), nil
}

// detectSource runs the registry ranking over src.
func detectSource(src *Source, o options) []Ranking {
	r := NewSourceReader(src, WithReaderLimits(o.limits), WithReaderNameEncoding(o.nameEncoding))
	return o.registry.Scores(r)
}
