// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package flat holds helpers shared by writers of uncompressed formats.
package flat

import (
	"fmt"
	"io"

	"github.com/woozymasta/gamepak"
)

// CopyEntry writes the payload of one plan entry: the stored bytes of a
// kept resource or the stream of a new input. It returns the written size.
// Kept resources must be unencoded.
func CopyEntry(w io.Writer, e gamepak.RewriteEntry, limit int64, copyBuf []byte) (int64, error) {
	if e.Resource != nil {
		if e.Resource.Encoded() {
			return 0, fmt.Errorf("%w: entry %s is stored as %s", gamepak.ErrCodecUnsupported, e.Path, e.Resource.Codec())
		}
		if e.Resource.StoredSize > limit {
			return 0, fmt.Errorf("%w: entry %s", gamepak.ErrSizeOverflow, e.Path)
		}

		return gamepak.CopyStored(w, *e.Resource, copyBuf)
	}

	if e.Input == nil {
		return 0, fmt.Errorf("entry %s: missing input/source", e.Path)
	}

	rc, err := gamepak.OpenInput(*e.Input)
	if err != nil {
		return 0, err
	}

	n, copyErr := gamepak.CopyBounded(w, rc, limit, copyBuf)
	closeErr := rc.Close()
	if copyErr != nil {
		return n, fmt.Errorf("stream input %s: %w", e.Path, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close input %s: %w", e.Path, closeErr)
	}

	return n, nil
}

// Plan converts inputs to a rewrite plan after PrepareInputs normalization.
func Plan(inputs []gamepak.Input, sep string) ([]gamepak.RewriteEntry, error) {
	prepared, err := gamepak.PrepareInputs(inputs, sep)
	if err != nil {
		return nil, err
	}

	plan := make([]gamepak.RewriteEntry, len(prepared))
	for i := range prepared {
		plan[i] = gamepak.RewriteEntry{Path: prepared[i].Path, Input: &prepared[i]}
	}

	return plan, nil
}

// NormalizePlan rewrites plan paths to the archive form joined by sep and
// rejects duplicates.
func NormalizePlan(entries []gamepak.RewriteEntry, sep string) ([]gamepak.RewriteEntry, error) {
	if len(entries) == 0 {
		return nil, gamepak.ErrEmptyInputs
	}

	plan := make([]gamepak.RewriteEntry, len(entries))
	paths := make([]string, len(entries))
	for i, e := range entries {
		p, err := gamepak.NormalizeEntryPath(e.Path, sep)
		if err != nil {
			return nil, err
		}

		e.Path = p
		plan[i] = e
		paths[i] = p
	}

	if err := gamepak.ValidateUniquePaths(paths); err != nil {
		return nil, err
	}

	return plan, nil
}
