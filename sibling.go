// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// SiblingPath derives a companion file name by replacing the extension of name.
// ext may be given with or without the leading dot.
func SiblingPath(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if ext == "" {
		return base
	}

	return base + "." + ext
}

// OpenSibling opens the companion file of the current container that shares
// its base name and has extension ext. Lower and upper case spellings of ext
// are tried when the exact one is missing. The source is closed with the archive.
func (e *Env) OpenSibling(ext string) (*Reader, error) {
	if e.name == "" {
		return nil, fmt.Errorf("%w: container has no file name", ErrMissingSibling)
	}

	candidates := []string{SiblingPath(e.name, ext)}
	for _, variant := range []string{strings.ToLower(ext), strings.ToUpper(ext)} {
		if p := SiblingPath(e.name, variant); p != candidates[0] {
			candidates = append(candidates, p)
		}
	}

	var errs []error
	for _, candidate := range candidates {
		src, err := OpenSource(candidate, e.Mmap)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		e.siblings = append(e.siblings, src)
		e.logger().Debug("open sibling", slog.String("archive", e.name), slog.String("path", candidate))

		return NewSourceReader(src, WithReaderLimits(e.Limits), WithReaderNameEncoding(e.NameEncoding)), nil
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrMissingSibling, candidates[0], errors.Join(errs...))
}
