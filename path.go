// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an entry path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// NormalizeEntryPath converts an input path to the archive form of a format
// that joins segments with sep. Empty results are ErrInvalidEntryPath.
func NormalizeEntryPath(raw, sep string) (string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	if sep == "" || sep == "/" {
		return normalized, nil
	}

	return strings.ReplaceAll(normalized, "/", sep), nil
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, `\`, `/`)
	path = strings.TrimPrefix(path, "./")
	return path
}

// ValidateUniquePaths fails on duplicate entry paths, compared case-insensitively
// after normalization.
func ValidateUniquePaths(paths []string) error {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		key := lookupKey(p)
		if prev, exists := seen[key]; exists {
			return fmt.Errorf("%w: %q and %q", ErrDuplicateEntryPath, prev, p)
		}

		seen[key] = p
	}

	return nil
}
