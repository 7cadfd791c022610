// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"hash/fnv"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames contains case-insensitive reserved DOS and Windows device names.
var reservedDeviceNames = map[string]struct{}{
	"aux": {}, "con": {}, "nul": {}, "prn": {}, "clock$": {}, "config$": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
	"keybd$": {}, "screen$": {}, "mouse$": {}, "$": {},
}

// SanitizePath rewrites one entry path to deterministic filesystem-safe slash-separated form.
func SanitizePath(pathValue string) (string, error) {
	normalizedPath := NormalizePath(pathValue)
	if normalizedPath == "" {
		return "", nil
	}

	sanitized, err := sanitizeRelativePath(normalizedPath, sanitizePathSegment)
	if err != nil {
		return "", err
	}

	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", err
	}

	return sanitized, nil
}

// DisplayPath replaces control and format runes so a path is safe to print.
func DisplayPath(pathValue string) string {
	out, err := sanitizeRelativePath(strings.ReplaceAll(pathValue, `\`, `/`), sanitizeControlSegment)
	if err != nil {
		return "_"
	}

	return out
}

// sanitizeResourcePaths returns output paths for resources: filesystem-safe
// and unique within the batch. Game archives often carry mangled names, so
// unparsable paths are sanitized segment by segment instead of failing.
func sanitizeResourcePaths(resources []Resource) ([]string, error) {
	out := make([]string, len(resources))
	used := make(map[string]struct{}, len(resources))
	nextSuffix := make(map[string]int, len(resources))

	for i, res := range resources {
		relativePath, err := normalizeExtractEntryPath(res.Path)
		if err != nil {
			relativePath = strings.ReplaceAll(res.Path, `\`, `/`)
		}

		sanitized, err := sanitizeRelativePath(relativePath, sanitizePathSegment)
		if err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", res.Path, err)
		}

		sanitized, err = makeSanitizedPathUnique(sanitized, used, nextSuffix)
		if err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", res.Path, err)
		}

		if _, err := normalizeExtractEntryPath(sanitized); err != nil {
			return nil, fmt.Errorf("sanitize path %s: %w", res.Path, err)
		}

		out[i] = sanitized
	}

	return out, nil
}

// sanitizeRelativePath sanitizes each segment of a slash-separated path.
func sanitizeRelativePath(relativePath string, sanitizeSegment func(string) (string, error)) (string, error) {
	parts := strings.Split(relativePath, "/")
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." {
			continue
		}

		segment, err := sanitizeSegment(part)
		if err != nil {
			return "", err
		}

		sanitized = append(sanitized, segment)
	}
	if len(sanitized) == 0 {
		return "_", nil
	}

	return strings.Join(sanitized, "/"), nil
}

// sanitizePathSegment sanitizes one segment for broad filesystem compatibility.
func sanitizePathSegment(segment string) (string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" || segment == ".." {
		return "_", nil
	}
	rawReserved := isReservedDeviceName(segment)

	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(b.String(), ". ")
	if sanitized == "" {
		sanitized = "_"
	}

	base := sanitized
	if dot := strings.IndexByte(base, '.'); dot >= 0 {
		base = base[:dot]
	}
	if rawReserved || isReservedDeviceName(base) {
		sanitized = "_" + sanitized
	}

	if len(sanitized) > maxSanitizedSegmentLen {
		sanitized = shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
	}

	return sanitized, nil
}

// sanitizeControlSegment replaces unsafe runes of one segment for text output.
func sanitizeControlSegment(segment string) (string, error) {
	if segment == ".." {
		return "_", nil
	}

	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if isUnsafeControlCharRune(r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	return b.String(), nil
}

// isUnsafeControlCharRune reports whether r is unsafe for textual output.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	// U+FFFD comes from undecodable code page bytes.
	return r == '�'
}

// isReservedDeviceName reports whether name is a reserved device identifier.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ". :"))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}
	if candidate == "" {
		return false
	}

	_, ok := reservedDeviceNames[candidate]
	return ok
}

// makeSanitizedPathUnique resolves collisions by adding a deterministic "~N" suffix.
func makeSanitizedPathUnique(pathValue string, used map[string]struct{}, nextSuffix map[string]int) (string, error) {
	key := strings.ToLower(pathValue)
	if _, exists := used[key]; !exists {
		used[key] = struct{}{}
		return pathValue, nil
	}

	dir := path.Dir(pathValue)
	name := path.Base(pathValue)
	startIdx := max(nextSuffix[key], 2)

	for idx := startIdx; idx < 1000000; idx++ {
		candidate := withNumericSuffix(name, idx)
		if dir != "." {
			candidate = dir + "/" + candidate
		}

		candidateKey := strings.ToLower(candidate)
		if _, exists := used[candidateKey]; exists {
			continue
		}

		used[candidateKey] = struct{}{}
		nextSuffix[key] = idx + 1
		return candidate, nil
	}

	return "", ErrInvalidExtractPath
}

// withNumericSuffix appends "~N" before the extension and keeps the segment length.
func withNumericSuffix(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := "~" + strconv.Itoa(n)
	allowedBaseLen := max(maxSanitizedSegmentLen-len(ext)-len(suffix), 1)
	if len(base) > allowedBaseLen {
		base = shortenSegmentDeterministic(base, allowedBaseLen)
	}

	return base + suffix + ext
}

// shortenSegmentDeterministic shortens a long segment keeping a hash of the original.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 10 {
		return value[:maxLen]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	hashPart := fmt.Sprintf("~%08x", h.Sum32())
	prefixLen := max(maxLen-len(hashPart), 1)

	return value[:prefixLen] + hashPart
}
