// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// NameEncoding selects how raw name bytes are turned into strings.
type NameEncoding string

const (
	// NameEncodingRaw keeps bytes as-is (Go string of the raw bytes).
	NameEncodingRaw NameEncoding = ""
	// NameEncodingShiftJIS decodes Japanese Shift-JIS names.
	NameEncodingShiftJIS NameEncoding = "shift-jis"
	// NameEncodingWindows1252 decodes Western Windows code page names.
	NameEncodingWindows1252 NameEncoding = "windows-1252"
	// NameEncodingCP437 decodes original IBM PC code page names.
	NameEncodingCP437 NameEncoding = "cp437"
)

// ParseNameEncoding resolves a user-provided encoding label.
func ParseNameEncoding(label string) (NameEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "raw", "utf-8", "utf8":
		return NameEncodingRaw, nil
	case "shift-jis", "shift_jis", "sjis", "cp932":
		return NameEncodingShiftJIS, nil
	case "windows-1252", "cp1252", "latin1":
		return NameEncodingWindows1252, nil
	case "cp437", "ibm437", "dos":
		return NameEncodingCP437, nil
	default:
		return NameEncodingRaw, fmt.Errorf("unknown name encoding %q", label)
	}
}

// encoding returns the x/text encoding or nil for raw names.
func (e NameEncoding) encoding() encoding.Encoding {
	switch e {
	case NameEncodingShiftJIS:
		return japanese.ShiftJIS
	case NameEncodingWindows1252:
		return charmap.Windows1252
	case NameEncodingCP437:
		return charmap.CodePage437
	default:
		return nil
	}
}

// Decode converts raw name bytes. Invalid sequences become U+FFFD.
func (e NameEncoding) Decode(raw []byte) string {
	enc := e.encoding()
	if enc == nil {
		return string(raw)
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}

	return string(out)
}

// Encode converts a name back to raw bytes for writers.
func (e NameEncoding) Encode(name string) ([]byte, error) {
	enc := e.encoding()
	if enc == nil {
		return []byte(name), nil
	}

	out, err := enc.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("encode name %q as %s: %w", name, e, err)
	}

	return out, nil
}
