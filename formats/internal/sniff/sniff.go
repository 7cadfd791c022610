// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package sniff guesses file extensions of nameless archive entries from
// their leading bytes.
package sniff

import "bytes"

// signature maps a byte pattern at a fixed offset to an extension.
type signature struct {
	// Magic is the byte sequence to match at Offset.
	Magic []byte
	// Ext is the extension without dot.
	Ext string
	// Offset is the byte offset where the magic bytes are expected.
	Offset int
}

// HeadSize is the number of leading bytes Extension inspects.
const HeadSize = 64

// signatureTable lists signatures longest match first where prefixes collide.
//
//nolint:gochecknoglobals
var signatureTable = []signature{
	{Magic: []byte("Creative Voice File\x1a"), Ext: "voc"},
	{Magic: []byte("\x89PNG\r\n\x1a\n"), Ext: "png"},
	{Magic: []byte("WAVE"), Ext: "wav", Offset: 8},
	{Magic: []byte("AVI "), Ext: "avi", Offset: 8},
	{Magic: []byte("OggS"), Ext: "ogg"},
	{Magic: []byte("MThd"), Ext: "mid"},
	{Magic: []byte("DDS "), Ext: "dds"},
	{Magic: []byte("BM"), Ext: "bmp"},
	{Magic: []byte("GIF8"), Ext: "gif"},
	{Magic: []byte{0xFF, 0xD8, 0xFF}, Ext: "jpg"},
	{Magic: []byte("PK\x03\x04"), Ext: "zip"},
	{Magic: []byte("PACK"), Ext: "pak"},
	{Magic: []byte("KenSilverman"), Ext: "grp"},
	{Magic: []byte{0x28, 0xB5, 0x2F, 0xFD}, Ext: "zst"},
	{Magic: []byte("BUILDART"), Ext: "art"},
	{Magic: []byte{0x0A, 0x05, 0x01, 0x08}, Ext: "pcx"},
}

// Extension returns the extension matching head, or "" when unknown.
// Printable text without NUL bytes is reported as "txt".
func Extension(head []byte) string {
	for _, sig := range signatureTable {
		end := sig.Offset + len(sig.Magic)
		if end <= len(head) && bytes.Equal(head[sig.Offset:end], sig.Magic) {
			return sig.Ext
		}
	}

	if isText(head) {
		return "txt"
	}

	return ""
}

// isText reports whether head looks like plain ASCII text.
func isText(head []byte) bool {
	if len(head) == 0 {
		return false
	}

	for _, b := range head {
		switch {
		case b == '\n' || b == '\r' || b == '\t':
		case b < 0x20 || b > 0x7e:
			return false
		}
	}

	return true
}
