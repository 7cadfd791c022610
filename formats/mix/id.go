// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package mix

import (
	"hash/crc32"
	"math/bits"
	"strings"
)

// CRCID returns the Tiberian Sun and Red Alert 2 id of name: a CRC-32 of the
// upper-cased name padded to a multiple of four bytes.
func CRCID(name string) int32 {
	buf := []byte(strings.ToUpper(name))
	if rem := len(buf) & 3; rem != 0 {
		base := len(buf) &^ 3
		buf = append(buf, byte(rem))
		for range 3 - rem {
			buf = append(buf, buf[base])
		}
	}

	return int32(crc32.ChecksumIEEE(buf)) //nolint:gosec // id is a bit pattern
}

// ClassicID returns the Command & Conquer and Red Alert id of name: upper-cased
// little-endian words summed with a one-bit rotation.
func ClassicID(name string) int32 {
	buf := []byte(strings.ToUpper(name))

	var id uint32
	for i := 0; i < len(buf); i += 4 {
		var word uint32
		for j := 0; j < 4 && i+j < len(buf); j++ {
			word |= uint32(buf[i+j]) << (8 * j)
		}

		id = bits.RotateLeft32(id, 1) + word
	}

	return int32(id) //nolint:gosec // id is a bit pattern
}
