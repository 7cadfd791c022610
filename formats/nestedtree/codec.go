// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package nestedtree

import (
	"fmt"
	"strings"

	"github.com/woozymasta/gamepak"
)

// CodecID is the per-file codec byte of a file record.
type CodecID uint8

// Codec ids.
const (
	CodecStored CodecID = iota
	CodecZlib
	CodecLZHUF
	CodecLZ4
	CodecZstd
	// CodecZlibBounded is zlib whose size field is an upper bound.
	CodecZlibBounded
	CodecDeflate
)

// chain returns the decode chain of id and whether size is an upper bound.
func (id CodecID) chain() ([]gamepak.Codec, bool, error) {
	switch id {
	case CodecStored:
		return nil, false, nil
	case CodecZlib:
		return []gamepak.Codec{gamepak.Zlib{}}, false, nil
	case CodecLZHUF:
		return []gamepak.Codec{gamepak.LZHUF{}}, false, nil
	case CodecLZ4:
		return []gamepak.Codec{gamepak.LZ4Block{}}, false, nil
	case CodecZstd:
		return []gamepak.Codec{gamepak.Zstd{}}, false, nil
	case CodecZlibBounded:
		return []gamepak.Codec{gamepak.Zlib{}}, true, nil
	case CodecDeflate:
		return []gamepak.Codec{gamepak.Inflate{}}, false, nil
	default:
		return nil, false, fmt.Errorf("%w: codec id %d", gamepak.ErrCodecUnsupported, id)
	}
}

// codecOf maps a resource decode chain back to its id.
func codecOf(res gamepak.Resource) (CodecID, error) {
	switch res.Codec() {
	case "stored":
		return CodecStored, nil
	case "zlib":
		if res.SizeBound {
			return CodecZlibBounded, nil
		}
		return CodecZlib, nil
	case "lzhuf":
		return CodecLZHUF, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "deflate":
		return CodecDeflate, nil
	default:
		return 0, fmt.Errorf("%w: %s cannot be stored as %s", gamepak.ErrCodecUnsupported, res.Path, res.Codec())
	}
}

// parseCodecName maps the OptionCodec value to an id and its encoder.
func parseCodecName(name string) (CodecID, gamepak.Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return CodecZstd, gamepak.Zstd{}, nil
	case "zlib":
		return CodecZlib, gamepak.Zlib{}, nil
	case "lzhuf":
		return CodecLZHUF, gamepak.LZHUF{}, nil
	case "lz4":
		return CodecLZ4, gamepak.LZ4Block{}, nil
	case "deflate":
		return CodecDeflate, gamepak.Inflate{}, nil
	default:
		return 0, nil, fmt.Errorf("%w: %s=%q", gamepak.ErrCodecUnsupported, OptionCodec, name)
	}
}
