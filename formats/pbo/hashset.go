// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package pbo

import (
	"crypto/sha1" //nolint:gosec // Signature format requires SHA1.
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/woozymasta/gamepak"
)

// SignVersion is the signature hash policy version.
type SignVersion uint32

// Supported signature hash policy versions.
const (
	// SignVersionV2 hashes every payload except media extensions.
	SignVersionV2 SignVersion = 2
	// SignVersionV3 hashes only script and config payloads of one game.
	SignVersionV3 SignVersion = 3
)

// GameType selects the v3 extension policy.
type GameType string

// Game types with a v3 extension policy.
const (
	GameTypeArma GameType = "arma"
	GameTypeDayZ GameType = "dayz"
)

var (
	// ErrUnsupportedSignVersion means the signature version is neither 2 nor 3.
	ErrUnsupportedSignVersion = errors.New("unsupported sign version")
	// ErrUnsupportedGameType means v3 was requested for a game without a policy.
	ErrUnsupportedGameType = errors.New("unsupported game type for v3 signature")
)

// HashSet holds the three digests a signature is computed over.
type HashSet struct {
	Hash1 [shaSize]byte `json:"hash1"`
	Hash2 [shaSize]byte `json:"hash2"`
	Hash3 [shaSize]byte `json:"hash3"`
}

// v2 skips these extensions; v3 keeps only the per-game lists.
var (
	v2Excluded = []string{"paa", "jpg", "p3d", "tga", "rvmat", "lip", "ogg", "wss", "png", "rtm", "pac", "fxy", "wrp"}
	v3Allowed  = map[GameType][]string{
		GameTypeDayZ: {"bikb", "c", "ext", "hpp", "cfg", "h", "inc"},
		GameTypeArma: {"sqf", "inc", "bikb", "ext", "fsm", "sqm", "hpp", "cfg", "sqs", "h", "cpp"},
	}
)

// ComputeHashSet derives the signature hash set of an opened PBO:
// hash1 covers the file without its trailer, hash2 and hash3 mix in the
// sorted entry names, the selected stored payloads and the prefix header.
func ComputeHashSet(a *gamepak.Archive, version SignVersion, game GameType) (HashSet, error) {
	var hs HashSet
	if a == nil {
		return hs, gamepak.ErrNilReader
	}

	game = GameType(strings.ToLower(string(game)))
	switch version {
	case SignVersionV2:
	case SignVersionV3:
		if _, ok := v3Allowed[game]; !ok {
			return hs, fmt.Errorf("%w: %q", ErrUnsupportedGameType, game)
		}
	default:
		return hs, fmt.Errorf("%w: %d", ErrUnsupportedSignVersion, version)
	}

	src := a.Source()
	resources := a.Resources()

	h := sha1.New() //nolint:gosec // Signature format requires SHA1.
	if _, err := io.Copy(h, src.Section(0, signedEnd(src, resources))); err != nil {
		return hs, fmt.Errorf("hash1: %w", err)
	}
	hash1 := h.Sum(nil)

	nameHash := signNameHash(resources)
	fileHash, err := signFileHash(resources, version, game)
	if err != nil {
		return hs, fmt.Errorf("filehash: %w", err)
	}

	prefix := ""
	for _, hp := range a.Headers() {
		if strings.EqualFold(hp.Key, "prefix") {
			prefix = hp.Value
			break
		}
	}

	copy(hs.Hash1[:], hash1)
	copy(hs.Hash2[:], mixSignHash(hash1, nameHash, prefix))
	copy(hs.Hash3[:], mixSignHash(fileHash, nameHash, prefix))

	return hs, nil
}

// signedEnd is the file size without a trailer that follows the payloads.
func signedEnd(src *gamepak.Source, resources []gamepak.Resource) int64 {
	size := src.Size()
	var dataEnd int64
	for _, res := range resources {
		dataEnd = max(dataEnd, res.Offset+res.StoredSize)
	}

	if _, ok := Trailer(gamepak.NewSourceReader(src)); ok && dataEnd <= size-trailerSize {
		return size - trailerSize
	}

	return size
}

// mixSignHash hashes a digest with the name hash and the prefix ending in "\".
func mixSignHash(digest, nameHash []byte, prefix string) []byte {
	h := sha1.New() //nolint:gosec // Signature format requires SHA1.
	_, _ = h.Write(digest)
	_, _ = h.Write(nameHash)
	if prefix != "" {
		_, _ = io.WriteString(h, prefix)
		if !strings.HasSuffix(prefix, `\`) {
			_, _ = io.WriteString(h, `\`)
		}
	}

	return h.Sum(nil)
}

// signNameHash hashes sorted unique lower-cased names of non-empty entries.
func signNameHash(resources []gamepak.Resource) []byte {
	names := make([]string, 0, len(resources))
	for _, res := range resources {
		if res.Path == "" || res.StoredSize == 0 {
			continue
		}

		names = append(names, strings.ReplaceAll(asciiLower(res.Path), "/", `\`))
	}

	slices.Sort(names)
	names = slices.Compact(names)

	h := sha1.New() //nolint:gosec // Signature format requires SHA1.
	for _, n := range names {
		_, _ = io.WriteString(h, n)
	}

	return h.Sum(nil)
}

// signFileHash hashes the stored bytes of entries selected by the policy.
func signFileHash(resources []gamepak.Resource, version SignVersion, game GameType) ([]byte, error) {
	h := sha1.New() //nolint:gosec // Signature format requires SHA1.
	copyBuf, release := gamepak.AcquireCopyBuffer()
	defer release()

	hashed := false
	for _, res := range resources {
		if res.Path == "" || res.StoredSize == 0 || !signedExtension(res.Path, version, game) {
			continue
		}

		if _, err := gamepak.CopyStored(h, res, copyBuf); err != nil {
			return nil, err
		}
		hashed = true
	}

	if !hashed {
		if version == SignVersionV2 {
			_, _ = io.WriteString(h, "nothing")
		} else {
			_, _ = io.WriteString(h, "gnihton")
		}
	}

	return h.Sum(nil), nil
}

// signedExtension reports whether the payload of name takes part in the file hash.
func signedExtension(name string, version SignVersion, game GameType) bool {
	ext := strings.TrimPrefix(path.Ext(strings.ReplaceAll(name, `\`, "/")), ".")
	ext = asciiLower(ext)

	if version == SignVersionV2 {
		return !slices.Contains(v2Excluded, ext)
	}

	return ext != "" && slices.Contains(v3Allowed[game], ext)
}

// asciiLower lowers A-Z only; other bytes of legacy code page names stay as is.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}

	return string(b)
}
