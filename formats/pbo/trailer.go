// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package pbo

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // Trailer format requires SHA1.
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/gamepak"
)

// trailerSize is the NUL marker plus the SHA1 digest.
const trailerSize = 1 + shaSize

// Trailer returns the 20-byte trailer hash when the container ends with
// 0x00 followed by 20 bytes.
func Trailer(r *gamepak.Reader) ([shaSize]byte, bool) {
	var sum [shaSize]byte
	if r == nil || r.Len() < headerSize+trailerSize {
		return sum, false
	}

	var tail [trailerSize]byte
	if _, err := r.ReadAt(tail[:], r.Len()-trailerSize); err != nil || tail[0] != 0 {
		return sum, false
	}

	copy(sum[:], tail[1:])
	return sum, true
}

// VerifyTrailer reports whether the file at path ends with a trailer that
// matches the SHA1 of the preceding bytes.
func VerifyTrailer(path string) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return false, fmt.Errorf("open for trailer: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, ok, err := trailerCandidate(f)
	return ok, err
}

// FinalizeFile implements gamepak.FileFinalizer: it appends the SHA1
// trailer (0x00 + 20-byte hash) computed over all preceding content.
// An existing valid trailer is replaced.
func (*Format) FinalizeFile(path string) error {
	return writeSHA1Trailer(path)
}

// writeSHA1Trailer appends or replaces the SHA1 trailer of a file.
func writeSHA1Trailer(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // caller-provided archive path
	if err != nil {
		return fmt.Errorf("open for trailer: %w", err)
	}
	defer func() { _ = f.Close() }()

	writePos, ok, err := trailerCandidate(f)
	if err != nil {
		return err
	}

	if ok {
		// A valid trailer already covers the content.
		return nil
	}

	sum, err := hashFilePrefixSHA1(f, writePos)
	if err != nil {
		return fmt.Errorf("hash content: %w", err)
	}

	if _, err := f.Seek(writePos, io.SeekStart); err != nil {
		return fmt.Errorf("seek for trailer write: %w", err)
	}

	if _, err := f.Write(append([]byte{0x00}, sum...)); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}

	return f.Sync()
}

// trailerCandidate returns the content length of f and whether it already
// ends with a valid trailer. Without a valid trailer the length is the file size.
func trailerCandidate(f *os.File) (int64, bool, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false, fmt.Errorf("seek end: %w", err)
	}

	if size < trailerSize {
		return size, false, nil
	}

	tail := make([]byte, trailerSize)
	if _, err := f.ReadAt(tail, size-trailerSize); err != nil || tail[0] != 0x00 {
		return size, false, nil //nolint:nilerr // unreadable tail means no trailer
	}

	candidate := size - trailerSize
	sum, err := hashFilePrefixSHA1(f, candidate)
	if err != nil {
		return 0, false, fmt.Errorf("hash trailer candidate: %w", err)
	}

	if bytes.Equal(sum, tail[1:]) {
		return candidate, true, nil
	}

	return size, false, nil
}

// hashFilePrefixSHA1 calculates SHA1 over first n bytes of file.
func hashFilePrefixSHA1(f *os.File, n int64) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}

	h := sha1.New() //nolint:gosec // Trailer format requires SHA1.
	if _, err := io.Copy(h, io.LimitReader(f, n)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
