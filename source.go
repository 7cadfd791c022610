// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

// Source is one read-only seekable container: a file, a memory map or a byte slice.
// It is safe for concurrent ReadAt calls; every decode opens its own section.
type Source struct {
	ra     io.ReaderAt
	closer io.Closer
	name   string
	size   int64

	closeOnce sync.Once
	closeErr  error
}

// OpenSource opens a file-backed source. With useMmap the file is memory mapped.
func OpenSource(path string, useMmap bool) (*Source, error) {
	if useMmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}

		return &Source{ra: m, closer: m, name: path, size: int64(m.Len())}, nil
	}

	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &Source{ra: f, closer: f, name: path, size: info.Size()}, nil
}

// NewSource wraps a caller-owned io.ReaderAt. Close does not close ra.
func NewSource(ra io.ReaderAt, size int64, name string) *Source {
	return &Source{ra: ra, name: name, size: size}
}

// NewBytesSource wraps an in-memory container.
func NewBytesSource(b []byte, name string) *Source {
	return &Source{ra: bytes.NewReader(b), name: name, size: int64(len(b))}
}

// Name returns the path or label of the source.
func (s *Source) Name() string {
	return s.name
}

// Size returns the container size in bytes.
func (s *Source) Size() int64 {
	return s.size
}

// ReadAt implements io.ReaderAt.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if s == nil || s.ra == nil {
		return 0, ErrNilReader
	}

	return s.ra.ReadAt(p, off)
}

// Section returns an independent reader over [off, off+n).
func (s *Source) Section(off, n int64) *io.SectionReader {
	return io.NewSectionReader(s, off, n)
}

// Close releases the underlying file or mapping. It is idempotent.
func (s *Source) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})

	return s.closeErr
}
