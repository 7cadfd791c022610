// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for archive operations. Use errors.Is in callers.
var (
	// ErrValidation means a count, offset, length or string failed structural checks.
	ErrValidation = errors.New("validation failure")
	// ErrTruncated means a read ran past the end of the readable range.
	ErrTruncated = fmt.Errorf("%w: truncated read", ErrValidation)
	// ErrUnrecognized means no registered format scored above the acceptance floor.
	ErrUnrecognized = errors.New("unrecognized archive format")
	// ErrCodec is the parent of all decode failures.
	ErrCodec = errors.New("codec failure")
	// ErrCodecTruncated means the encoded stream ended before the declared output size.
	ErrCodecTruncated = fmt.Errorf("%w: truncated stream", ErrCodec)
	// ErrCodecUnsupported means the codec parameters are not implemented.
	ErrCodecUnsupported = fmt.Errorf("%w: unsupported parameters", ErrCodec)
	// ErrCodecCorrupt means the encoded stream is malformed or longer than declared.
	ErrCodecCorrupt = fmt.Errorf("%w: corrupt stream", ErrCodec)
	// ErrMissingSibling means a companion file of a split archive could not be opened.
	ErrMissingSibling = errors.New("missing sibling file")
	// ErrPluginFault means a format plugin panicked and was recovered.
	ErrPluginFault = errors.New("format plugin fault")

	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the archive or source is already closed.
	ErrClosed = errors.New("archive or source already closed")
	// ErrResourceNotFound means the named resource is not in the archive.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnknownFormat means the requested format id is not registered.
	ErrUnknownFormat = errors.New("unknown format id")
	// ErrDuplicateFormat means a format id is registered twice.
	ErrDuplicateFormat = errors.New("duplicate format id")
	// ErrNotWritable means the format has no writer.
	ErrNotWritable = errors.New("format does not support writing")
	// ErrSizeOverflow means a size exceeds the limit of the target field or format.
	ErrSizeOverflow = errors.New("size exceeds format limit")
	// ErrEmptyInputs means no inputs provided for pack.
	ErrEmptyInputs = errors.New("no inputs provided for pack")
	// ErrInvalidRules means one or more path rules are invalid.
	ErrInvalidRules = errors.New("invalid path rules")
	// ErrInvalidEntryPath means one of input entry paths is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two inputs resolve to the same path (case-insensitive).
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means resolved extraction path escapes destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
)

// ValidationError describes one failed structural check.
// It matches ErrValidation through errors.Is.
type ValidationError struct {
	Field  string // checked field, e.g. "count", "offset", "name"
	Reason string
	Value  int64
	Limit  int64
	Pos    int64 // reader position at failure, -1 when unknown
}

// Error implements error.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failure: ")
	b.WriteString(e.Field)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	fmt.Fprintf(&b, " (value %d, limit %d", e.Value, e.Limit)
	if e.Pos >= 0 {
		fmt.Fprintf(&b, ", at %d", e.Pos)
	}
	b.WriteByte(')')

	return b.String()
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// newValidationError builds a ValidationError with unknown position.
func newValidationError(field, reason string, value, limit int64) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Value:  value,
		Limit:  limit,
		Pos:    -1,
	}
}

// IsValidation reports whether err is a structural validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsCodec reports whether err is a decode failure.
func IsCodec(err error) bool {
	return errors.Is(err, ErrCodec)
}
