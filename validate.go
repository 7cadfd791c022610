// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"math"
	"path"
	"strings"
)

const (
	// DefaultMaxCount caps entry and record counts declared by headers.
	DefaultMaxCount int64 = 1 << 20
	// DefaultMaxNameLength caps one decoded entry name in bytes.
	DefaultMaxNameLength = 1024
	// DefaultMaxDepth caps directory nesting during tree walks.
	DefaultMaxDepth = 64
	// DefaultMaxDecodedSize caps the declared decoded size of one resource.
	DefaultMaxDecodedSize int64 = 4 << 30
)

// Limits holds sanity ceilings applied to values read from containers.
type Limits struct {
	// MaxCount caps declared entry/record counts.
	MaxCount int64 `json:"max_count,omitempty" yaml:"max_count,omitempty"`
	// MaxNameLength caps decoded name length in bytes.
	MaxNameLength int `json:"max_name_length,omitempty" yaml:"max_name_length,omitempty"`
	// MaxDepth caps tree nesting.
	MaxDepth int `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	// MaxDecodedSize caps declared decoded sizes.
	MaxDecodedSize int64 `json:"max_decoded_size,omitempty" yaml:"max_decoded_size,omitempty"`
}

// DefaultLimits returns the default sanity ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxCount:       DefaultMaxCount,
		MaxNameLength:  DefaultMaxNameLength,
		MaxDepth:       DefaultMaxDepth,
		MaxDecodedSize: DefaultMaxDecodedSize,
	}
}

// applyDefaults fills zero fields with defaults.
func (l *Limits) applyDefaults() {
	if l.MaxCount <= 0 {
		l.MaxCount = DefaultMaxCount
	}
	if l.MaxNameLength <= 0 {
		l.MaxNameLength = DefaultMaxNameLength
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxDecodedSize <= 0 {
		l.MaxDecodedSize = DefaultMaxDecodedSize
	}
}

// CheckCount fails if n is negative or above MaxCount.
func (l Limits) CheckCount(n int64) error {
	l.applyDefaults()
	if n < 0 {
		return newValidationError("count", "negative", n, l.MaxCount)
	}
	if n > l.MaxCount {
		return newValidationError("count", "above ceiling", n, l.MaxCount)
	}

	return nil
}

// CheckDecodedSize fails if a declared decoded size is negative or above MaxDecodedSize.
func (l Limits) CheckDecodedSize(n int64) error {
	l.applyDefaults()
	if n < 0 {
		return newValidationError("decoded size", "negative", n, l.MaxDecodedSize)
	}
	if n > l.MaxDecodedSize {
		return newValidationError("decoded size", "above ceiling", n, l.MaxDecodedSize)
	}

	return nil
}

// CheckOffset fails if o is outside [0, containerSize].
func CheckOffset(o, containerSize int64) error {
	if o < 0 {
		return newValidationError("offset", "negative", o, containerSize)
	}
	if o > containerSize {
		return newValidationError("offset", "past end of container", o, containerSize)
	}

	return nil
}

// CheckLength fails if l is outside [0, containerSize]. Zero is always valid.
func CheckLength(l, containerSize int64) error {
	if l < 0 {
		return newValidationError("length", "negative", l, containerSize)
	}
	if l > containerSize {
		return newValidationError("length", "larger than container", l, containerSize)
	}

	return nil
}

// CheckRange fails unless offset and length are valid and o+l fits the container.
func CheckRange(o, l, containerSize int64) error {
	if err := CheckOffset(o, containerSize); err != nil {
		return err
	}
	if err := CheckLength(l, containerSize); err != nil {
		return err
	}
	if o > math.MaxInt64-l || o+l > containerSize {
		return newValidationError("range", "end past container", o, containerSize)
	}

	return nil
}

// CheckName fails if s is longer than maxLen bytes or contains NUL.
func CheckName(s string, maxLen int) error {
	if maxLen > 0 && len(s) > maxLen {
		return newValidationError("name", "too long", int64(len(s)), int64(maxLen))
	}
	if idx := strings.IndexByte(s, 0); idx >= 0 {
		return newValidationError("name", "contains NUL", int64(idx), int64(maxLen))
	}

	return nil
}

// CheckExtension reports whether the reader's container name carries one of allowed extensions.
// It is a soft signal for scoring and never fails.
func CheckExtension(r *Reader, allowed ...string) bool {
	if r == nil {
		return false
	}

	return matchExtension(r.Name(), allowed)
}

// matchExtension compares the extension of name with allowed, case-insensitively.
func matchExtension(name string, allowed []string) bool {
	ext := strings.TrimPrefix(path.Ext(strings.ReplaceAll(name, `\`, "/")), ".")
	if ext == "" {
		return false
	}

	for _, candidate := range allowed {
		if strings.EqualFold(ext, strings.TrimPrefix(candidate, ".")) {
			return true
		}
	}

	return false
}
