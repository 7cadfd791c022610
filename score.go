// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

// Detection weights. Signals are independent and additive.
const (
	// WeightExtension is added when the container extension matches.
	WeightExtension = 25
	// WeightMagic is added when the header magic matches.
	WeightMagic = 50
	// WeightStructure is added per plausible structural field.
	WeightStructure = 15
	// DefaultAcceptanceFloor is the score a format must exceed to be recognized.
	// An extension match alone never clears it.
	DefaultAcceptanceFloor = 25
)

// Score accumulates detection signals for one plugin.
type Score struct {
	value int
}

// Add adds raw points.
func (s *Score) Add(points int) {
	s.value += points
}

// Extension adds WeightExtension when the container name carries one of exts.
func (s *Score) Extension(r *Reader, exts ...string) bool {
	ok := CheckExtension(r, exts...)
	if ok {
		s.value += WeightExtension
	}

	return ok
}

// Magic adds WeightMagic when ok.
func (s *Score) Magic(ok bool) bool {
	if ok {
		s.value += WeightMagic
	}

	return ok
}

// Structure adds WeightStructure when ok.
func (s *Score) Structure(ok bool) bool {
	if ok {
		s.value += WeightStructure
	}

	return ok
}

// Count adds WeightStructure when n is a sane non-zero count for r.
func (s *Score) Count(r *Reader, n int64) bool {
	return s.Structure(n > 0 && r.CheckCount(n) == nil)
}

// Range adds WeightStructure when [off, off+length) fits r.
func (s *Score) Range(r *Reader, off, length int64) bool {
	return s.Structure(r.CheckRange(off, length) == nil)
}

// Value returns the accumulated score.
func (s *Score) Value() int {
	return s.value
}
