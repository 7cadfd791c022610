// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

// CompressPolicy decides which written entries are compression candidates.
type CompressPolicy struct {
	matcher *PathMatcher
	minSize int64
	maxSize int64
}

// NewCompressPolicy compiles compression rules of opts. Defaults are applied first.
func NewCompressPolicy(opts WriteOptions) (*CompressPolicy, error) {
	opts.applyDefaults()

	matcher, err := NewPathMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	return &CompressPolicy{
		matcher: matcher,
		minSize: opts.MinCompressSize,
		maxSize: opts.MaxCompressSize,
	}, nil
}

// ShouldCompress returns true if path and size pass the compression policy.
func (p *CompressPolicy) ShouldCompress(path string, size int64) bool {
	if p == nil || p.matcher == nil {
		return false
	}
	if !p.fits(size) {
		return false
	}

	return p.matcher.Match(path)
}

// fits reports whether payload size fits compression boundaries.
func (p *CompressPolicy) fits(size int64) bool {
	return size >= p.minSize && size <= p.maxSize
}

// MaxSize returns the largest payload held in memory for compression.
func (p *CompressPolicy) MaxSize() int64 {
	if p == nil {
		return DefaultMaxCompressSize
	}

	return p.maxSize
}
