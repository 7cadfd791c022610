// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import "sync"

// Progress is one reporting event of a long-running batch.
type Progress struct {
	// Err is set when the item failed.
	Err error `json:"-" yaml:"-"`
	// Path is the entry path or archive file of this event.
	Path string `json:"path" yaml:"path"`
	// Done is the monotonic number of processed items, failed ones included.
	Done int64 `json:"done" yaml:"done"`
	// Total is the number of items scheduled.
	Total int64 `json:"total" yaml:"total"`
	// Bytes is the number of bytes written for this item.
	Bytes int64 `json:"bytes,omitempty" yaml:"bytes,omitempty"`
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(Progress)

// progressCounter serializes progress callbacks from parallel workers.
type progressCounter struct {
	fn    ProgressFunc
	total int64
	done  int64
	mu    sync.Mutex
}

// newProgressCounter returns a counter; fn may be nil.
func newProgressCounter(fn ProgressFunc, total int64) *progressCounter {
	return &progressCounter{fn: fn, total: total}
}

// step counts one processed item and reports it.
func (p *progressCounter) step(path string, n int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if p.fn == nil {
		return
	}

	p.fn(Progress{
		Path:  path,
		Done:  p.done,
		Total: p.total,
		Bytes: n,
		Err:   err,
	})
}
