// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Capability is a bit set of operations a format supports.
type Capability uint8

// Format capabilities.
const (
	// CapRead means the format can be parsed and extracted.
	CapRead Capability = 1 << iota
	// CapWrite means the format can be built from inputs.
	CapWrite
	// CapReplace means entries can be replaced while keeping others stored as-is.
	CapReplace
	// CapRename means entries can be renamed on rewrite.
	CapRename
)

// Has reports whether all bits of x are set.
func (c Capability) Has(x Capability) bool {
	return c&x == x
}

// String returns a comma separated capability list.
func (c Capability) String() string {
	names := make([]string, 0, 4)
	for _, item := range []struct {
		name string
		bit  Capability
	}{
		{"read", CapRead},
		{"write", CapWrite},
		{"replace", CapReplace},
		{"rename", CapRename},
	} {
		if c.Has(item.bit) {
			names = append(names, item.name)
		}
	}

	return strings.Join(names, ",")
}

// Info describes one format plugin.
type Info struct {
	// ID is the unique registry key, e.g. "pbo".
	ID string `json:"id" yaml:"id"`
	// Name is a human readable format name.
	Name string `json:"name" yaml:"name"`
	// Extensions lists typical container extensions without dot.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	// Platforms lists games or engines known to use the format.
	Platforms []string `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	// Caps is the capability set.
	Caps Capability `json:"caps" yaml:"caps"`
}

// Plugin recognizes and parses one container grammar.
// Implementations are stateless and safe for concurrent use.
type Plugin interface {
	// Info returns the static descriptor.
	Info() Info
	// Score rates how likely the container is in this format.
	// Errors count as zero.
	Score(r *Reader) (int, error)
	// Parse reads the directory and returns resources in declared order.
	Parse(r *Reader, env *Env) ([]Resource, error)
}

// Writer is implemented by formats that can be built from inputs.
type Writer interface {
	Write(ctx context.Context, w io.WriteSeeker, inputs []Input, opts WriteOptions) (*WriteResult, error)
}

// Replacer is implemented by formats that can rewrite an archive copying
// kept entries in their stored encoding.
type Replacer interface {
	Rewrite(ctx context.Context, w io.WriteSeeker, plan []RewriteEntry, opts WriteOptions) (*WriteResult, error)
}

// ExtensionGuesser is implemented by formats whose entries lack reliable
// extensions; head holds the first decoded bytes of the resource.
type ExtensionGuesser interface {
	GuessExtension(res Resource, head []byte) string
}

// SkippedEntry is one entry a plugin omitted during parse.
type SkippedEntry struct {
	Err  error  `json:"-" yaml:"-"`
	Path string `json:"path" yaml:"path"`
}

// Env is the parse environment handed to plugins.
type Env struct {
	// Logger receives parse diagnostics.
	Logger *slog.Logger
	// Options carries plugin options (keys, variants).
	Options map[string]string
	// Limits are the sanity ceilings of this parse.
	Limits Limits
	// NameEncoding is the code page for sibling readers.
	NameEncoding NameEncoding
	// Mmap maps sibling files instead of reading them.
	Mmap bool

	name     string
	siblings []*Source
	skipped  []SkippedEntry
	headers  []HeaderPair
}

// NewEnv returns an environment for a container with the given path or label.
func NewEnv(name string) *Env {
	return &Env{
		Logger: slog.New(slog.DiscardHandler),
		Limits: DefaultLimits(),
		name:   name,
	}
}

// Name returns the container path or label.
func (e *Env) Name() string {
	return e.name
}

// Option returns one plugin option.
func (e *Env) Option(key string) (string, bool) {
	v, ok := e.Options[key]
	return v, ok
}

// Skip records an omitted entry and logs it at warn level.
// Unsupported codec parameters skip the entry, not the archive.
func (e *Env) Skip(path string, err error) {
	e.skipped = append(e.skipped, SkippedEntry{Path: path, Err: err})
	e.logger().Warn("skip entry", slog.String("archive", e.name), slog.String("path", path), slog.Any("error", err))
}

// Skipped returns entries omitted so far.
func (e *Env) Skipped() []SkippedEntry {
	return append([]SkippedEntry(nil), e.skipped...)
}

// SetHeaders records container-level key-value pairs (format headers).
func (e *Env) SetHeaders(headers []HeaderPair) {
	e.headers = append([]HeaderPair(nil), headers...)
}

// Headers returns recorded container-level pairs.
func (e *Env) Headers() []HeaderPair {
	return append([]HeaderPair(nil), e.headers...)
}

// Siblings returns sibling sources opened through this environment.
func (e *Env) Siblings() []*Source {
	return append([]*Source(nil), e.siblings...)
}

// Close closes all sibling sources.
func (e *Env) Close() error {
	var errs []error
	for _, src := range e.siblings {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.siblings = nil

	return errors.Join(errs...)
}

// reset drops per-attempt state before a fallback parse.
func (e *Env) reset() {
	_ = e.Close()
	e.skipped = nil
	e.headers = nil
}

// logger returns a non-nil logger.
func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return e.Logger
}

// FileFinalizer is implemented by formats that post-process a written
// archive file, such as appending a checksum trailer.
type FileFinalizer interface {
	FinalizeFile(path string) error
}
