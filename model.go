// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"io"
	"maps"
	"path"
	"strings"
	"time"

	"github.com/woozymasta/pathrules"
)

// Default writer tuning values.
const (
	DefaultWriteBuffer     = 16 * 1024 * 1024
	DefaultMinCompressSize = 512
	DefaultMaxCompressSize = 16 * 1024 * 1024
)

// Common property keys set by format plugins.
const (
	// PropTimestamp is a Unix timestamp (uint32 or int64).
	PropTimestamp = "timestamp"
	// PropMime is a format-specific type marker.
	PropMime = "mime"
	// PropID is a numeric entry identifier for nameless formats.
	PropID = "id"
	// PropPhase is the per-entry key phase of XOR-keyed formats.
	PropPhase = "phase"
)

// Resource is one logical entry of an archive.
//
// Offset and StoredSize address the stored bytes inside Source. Size is the
// decoded length: exact unless SizeBound is set, in which case it is an upper
// bound. Without codecs stored bytes are the logical bytes.
type Resource struct {
	// Source is the owning container; nil means the archive's own source.
	Source *Source `json:"-" yaml:"-"`
	// Properties carries format metadata (timestamps, mime markers, ids).
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	// Path is the reconstructed entry path, "\" or "/" separated.
	Path string `json:"path" yaml:"path"`
	// Codecs is the ordered decode chain.
	Codecs []Codec `json:"-" yaml:"-"`
	// Offset is the absolute byte offset of stored data in Source.
	Offset int64 `json:"offset" yaml:"offset"`
	// StoredSize is the stored byte length.
	StoredSize int64 `json:"stored_size" yaml:"stored_size"`
	// Size is the decoded byte length.
	Size int64 `json:"size" yaml:"size"`
	// SizeBound marks Size as an upper bound (bounded decompression).
	SizeBound bool `json:"size_bound,omitempty" yaml:"size_bound,omitempty"`
}

// Encoded reports whether the resource has a decode chain.
func (r Resource) Encoded() bool {
	return len(r.Codecs) > 0
}

// Codec returns the display name of the decode chain.
func (r Resource) Codec() string {
	return ChainName(r.Codecs)
}

// Ext returns the lower-case extension of the resource path without dot.
func (r Resource) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(strings.ReplaceAll(r.Path, `\`, "/")), "."))
}

// Property returns one property value.
func (r Resource) Property(key string) (any, bool) {
	v, ok := r.Properties[key]
	return v, ok
}

// SetProperty stores one property value, allocating the map on first use.
func (r *Resource) SetProperty(key string, value any) {
	if r.Properties == nil {
		r.Properties = make(map[string]any, 2)
	}

	r.Properties[key] = value
}

// clone returns a copy that does not share the property map or codec slice.
func (r Resource) clone() Resource {
	out := r
	if r.Properties != nil {
		out.Properties = maps.Clone(r.Properties)
	}
	if r.Codecs != nil {
		out.Codecs = append([]Codec(nil), r.Codecs...)
	}

	return out
}

// Input describes one source stream to be packed into an archive entry.
type Input struct {
	// ModTime is optional entry timestamp.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside archive.
	Path string `json:"path" yaml:"path"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// HeaderPair is a format-level key-value pair written in provided order.
type HeaderPair struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// RewriteEntry is one entry of a rewrite plan: either a new input or an
// existing resource whose stored bytes are copied unchanged.
type RewriteEntry struct {
	// Input is set for added or replaced entries.
	Input *Input
	// Resource is set for kept entries.
	Resource *Resource
	// Path is the destination path.
	Path string
}

// WriteProgress contains one completed entry write event.
type WriteProgress struct {
	// Path is entry path written to archive.
	Path string `json:"path" yaml:"path"`
	// Codec is the stored encoding.
	Codec string `json:"codec,omitempty" yaml:"codec,omitempty"`
	// Offset is payload offset in resulting archive.
	Offset int64 `json:"offset" yaml:"offset"`
	// StoredSize is stored payload size in bytes.
	StoredSize int64 `json:"stored_size" yaml:"stored_size"`
	// Size is logical size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// CompressionCandidate reports whether compression path was selected for this input entry.
	CompressionCandidate bool `json:"compression_candidate,omitempty" yaml:"compression_candidate,omitempty"`
	// Compressed reports whether compressed payload was actually written.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
}

// WriteOptions configures archive writers.
type WriteOptions struct {
	// OnEntryDone is called after one entry is fully written to archive payload.
	OnEntryDone func(entry WriteProgress) `json:"-" yaml:"-"`
	// Options carries format-specific settings (keys, versions).
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
	// Headers are format-level key-value pairs written in deterministic order.
	Headers []HeaderPair `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Compress defines ordered path rules for compression candidate selection.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// NameEncoding encodes entry names for legacy code page formats.
	NameEncoding NameEncoding `json:"name_encoding,omitempty" yaml:"name_encoding,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// MinCompressSize disables compression for entries smaller than this size.
	MinCompressSize int64 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for entries larger than this size.
	// It also bounds the in-memory compression path.
	MaxCompressSize int64 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
}

// Option returns one format-specific option.
func (opts WriteOptions) Option(key string) (string, bool) {
	v, ok := opts.Options[key]
	return v, ok
}

// WriteResult contains writer output statistics.
type WriteResult struct {
	// Resources describes written entries with offsets in the new archive.
	Resources []Resource `json:"-" yaml:"-"`
	// WrittenEntries is number of entries written to archive.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// RawBytes is total bytes written for uncompressed payload entries.
	RawBytes int64 `json:"raw_bytes,omitempty" yaml:"raw_bytes,omitempty"`
	// CompressedBytes is total bytes written for compressed payload entries.
	CompressedBytes int64 `json:"compressed_bytes,omitempty" yaml:"compressed_bytes,omitempty"`
	// CompressedEntries is number of entries written with compressed payload.
	CompressedEntries int `json:"compressed_entries,omitempty" yaml:"compressed_entries,omitempty"`
	// SkippedCompressionEntries is number of compression candidates stored as raw payload.
	SkippedCompressionEntries int `json:"skipped_compression_entries,omitempty" yaml:"skipped_compression_entries,omitempty"`
	// Duration is end-to-end writer duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// EditOptions configures file-based archive edit flow.
type EditOptions struct {
	// WriteOptions are applied for the rewritten archive.
	WriteOptions WriteOptions `json:"write_options,omitzero" yaml:"write_options,omitzero"`
	// Open configures how the edited archive is opened.
	Open []Option `json:"-" yaml:"-"`
	// BackupKeep controls how many backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry Resource, written int64, outputPath string) `json:"-" yaml:"-"`
	// Progress receives the monotonic processed-entries counter.
	Progress ProgressFunc `json:"-" yaml:"-"`
	// Resources limits extraction to selected resources; nil means all parsed resources.
	Resources []Resource `json:"-" yaml:"-"`
	// Rules select resources by path; empty means all.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// MatcherOptions control selection rule matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// RawNames disables default path sanitization during extract.
	// When false (default), extract rewrites names to filesystem-safe output paths.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
	// ContinueOnError records failed entries and keeps extracting the rest.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
	// Digest computes a content digest of every extracted entry.
	Digest bool `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeAuto first tries create-only, then falls back to truncate for existing files.
	ExtractFileModeAuto ExtractFileMode = "auto"
	// ExtractFileModeOverwriteSmart rewrites files in place and truncates only when existing file is larger.
	ExtractFileModeOverwriteSmart ExtractFileMode = "overwrite_smart"
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	if opts.MinCompressSize <= 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.MaxCompressSize <= 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// WithDefaults returns a copy with zero fields filled. Writers outside this
// package call it before reading tuning values.
func (opts WriteOptions) WithDefaults() WriteOptions {
	opts.applyDefaults()
	return opts
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	opts.WriteOptions.applyDefaults()

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}
