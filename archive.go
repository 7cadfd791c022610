// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
)

// Default archive tuning values.
const (
	// DefaultCacheEntries is the number of decoded resources kept by ReadAll.
	DefaultCacheEntries = 64
	// DefaultCacheMaxEntrySize is the largest decoded resource kept in the cache.
	DefaultCacheMaxEntrySize = 1 << 20
	// guessHeadSize is the number of decoded bytes handed to ExtensionGuesser.
	guessHeadSize = 64
)

// Option configures Open.
type Option func(*options)

// options holds Open settings.
type options struct {
	logger        *slog.Logger
	registry      *Registry
	pluginOptions map[string]string
	format        string
	nameEncoding  NameEncoding
	limits        Limits
	cacheEntries  int
	cacheMaxEntry int64
	floor         int
	floorSet      bool
	mmap          bool
}

// defaultOptions returns Open defaults.
func defaultOptions() options {
	return options{
		logger:        slog.New(slog.DiscardHandler),
		registry:      defaultRegistry,
		limits:        DefaultLimits(),
		cacheEntries:  DefaultCacheEntries,
		cacheMaxEntry: DefaultCacheMaxEntrySize,
	}
}

// buildOptions applies opts over defaults.
func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.registry == nil {
		o.registry = defaultRegistry
	}
	o.limits.applyDefaults()

	return o
}

// WithLimits sets sanity ceilings for parsing and decoding.
func WithLimits(limits Limits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithRegistry selects the plugin registry used for detection.
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithFormat skips detection and parses with the plugin registered under id.
func WithFormat(id string) Option {
	return func(o *options) {
		o.format = id
	}
}

// WithLogger sets the logger for parse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNameEncoding sets the code page used to decode entry names.
func WithNameEncoding(enc NameEncoding) Option {
	return func(o *options) {
		o.nameEncoding = enc
	}
}

// WithCacheSize sets the number of decoded resources kept by ReadAll.
// Zero or negative disables the cache.
func WithCacheSize(entries int) Option {
	return func(o *options) {
		o.cacheEntries = entries
	}
}

// WithMmap memory maps file sources.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithPluginOption passes one key-value setting to the format plugin.
func WithPluginOption(key, value string) Option {
	return func(o *options) {
		if o.pluginOptions == nil {
			o.pluginOptions = make(map[string]string, 2)
		}

		o.pluginOptions[key] = value
	}
}

// WithAcceptanceFloor overrides the registry's acceptance floor for this open.
func WithAcceptanceFloor(floor int) Option {
	return func(o *options) {
		o.floor = floor
		o.floorSet = true
	}
}

// cacheKey identifies decoded bytes of one resource.
type cacheKey struct {
	src    *Source
	path   string
	offset int64
	stored int64
}

// Archive is one opened container bound to the plugin that parsed it.
// Resource decoding is safe for concurrent use.
type Archive struct {
	src       *Source
	plugin    Plugin
	logger    *slog.Logger
	cache     *arc.ARCCache[cacheKey, []byte]
	index     map[string]int
	env       *Env
	info      Info
	resources []Resource
	skipped   []SkippedEntry
	limits    Limits
	cacheMax  int64
	score     int
	ownsSrc   bool
	closed    bool
	mu        sync.RWMutex
}

// Open opens the archive file at path, detects its format and parses it.
func Open(path string, opts ...Option) (*Archive, error) {
	o := buildOptions(opts)

	src, err := OpenSource(path, o.mmap)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a, err := openArchive(src, o)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	a.ownsSrc = true
	return a, nil
}

// OpenReaderAt parses a container exposed as io.ReaderAt. name is used for
// extension matching and sibling lookup; ra is not closed by the archive.
func OpenReaderAt(ra io.ReaderAt, size int64, name string, opts ...Option) (*Archive, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	return openArchive(NewSource(ra, size, name), buildOptions(opts))
}

// OpenBytes parses an in-memory container.
func OpenBytes(b []byte, name string, opts ...Option) (*Archive, error) {
	return openArchive(NewBytesSource(b, name), buildOptions(opts))
}

// openArchive detects and parses src. The first candidate whose parse
// succeeds wins; failures of all candidates are joined.
func openArchive(src *Source, o options) (*Archive, error) {
	r := NewSourceReader(src, WithReaderLimits(o.limits), WithReaderNameEncoding(o.nameEncoding))

	candidates, err := selectCandidates(r, o)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Logger:       o.logger,
		Options:      maps.Clone(o.pluginOptions),
		Limits:       o.limits,
		NameEncoding: o.nameEncoding,
		Mmap:         o.mmap,
		name:         src.Name(),
	}

	errs := make([]error, 0, len(candidates))
	for _, cand := range candidates {
		env.reset()

		resources, err := parsePlugin(cand.Plugin, r.Clone(), env)
		if err != nil {
			o.logger.Debug("parse candidate failed",
				slog.String("archive", src.Name()),
				slog.String("format", cand.Info.ID),
				slog.Int("score", cand.Score),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", cand.Info.ID, err))
			continue
		}

		a := &Archive{
			src:      src,
			plugin:   cand.Plugin,
			info:     cand.Info,
			score:    cand.Score,
			logger:   o.logger,
			limits:   o.limits,
			env:      env,
			cacheMax: o.cacheMaxEntry,
		}
		a.adopt(resources)

		if o.cacheEntries > 0 {
			a.cache, err = arc.NewARC[cacheKey, []byte](o.cacheEntries)
			if err != nil {
				_ = env.Close()
				return nil, fmt.Errorf("create resource cache: %w", err)
			}
		}

		a.guessExtensions()
		a.buildIndex()

		o.logger.Debug("archive opened",
			slog.String("archive", src.Name()),
			slog.String("format", a.info.ID),
			slog.Int("resources", len(a.resources)),
			slog.Int("skipped", len(a.skipped)),
		)

		return a, nil
	}

	_ = env.Close()
	return nil, fmt.Errorf("parse %s: %w", src.Name(), errors.Join(errs...))
}

// selectCandidates returns the forced plugin or the detector ranking above the floor.
func selectCandidates(r *Reader, o options) ([]Ranking, error) {
	if o.format != "" {
		p, ok := o.registry.Lookup(o.format)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, o.format)
		}

		return []Ranking{{Plugin: p, Info: safeInfo(p)}}, nil
	}

	floor := o.registry.AcceptanceFloor()
	if o.floorSet {
		floor = o.floor
	}

	ranking := o.registry.Scores(r)
	n := 0
	for n < len(ranking) && ranking[n].Score > floor {
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognized, r.Name())
	}

	return ranking[:n], nil
}

// adopt binds parsed resources to their sources and drops entries whose
// ranges fall outside their container.
func (a *Archive) adopt(resources []Resource) {
	out := make([]Resource, 0, len(resources))
	for _, res := range resources {
		if res.Source == nil {
			res.Source = a.src
		}

		if err := CheckRange(res.Offset, res.StoredSize, res.Source.Size()); err != nil {
			a.env.Skip(res.Path, err)
			continue
		}
		if res.Size < 0 {
			a.env.Skip(res.Path, newValidationError("size", "negative", res.Size, 0))
			continue
		}
		if len(res.Codecs) == 0 && !res.SizeBound {
			res.Size = res.StoredSize
		}

		out = append(out, res)
	}

	a.resources = out
	a.skipped = a.env.Skipped()
}

// guessExtensions lets the plugin name extensionless resources from their content.
func (a *Archive) guessExtensions() {
	guesser, ok := a.plugin.(ExtensionGuesser)
	if !ok {
		return
	}

	for i := range a.resources {
		res := &a.resources[i]
		if res.Ext() != "" {
			continue
		}

		head, err := a.readHead(*res, guessHeadSize)
		if err != nil {
			a.logger.Debug("read resource head", slog.String("path", res.Path), slog.Any("error", err))
			continue
		}

		if ext := strings.TrimPrefix(guesser.GuessExtension(*res, head), "."); ext != "" {
			res.Path += "." + ext
		}
	}
}

// readHead returns up to n decoded leading bytes of res.
func (a *Archive) readHead(res Resource, n int64) ([]byte, error) {
	rc, err := a.open(res, res.SizeBound)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, min(n, max(res.Size, 0)))
	got, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return buf[:got], nil
}

// buildIndex maps normalized paths to resource positions; first entry wins.
func (a *Archive) buildIndex() {
	a.index = make(map[string]int, len(a.resources))
	for i, res := range a.resources {
		key := lookupKey(res.Path)
		if _, exists := a.index[key]; !exists {
			a.index[key] = i
		}
	}
}

// lookupKey normalizes a path for case-insensitive lookup.
func lookupKey(p string) string {
	return strings.ToLower(NormalizePath(p))
}

// Name returns the container path or label.
func (a *Archive) Name() string {
	return a.src.Name()
}

// Format returns the descriptor of the plugin that parsed the archive.
func (a *Archive) Format() Info {
	return a.info
}

// Plugin returns the plugin that parsed the archive.
func (a *Archive) Plugin() Plugin {
	return a.plugin
}

// Score returns the detection score of the chosen plugin; zero when the format was forced.
func (a *Archive) Score() int {
	return a.score
}

// Source returns the container source.
func (a *Archive) Source() *Source {
	return a.src
}

// Len returns the number of resources.
func (a *Archive) Len() int {
	return len(a.resources)
}

// Resources returns a copy of the resource list in declared order.
func (a *Archive) Resources() []Resource {
	out := make([]Resource, len(a.resources))
	for i, res := range a.resources {
		out[i] = res.clone()
	}

	return out
}

// Skipped returns entries the plugin omitted during parse.
func (a *Archive) Skipped() []SkippedEntry {
	return append([]SkippedEntry(nil), a.skipped...)
}

// Headers returns container-level key-value pairs recorded by the plugin.
func (a *Archive) Headers() []HeaderPair {
	return a.env.Headers()
}

// Lookup finds a resource by path, ignoring case and separator style.
func (a *Archive) Lookup(path string) (Resource, bool) {
	idx, ok := a.index[lookupKey(path)]
	if !ok {
		return Resource{}, false
	}

	return a.resources[idx].clone(), true
}

// Open returns a reader of the decoded bytes of res. Each call uses its own
// section of the source, so resources decode in parallel.
func (a *Archive) Open(res Resource) (io.ReadCloser, error) {
	return a.open(res, res.SizeBound)
}

// OpenPath opens a resource by path.
func (a *Archive) OpenPath(path string) (io.ReadCloser, error) {
	res, ok := a.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}

	return a.Open(res)
}

// DecodeBounded opens res treating its Size as an upper bound.
func (a *Archive) DecodeBounded(res Resource) (io.ReadCloser, error) {
	return a.open(res, true)
}

// ReadAll returns the decoded bytes of res. Small results are cached.
func (a *Archive) ReadAll(res Resource) ([]byte, error) {
	src := res.Source
	if src == nil {
		src = a.src
	}

	key := cacheKey{src: src, path: res.Path, offset: res.Offset, stored: res.StoredSize}
	if a.cache != nil {
		if data, ok := a.cache.Get(key); ok {
			return append([]byte{}, data...), nil
		}
	}

	rc, err := a.Open(res)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if res.Size > 0 && res.Size <= a.limits.MaxDecodedSize && !res.SizeBound {
		buf.Grow(int(min(res.Size, 64<<20)))
	}
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", res.Path, err)
	}

	data := buf.Bytes()
	if data == nil {
		data = []byte{}
	}
	if a.cache != nil && int64(len(data)) <= a.cacheMax {
		a.cache.Add(key, bytes.Clone(data))
	}

	return data, nil
}

// open validates res and materializes its codec chain.
func (a *Archive) open(res Resource, bounded bool) (io.ReadCloser, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	src := res.Source
	if src == nil {
		src = a.src
	}

	if err := CheckRange(res.Offset, res.StoredSize, src.Size()); err != nil {
		return nil, fmt.Errorf("resource %s: %w", res.Path, err)
	}

	section := src.Section(res.Offset, res.StoredSize)
	if len(res.Codecs) == 0 {
		return io.NopCloser(section), nil
	}

	if err := a.limits.CheckDecodedSize(res.Size); err != nil {
		return nil, fmt.Errorf("resource %s: %w", res.Path, err)
	}

	rc, err := OpenChain(section, res.Codecs, res.StoredSize, res.Size, bounded)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", res.Path, err)
	}

	return rc, nil
}

// Close releases the source (when opened by path) and sibling sources.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var errs []error
	if err := a.env.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.ownsSrc {
		if err := a.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		a.cache.Purge()
	}

	return errors.Join(errs...)
}
