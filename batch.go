// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures Batch.
type BatchOptions struct {
	// Logger receives per-archive diagnostics.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Progress receives one event per processed archive.
	Progress ProgressFunc `json:"-" yaml:"-"`
	// Open configures how each archive is opened.
	Open []Option `json:"-" yaml:"-"`
	// OutputDir enables extraction; every archive goes to OutputDir/<archive base name>.
	// Empty means open and list only.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	// Extract configures extraction of each archive.
	Extract ExtractOptions `json:"extract,omitzero" yaml:"extract,omitzero"`
	// Concurrency is the number of archives processed at once (zero means one).
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// BatchFileResult is the outcome for one archive.
type BatchFileResult struct {
	// Err is set when the archive failed to open or extract.
	Err error `json:"-" yaml:"-"`
	// Extract is the extraction summary when OutputDir is set.
	Extract *ExtractResult `json:"extract,omitempty" yaml:"extract,omitempty"`
	// Path is the archive file.
	Path string `json:"path" yaml:"path"`
	// Format is the detected format id.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// Output is the extraction directory.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	// Resources is the number of parsed resources.
	Resources int `json:"resources" yaml:"resources"`
	// Skipped is the number of entries the plugin omitted.
	Skipped int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Duration is the processing time of this archive.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// BatchTally counts batch outcomes.
type BatchTally struct {
	Files           int   `json:"files" yaml:"files"`
	Succeeded       int   `json:"succeeded" yaml:"succeeded"`
	Failed          int   `json:"failed" yaml:"failed"`
	Resources       int   `json:"resources" yaml:"resources"`
	FailedResources int   `json:"failed_resources,omitempty" yaml:"failed_resources,omitempty"`
	Bytes           int64 `json:"bytes" yaml:"bytes"`
}

// BatchResult is the outcome of one Batch run.
type BatchResult struct {
	// RunID identifies the run in logs and reports.
	RunID ksuid.KSUID `json:"run_id" yaml:"run_id"`
	// Files lists per-archive outcomes in input order.
	Files []BatchFileResult `json:"files" yaml:"files"`
	// Tally aggregates Files.
	Tally BatchTally `json:"tally" yaml:"tally"`
	// Duration is the end-to-end run time.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Batch opens and optionally extracts many archives. A failing archive is
// recorded in its result and never stops the rest; only context
// cancellation ends the run early.
func Batch(ctx context.Context, paths []string, opts BatchOptions) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	startedAt := time.Now()
	result := &BatchResult{
		RunID: ksuid.New(),
		Files: make([]BatchFileResult, len(paths)),
	}
	logger = logger.With(slog.String("run", result.RunID.String()))

	progress := newProgressCounter(opts.Progress, int64(len(paths)))
	outputs := batchOutputDirs(paths, opts.OutputDir)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(opts.Concurrency, 1))

	for i, path := range paths {
		if egCtx.Err() != nil {
			break
		}

		eg.Go(func() error {
			file := processBatchFile(egCtx, path, outputs[i], opts, logger)
			result.Files[i] = file

			written := int64(0)
			if file.Extract != nil {
				written = file.Extract.Written
			}
			progress.step(path, written, file.Err)

			if errors.Is(file.Err, context.Canceled) {
				return file.Err
			}

			return nil
		})
	}

	waitErr := eg.Wait()
	result.Tally = tallyBatch(result.Files)
	result.Duration = time.Since(startedAt)

	logger.Info("batch done",
		slog.Int("files", result.Tally.Files),
		slog.Int("failed", result.Tally.Failed),
		slog.Int("resources", result.Tally.Resources),
		slog.Duration("duration", result.Duration),
	)

	if waitErr != nil {
		return result, waitErr
	}

	return result, ctx.Err()
}

// processBatchFile handles one archive.
func processBatchFile(ctx context.Context, path, output string, opts BatchOptions, logger *slog.Logger) (out BatchFileResult) {
	startedAt := time.Now()
	out.Path = path
	defer func() { out.Duration = time.Since(startedAt) }()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	a, err := Open(path, append([]Option{WithLogger(logger)}, opts.Open...)...)
	if err != nil {
		logger.Warn("open archive failed", slog.String("path", path), slog.Any("error", err))
		out.Err = err
		return out
	}
	defer func() { _ = a.Close() }()

	out.Format = a.Format().ID
	out.Resources = a.Len()
	out.Skipped = len(a.Skipped())

	if output == "" {
		return out
	}

	out.Output = output
	out.Extract, err = a.Extract(ctx, output, opts.Extract)
	if err != nil {
		logger.Warn("extract archive failed", slog.String("path", path), slog.Any("error", err))
		out.Err = err
	}

	return out
}

// batchOutputDirs assigns one output directory per archive, unique by base name.
func batchOutputDirs(paths []string, root string) []string {
	out := make([]string, len(paths))
	if root == "" {
		return out
	}

	used := make(map[string]struct{}, len(paths))
	nextSuffix := make(map[string]int, len(paths))
	for i, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		name, err := sanitizePathSegment(base)
		if err != nil || name == "" {
			name = "_"
		}

		name, err = makeSanitizedPathUnique(name, used, nextSuffix)
		if err != nil {
			name = filepath.Base(p)
		}

		out[i] = filepath.Join(root, name)
	}

	return out
}

// tallyBatch aggregates per-file results.
func tallyBatch(files []BatchFileResult) BatchTally {
	var t BatchTally
	for _, f := range files {
		if f.Path == "" {
			continue
		}

		t.Files++
		t.Resources += f.Resources
		if f.Err != nil {
			t.Failed++
		} else {
			t.Succeeded++
		}

		if f.Extract != nil {
			t.FailedResources += len(f.Extract.Failed)
			t.Bytes += f.Extract.Written
		}
	}

	return t
}
