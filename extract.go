// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// extractCopyBufferSize defines per-task buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// ExtractedEntry describes one resource written to disk.
type ExtractedEntry struct {
	// Path is the resource path inside the archive.
	Path string `json:"path" yaml:"path"`
	// Output is the written file path.
	Output string `json:"output" yaml:"output"`
	// Digest is the content digest when ExtractOptions.Digest is set.
	Digest digest.Digest `json:"digest,omitempty" yaml:"digest,omitempty"`
	// Size is the number of bytes written.
	Size int64 `json:"size" yaml:"size"`
}

// ExtractFailure is one resource that could not be extracted.
type ExtractFailure struct {
	Err  error  `json:"-" yaml:"-"`
	Path string `json:"path" yaml:"path"`
}

// ExtractResult summarizes one extraction.
type ExtractResult struct {
	// Entries lists written resources in archive order.
	Entries []ExtractedEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	// Failed lists resources skipped under ContinueOnError.
	Failed []ExtractFailure `json:"failed,omitempty" yaml:"failed,omitempty"`
	// Written is the total number of bytes written.
	Written int64 `json:"written" yaml:"written"`
}

// extractWorkItem stores one selected resource with prepared output relative paths.
type extractWorkItem struct {
	relPath string
	relDir  string
	res     Resource
	index   int
}

// Extract writes selected resources to dstDir using MaxWorkers parallel
// decoders. Without ContinueOnError the first failure cancels the rest and
// is returned; with it failures are collected in the result.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	resources := a.resources
	if opts.Resources != nil {
		resources = opts.Resources
	}

	resources, err := FilterResources(resources, opts.Rules, opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	result := &ExtractResult{}
	if len(resources) == 0 {
		return result, nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	fileMode := opts.FileMode
	if fileMode == "" {
		fileMode = ExtractFileModeAuto
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	workItems, err := prepareExtractWorkItems(resources, opts.RawNames)
	if err != nil {
		return nil, err
	}

	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return nil, err
	}

	progress := newProgressCounter(opts.Progress, int64(len(workItems)))
	entries := make([]*ExtractedEntry, len(workItems))

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, task := range workItems {
		if egCtx.Err() != nil {
			break
		}

		eg.Go(func() error {
			entry, err := a.extractPreparedEntry(egCtx, dstRootAbs, task, fileMode, opts)
			progress.step(task.res.Path, entryBytes(entry), err)

			if err == nil {
				entries[task.index] = entry
				return nil
			}

			if !opts.ContinueOnError || errors.Is(err, context.Canceled) {
				return err
			}

			a.logger.Warn("extract entry failed", slog.String("path", task.res.Path), slog.Any("error", err))

			mu.Lock()
			result.Failed = append(result.Failed, ExtractFailure{Path: task.res.Path, Err: err})
			mu.Unlock()

			return nil
		})
	}

	waitErr := eg.Wait()

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		result.Entries = append(result.Entries, *entry)
		result.Written += entry.Size
	}

	if waitErr != nil {
		return result, waitErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	return result, nil
}

// entryBytes returns written bytes of a possibly nil entry.
func entryBytes(entry *ExtractedEntry) int64 {
	if entry == nil {
		return 0
	}

	return entry.Size
}

// prepareExtractWorkItems validates selected resources and prepares relative fs paths.
func prepareExtractWorkItems(resources []Resource, rawNames bool) ([]extractWorkItem, error) {
	var sanitized []string
	if !rawNames {
		var err error
		sanitized, err = sanitizeResourcePaths(resources)
		if err != nil {
			return nil, err
		}
	}

	workItems := make([]extractWorkItem, 0, len(resources))
	for i, res := range resources {
		if strings.TrimSpace(res.Path) == "" {
			continue
		}

		name := res.Path
		if sanitized != nil {
			name = sanitized[i]
		}

		normalizedPath, err := normalizeExtractEntryPath(name)
		if err != nil {
			return nil, fmt.Errorf("normalize entry path %s: %w", res.Path, err)
		}

		relPath := filepath.FromSlash(normalizedPath)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		workItems = append(workItems, extractWorkItem{
			res:     res,
			relPath: relPath,
			relDir:  relDir,
			index:   len(workItems),
		})
	}

	return workItems, nil
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		if _, exists := seen[dirPath]; exists {
			continue
		}

		seen[dirPath] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// extractPreparedEntry writes one prepared work item under the destination root.
func (a *Archive) extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	fileMode ExtractFileMode,
	opts ExtractOptions,
) (*ExtractedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	if rel, err := filepath.Rel(dstRootAbs, outPath); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrExtractPathOutsideRoot, task.res.Path)
	}

	rc, err := a.Open(task.res)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	file, needsTruncate, err := openExtractFile(outPath, fileMode, task.res.Size)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", task.res.Path, err)
	}

	var (
		dst      io.Writer = file
		digester digest.Digester
	)
	if opts.Digest {
		digester = digest.Canonical.Digester()
		dst = io.MultiWriter(file, digester.Hash())
	}

	written, copyErr := copyExtractData(dst, rc, make([]byte, extractCopyBufferSize))
	if copyErr == nil && needsTruncate {
		if truncErr := file.Truncate(written); truncErr != nil {
			_ = file.Close()
			return nil, fmt.Errorf("truncate %s: %w", task.res.Path, truncErr)
		}
	}

	closeErr := file.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("write %s: %w", task.res.Path, copyErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("close %s: %w", task.res.Path, closeErr)
	}

	entry := &ExtractedEntry{Path: task.res.Path, Output: outPath, Size: written}
	if digester != nil {
		entry.Digest = digester.Digest()
	}

	if opts.OnEntryDone != nil {
		opts.OnEntryDone(task.res, written, outPath)
	}

	return entry, nil
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode, expectedSize int64) (*os.File, bool, error) {
	switch mode {
	case ExtractFileModeAuto:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return file, false, nil
		}

		if !os.IsExist(err) {
			return nil, false, err
		}

		file, truncErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, truncErr
	case ExtractFileModeOverwriteSmart:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return nil, false, err
		}

		info, err := file.Stat()
		if err != nil {
			_ = file.Close()
			return nil, false, err
		}

		return file, info.Size() > expectedSize, nil
	case ExtractFileModeTruncate:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		return file, false, err
	case ExtractFileModeCreateOnly:
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		return file, false, err
	default:
		return nil, false, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// copyExtractData copies one resource stream to output using a fixed buffer.
func copyExtractData(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)

			if writeErr != nil {
				return total, writeErr
			}

			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			return total, nil
		}

		return total, readErr
	}
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" {
		return "", ErrInvalidExtractPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':' && path[2] == '/'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
