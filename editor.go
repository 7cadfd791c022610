// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Editor accumulates archive edit operations and applies them on Commit.
// Formats implementing Replacer keep untouched entries in their stored
// encoding; Writer-only formats get them re-encoded from decoded bytes.
type Editor struct {
	path string
	ops  []editOperation
	opts EditOptions
}

// editOperation stores one staged editor operation.
type editOperation struct {
	inputs []Input
	paths  []string
	kind   editOperationKind
}

// editOperationKind identifies staged edit action type.
type editOperationKind uint8

const (
	// editOperationAdd appends new entries and fails on existing path.
	editOperationAdd editOperationKind = iota + 1
	// editOperationReplace rewrites existing entries.
	editOperationReplace
	// editOperationDelete removes exact paths.
	editOperationDelete
	// editOperationDeleteDir removes entries by directory prefix.
	editOperationDeleteDir
	// editOperationRename moves one entry to a new path; paths holds from, to.
	editOperationRename
)

// editItem is one planned entry of the rewritten archive.
type editItem struct {
	input    *Input
	resource *Resource
	path     string
}

// OpenEditor creates a staged editor for a file-based archive rewrite.
func OpenEditor(path string, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, ErrInvalidEntryPath
	}

	opts.applyDefaults()

	return &Editor{
		path: trimmedPath,
		opts: opts,
		ops:  make([]editOperation, 0, 8),
	}, nil
}

// Add schedules adding new entries and fails on path collision during commit.
func (e *Editor) Add(inputs ...Input) error {
	return e.stageInputs(editOperationAdd, inputs)
}

// Replace schedules replacing existing entries.
func (e *Editor) Replace(inputs ...Input) error {
	return e.stageInputs(editOperationReplace, inputs)
}

// Delete schedules exact-path removal.
func (e *Editor) Delete(paths ...string) error {
	return e.stagePaths(editOperationDelete, paths)
}

// DeleteDir schedules directory-prefix removal.
func (e *Editor) DeleteDir(prefixes ...string) error {
	return e.stagePaths(editOperationDeleteDir, prefixes)
}

// Rename schedules moving one entry to a new path.
func (e *Editor) Rename(from, to string) error {
	if e == nil {
		return ErrNilWriter
	}

	normalized, err := normalizeEditorPaths([]string{from, to})
	if err != nil {
		return err
	}

	e.ops = append(e.ops, editOperation{kind: editOperationRename, paths: normalized})
	return nil
}

// stageInputs appends one input-based operation.
func (e *Editor) stageInputs(kind editOperationKind, inputs []Input) error {
	if e == nil {
		return ErrNilWriter
	}

	normalized, err := normalizeEditorInputs(inputs)
	if err != nil {
		return err
	}

	if len(normalized) == 0 {
		return nil
	}

	e.ops = append(e.ops, editOperation{kind: kind, inputs: normalized})
	return nil
}

// stagePaths appends one path-based operation.
func (e *Editor) stagePaths(kind editOperationKind, paths []string) error {
	if e == nil {
		return ErrNilWriter
	}

	normalized, err := normalizeEditorPaths(paths)
	if err != nil {
		return err
	}

	if len(normalized) == 0 {
		return nil
	}

	e.ops = append(e.ops, editOperation{kind: kind, paths: normalized})
	return nil
}

// Commit applies all staged operations in one rewrite transaction.
// The original file is moved to a backup and restored on failure.
func (e *Editor) Commit(ctx context.Context) (*WriteResult, error) {
	if e == nil {
		return nil, ErrNilWriter
	}

	if ctx == nil {
		ctx = context.Background()
	}

	backupPath := e.path + ".bak"
	if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
		return nil, err
	}

	if err := os.Rename(e.path, backupPath); err != nil {
		return nil, fmt.Errorf("move archive to backup: %w", err)
	}

	res, err := e.commitFromBackup(ctx, backupPath)
	if err != nil {
		rollbackErr := rollbackFromBackup(e.path, backupPath)
		if rollbackErr != nil {
			return nil, fmt.Errorf("%w (rollback failed: %w)", err, rollbackErr)
		}

		return nil, err
	}

	if e.opts.BackupKeep == 0 {
		if err := removeIfExists(backupPath); err != nil {
			return nil, fmt.Errorf("remove backup: %w", err)
		}
	}

	return res, nil
}

// commitFromBackup writes the edited archive from the backup source.
func (e *Editor) commitFromBackup(ctx context.Context, backupPath string) (*WriteResult, error) {
	src, err := Open(backupPath, e.opts.Open...)
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	if len(src.Skipped()) > 0 {
		return nil, fmt.Errorf("%w: backup has %d unreadable entries", ErrNotWritable, len(src.Skipped()))
	}

	plan, err := buildEditPlan(src.Resources(), e.ops)
	if err != nil {
		return nil, err
	}

	writeOpts := e.opts.WriteOptions
	if len(writeOpts.Headers) == 0 {
		writeOpts.Headers = src.Headers()
	}

	dstFile, err := os.OpenFile(e.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, fmt.Errorf("create destination archive: %w", err)
	}

	res, writeErr := rewriteWith(ctx, src, dstFile, plan, writeOpts)
	if writeErr != nil {
		_ = dstFile.Close()
		return nil, writeErr
	}

	if err := dstFile.Sync(); err != nil {
		_ = dstFile.Close()
		return nil, fmt.Errorf("sync destination archive: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return nil, fmt.Errorf("close destination archive: %w", err)
	}

	if fin, ok := src.Plugin().(FileFinalizer); ok {
		if err := fin.FinalizeFile(e.path); err != nil {
			return nil, fmt.Errorf("finalize %s: %w", e.path, err)
		}
	}

	return res, nil
}

// rewriteWith dispatches the plan to the plugin's Replacer, or re-encodes
// kept entries through its Writer.
func rewriteWith(ctx context.Context, src *Archive, out io.WriteSeeker, plan []editItem, opts WriteOptions) (*WriteResult, error) {
	plugin := src.Plugin()

	if replacer, ok := plugin.(Replacer); ok {
		entries := make([]RewriteEntry, len(plan))
		for i, item := range plan {
			entries[i] = RewriteEntry{Path: item.path, Input: item.input, Resource: item.resource}
		}

		return replacer.Rewrite(ctx, out, entries, opts.WithDefaults())
	}

	writer, ok := plugin.(Writer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, src.Format().ID)
	}

	inputs := make([]Input, len(plan))
	for i, item := range plan {
		if item.input != nil {
			inputs[i] = *item.input
			inputs[i].Path = item.path
			continue
		}

		res := *item.resource
		inputs[i] = Input{
			Path:     item.path,
			SizeHint: res.Size,
			Open: func() (io.ReadCloser, error) {
				return src.Open(res)
			},
		}
	}

	return writer.Write(ctx, out, inputs, opts.WithDefaults())
}

// normalizeEditorInputs validates and canonicalizes editor input list.
func normalizeEditorInputs(inputs []Input) ([]Input, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	normalized := make([]Input, 0, len(inputs))
	for i := range inputs {
		canonicalPath, err := NormalizeEntryPath(inputs[i].Path, "/")
		if err != nil {
			return nil, fmt.Errorf("%w: input path %q", ErrInvalidEntryPath, inputs[i].Path)
		}

		item := inputs[i]
		item.Path = canonicalPath
		normalized = append(normalized, item)
	}

	return normalized, nil
}

// normalizeEditorPaths validates and canonicalizes editor path list.
func normalizeEditorPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(paths))
	for _, raw := range paths {
		canonical, err := NormalizeEntryPath(raw, "/")
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
		}

		out = append(out, canonical)
	}

	return out, nil
}

// buildEditPlan applies staged operations to source resources and builds the final write plan.
func buildEditPlan(resources []Resource, ops []editOperation) ([]editItem, error) {
	state := make(map[string]editItem, len(resources))
	for i := range resources {
		path, err := NormalizeEntryPath(resources[i].Path, "/")
		if err != nil {
			return nil, fmt.Errorf("%w: source entry path %q", ErrInvalidEntryPath, resources[i].Path)
		}

		key := lookupKey(path)
		if _, exists := state[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, path)
		}

		res := resources[i]
		state[key] = editItem{path: path, resource: &res}
	}

	for _, op := range ops {
		var err error
		switch op.kind {
		case editOperationAdd:
			err = applyEditInputs(state, op.inputs, false)
		case editOperationReplace:
			err = applyEditInputs(state, op.inputs, true)
		case editOperationDelete:
			applyEditDelete(state, op.paths)
		case editOperationDeleteDir:
			applyEditDeleteDir(state, op.paths)
		case editOperationRename:
			err = applyEditRename(state, op.paths[0], op.paths[1])
		default:
			err = fmt.Errorf("unknown edit operation kind: %d", op.kind)
		}
		if err != nil {
			return nil, err
		}
	}

	plan := make([]editItem, 0, len(state))
	for _, item := range state {
		plan = append(plan, item)
	}

	sort.Slice(plan, func(i, j int) bool { return plan[i].path < plan[j].path })

	return plan, nil
}

// applyEditInputs adds (existing=false) or replaces (existing=true) entries.
func applyEditInputs(state map[string]editItem, inputs []Input, existing bool) error {
	for _, in := range inputs {
		key := lookupKey(in.Path)
		_, exists := state[key]
		switch {
		case existing && !exists:
			return fmt.Errorf("%w: %q", ErrResourceNotFound, in.Path)
		case !existing && exists:
			return fmt.Errorf("%w: %q", ErrDuplicateEntryPath, in.Path)
		}

		item := in
		state[key] = editItem{path: item.Path, input: &item}
	}

	return nil
}

// applyEditRename moves one entry and keeps its payload source.
func applyEditRename(state map[string]editItem, from, to string) error {
	fromKey := lookupKey(from)
	item, exists := state[fromKey]
	if !exists {
		return fmt.Errorf("%w: %q", ErrResourceNotFound, from)
	}

	toKey := lookupKey(to)
	if _, taken := state[toKey]; taken && toKey != fromKey {
		return fmt.Errorf("%w: %q", ErrDuplicateEntryPath, to)
	}

	delete(state, fromKey)
	item.path = to
	state[toKey] = item

	return nil
}

// applyEditDelete removes exact paths from state.
func applyEditDelete(state map[string]editItem, paths []string) {
	for _, path := range paths {
		delete(state, lookupKey(path))
	}
}

// applyEditDeleteDir removes entries matching directory prefixes.
func applyEditDeleteDir(state map[string]editItem, prefixes []string) {
	for _, prefix := range prefixes {
		prefixKey := lookupKey(prefix)
		for key := range state {
			if key == prefixKey || strings.HasPrefix(key, prefixKey+"/") {
				delete(state, key)
			}
		}
	}
}

// prepareBackupSlot rotates/removes existing backup generations before new commit.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// rollbackFromBackup restores backup on failed commit.
func rollbackFromBackup(path string, backupPath string) error {
	_ = os.Remove(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
