// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"math"
	"strings"
)

// TreeMode selects where folder children are stored.
type TreeMode uint8

const (
	// TreeInline means child records directly follow their folder record.
	TreeInline TreeMode = iota
	// TreeIndirect means a folder record points at a child block elsewhere.
	TreeIndirect
)

// NodeKind is the role of one directory record.
type NodeKind uint8

const (
	// NodeFile is a file record; its Resource is emitted.
	NodeFile NodeKind = iota
	// NodeFolder is a folder with Count children (inline) or a child block at Offset (indirect).
	NodeFolder
	// NodeOpen pushes a path segment that stays until a NodePop.
	NodeOpen
	// NodePop removes one segment pushed by NodeOpen in the current scope.
	NodePop
	// NodeSkip is a record that carries no entry (padding, volume labels).
	NodeSkip
)

// Node is one decoded directory record.
type Node struct {
	// Name is the file or folder segment.
	Name string
	// Resource holds payload fields of a file record; Path is filled by the walker.
	Resource Resource
	// Count is the number of child records of a folder.
	Count int64
	// Offset is the reader-relative position of an indirect child block.
	Offset int64
	// Kind is the record role.
	Kind NodeKind
}

// Tree reconstructs flat resource paths from nested directory records.
type Tree struct {
	// Record decodes one record at the cursor.
	Record func(r *Reader) (Node, error)
	// Separator joins path segments; default is "\".
	Separator string
	// RecordSize is the fixed byte size of one record, used to validate
	// indirect child blocks. Zero validates the block offset only.
	RecordSize int64
	// Budget caps the total number of records visited; zero uses Limits.MaxCount.
	Budget int64
	// Mode selects inline or indirect children.
	Mode TreeMode
}

// walkState is the accumulator threaded through one walk.
type walkState struct {
	visited  map[int64]struct{}
	out      []Resource
	prefix   []string
	budget   int64
	maxDepth int
}

// Walk reads count top-level records at the cursor and returns resources in
// record order with folder names prefixed onto their paths.
func (t Tree) Walk(r *Reader, count int64) ([]Resource, error) {
	if t.Record == nil {
		return nil, newValidationError("tree", "no record decoder", 0, 0)
	}
	if err := r.CheckCount(count); err != nil {
		return nil, err
	}

	st := &walkState{
		budget:   t.Budget,
		maxDepth: r.Limits().MaxDepth,
		out:      make([]Resource, 0, min(count, 1024)),
	}
	if st.budget <= 0 {
		st.budget = r.Limits().MaxCount
	}
	if t.Mode == TreeIndirect {
		st.visited = map[int64]struct{}{r.Pos(): {}}
	}

	if err := t.walk(r, st, count, 0); err != nil {
		return nil, err
	}

	return st.out, nil
}

// walk visits count records of one scope.
func (t Tree) walk(r *Reader, st *walkState, count int64, depth int) error {
	if err := r.CheckCount(count); err != nil {
		return err
	}
	if depth > st.maxDepth {
		return r.at(newValidationError("depth", "above ceiling", int64(depth), int64(st.maxDepth)))
	}

	scopeRoot := len(st.prefix)
	defer func() { st.prefix = st.prefix[:scopeRoot] }()

	for range count {
		if st.budget <= 0 {
			return r.at(newValidationError("records", "budget exhausted", 0, 0))
		}
		st.budget--

		node, err := t.Record(r)
		if err != nil {
			return err
		}

		switch node.Kind {
		case NodeFile:
			if err := r.CheckName(node.Name); err != nil {
				return err
			}

			res := node.Resource
			res.Path = t.join(st.prefix, node.Name)
			st.out = append(st.out, res)
		case NodeFolder:
			if err := r.CheckName(node.Name); err != nil {
				return err
			}

			st.prefix = append(st.prefix, node.Name)
			if t.Mode == TreeIndirect {
				err = t.descend(r, st, node, depth)
			} else {
				err = t.walk(r, st, node.Count, depth+1)
			}
			if err != nil {
				return err
			}

			st.prefix = st.prefix[:len(st.prefix)-1]
		case NodeOpen:
			if err := r.CheckName(node.Name); err != nil {
				return err
			}

			st.prefix = append(st.prefix, node.Name)
		case NodePop:
			if len(st.prefix) <= scopeRoot {
				return r.at(newValidationError("pop", "past scope root", int64(len(st.prefix)), int64(scopeRoot)))
			}

			st.prefix = st.prefix[:len(st.prefix)-1]
		case NodeSkip:
		default:
			return r.at(newValidationError("record kind", "unknown", int64(node.Kind), int64(NodeSkip)))
		}
	}

	return nil
}

// descend walks an indirect child block and restores the cursor.
func (t Tree) descend(r *Reader, st *walkState, node Node, depth int) error {
	if err := r.CheckCount(node.Count); err != nil {
		return err
	}

	if t.RecordSize > 0 {
		if node.Count > math.MaxInt64/t.RecordSize {
			return r.at(newValidationError("folder block", "size overflow", node.Count, math.MaxInt64/t.RecordSize))
		}
		if err := r.CheckRange(node.Offset, node.Count*t.RecordSize); err != nil {
			return err
		}
	} else if err := r.CheckOffset(node.Offset); err != nil {
		return err
	}

	if _, seen := st.visited[node.Offset]; seen {
		return r.at(newValidationError("folder block", "cycle", node.Offset, r.Len()))
	}
	st.visited[node.Offset] = struct{}{}

	saved := r.Pos()
	if err := r.SeekTo(node.Offset); err != nil {
		return err
	}
	if err := t.walk(r, st, node.Count, depth+1); err != nil {
		return err
	}

	return r.SeekTo(saved)
}

// join builds a path from the prefix stack and a leaf name.
func (t Tree) join(prefix []string, name string) string {
	sep := t.Separator
	if sep == "" {
		sep = `\`
	}

	parts := make([]string, 0, len(prefix)+1)
	for _, p := range prefix {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, name)

	return strings.Join(parts, sep)
}
