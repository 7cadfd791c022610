// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package formats registers the bundled format plugins in the default
// registry. Import it for its side effect:
//
//	import _ "github.com/woozymasta/gamepak/formats"
package formats

import (
	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/gamepak/formats/blocktree"
	"github.com/woozymasta/gamepak/formats/grp"
	"github.com/woozymasta/gamepak/formats/idxdat"
	"github.com/woozymasta/gamepak/formats/mix"
	"github.com/woozymasta/gamepak/formats/nestedtree"
	"github.com/woozymasta/gamepak/formats/pak"
	"github.com/woozymasta/gamepak/formats/pbo"
)

func init() {
	for _, p := range All() {
		gamepak.Register(p)
	}
}

// All returns fresh instances of every bundled plugin in registration order.
func All() []gamepak.Plugin {
	return []gamepak.Plugin{
		pbo.New(),
		pak.New(),
		grp.New(),
		mix.New(),
		idxdat.New(),
		nestedtree.New(),
		blocktree.New(),
	}
}

// NewRegistry returns a registry holding every bundled plugin.
func NewRegistry() *gamepak.Registry {
	reg := gamepak.NewRegistry()
	for _, p := range All() {
		reg.MustRegister(p)
	}

	return reg
}
