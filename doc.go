// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

/*
Package gamepak is an extraction engine for game archive containers.

The engine owns the machinery shared by format parsers: a bounds-checked
binary cursor (Reader), structural validators (Limits and the Check
functions), decode codec chains (Codec, OpenChain), a scoring detector
(Registry) and a directory tree walker (Tree). Format plugins live in the
formats package and register themselves from init:

	import _ "github.com/woozymasta/gamepak/formats"

Parsing never trusts a count, offset or length read from a container: every
value is checked against the container size and the configured Limits before
it drives a loop, an allocation or a seek. A failed check aborts only the
plugin that made it; the detector then falls through to the next candidate.

# Reading

Open detects the format and returns the flat resource list:

	a, err := gamepak.Open("data.pak")
	if err != nil {
	    return err
	}
	defer a.Close()
	for _, res := range a.Resources() {
	    data, err := a.ReadAll(res)
	    if err != nil {
	        // codec failures affect only this resource
	        continue
	    }
	    _ = data
	}

Force a plugin, or pass plugin options such as encryption keys:

	a, err := gamepak.Open("main.mix",
	    gamepak.WithFormat("mix"),
	    gamepak.WithPluginOption("key", "0123456789abcdef"),
	)

Split archives open their companion files through Env.OpenSibling;
Archive.Close closes them.

# Detection

Scores of every registered plugin are available without parsing:

	ranking, err := gamepak.DetectFile("unknown.bin")
	if err != nil {
	    return err
	}
	for _, r := range ranking {
	    fmt.Println(r.Info.ID, r.Score)
	}

# Extracting

Extract decodes resources in parallel workers. Paths are sanitized by
default; selection uses github.com/woozymasta/pathrules:

	res, err := a.Extract(ctx, "out/", gamepak.ExtractOptions{
	    MaxWorkers:      4,
	    ContinueOnError: true,
	    Digest:          true,
	    Rules: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "textures/**"},
	    },
	})
	_ = res.Failed

Batch runs many archives and keeps a per-file tally; one broken file never
stops the batch.

# Writing

Formats implementing Writer can be packed from stream inputs:

	res, err := gamepak.PackFile(ctx, "pbo", "addon.pbo", inputs, gamepak.WriteOptions{
	    Headers: []gamepak.HeaderPair{{Key: "prefix", Value: "myaddon"}},
	    Compress: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.rvmat"},
	    },
	})

Editor stages Add, Replace, Delete, DeleteDir and Rename and commits them in
one rewrite with backup rotation:

	editor, err := gamepak.OpenEditor("addon.pbo", gamepak.EditOptions{BackupKeep: 1})
	if err != nil {
	    return err
	}
	if err := editor.Rename("old.txt", "new.txt"); err != nil {
	    return err
	}
	if _, err := editor.Commit(ctx); err != nil {
	    return err
	}
*/
package gamepak
