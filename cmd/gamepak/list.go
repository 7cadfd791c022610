// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/woozymasta/gamepak"
)

type listEntry struct {
	Path       string `json:"path"`
	Codec      string `json:"codec"`
	Offset     int64  `json:"offset"`
	StoredSize int64  `json:"stored_size"`
	Size       int64  `json:"size"`
}

type listReport struct {
	Format  string                 `json:"format"`
	Headers []gamepak.HeaderPair   `json:"headers,omitempty"`
	Entries []listEntry            `json:"entries"`
	Skipped []gamepak.SkippedEntry `json:"skipped,omitempty"`
	Score   int                    `json:"score"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <archive>",
		Short: "List archive entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := gamepak.Open(args[0], openOptions()...)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report := listReport{
				Format:  a.Format().ID,
				Score:   a.Score(),
				Headers: a.Headers(),
				Skipped: a.Skipped(),
			}
			for _, res := range a.Resources() {
				report.Entries = append(report.Entries, listEntry{
					Path:       res.Path,
					Codec:      res.Codec(),
					Offset:     res.Offset,
					StoredSize: res.StoredSize,
					Size:       res.Size,
				})
			}

			if flags.jsonOutput {
				return printJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "format: %s (score %d)\n", report.Format, report.Score)
			for _, h := range report.Headers {
				_, _ = fmt.Fprintf(out, "header: %s=%s\n", h.Key, h.Value)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			_, _ = fmt.Fprintln(tw, "size\tstored\tcodec\tpath\t")
			for _, e := range report.Entries {
				_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t\n", e.Size, e.StoredSize, e.Codec, gamepak.DisplayPath(e.Path))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for _, s := range report.Skipped {
				_, _ = fmt.Fprintf(out, "skipped: %s: %v\n", gamepak.DisplayPath(s.Path), s.Err)
			}

			return nil
		},
	}
}
