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

type detectReport struct {
	Path     string            `json:"path"`
	Error    string            `json:"error,omitempty"`
	Rankings []gamepak.Ranking `json:"rankings"`
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <archive>...",
		Short: "Score every format against the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := make([]detectReport, 0, len(args))
			for _, path := range args {
				rankings, err := gamepak.DetectFile(path, openOptions()...)
				report := detectReport{Path: path, Rankings: rankings}
				if err != nil {
					report.Error = err.Error()
				}
				reports = append(reports, report)
			}

			if flags.jsonOutput {
				return printJSON(cmd, reports)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, report := range reports {
				if report.Error != "" {
					_, _ = fmt.Fprintf(tw, "%s\terror: %s\n", report.Path, report.Error)
					continue
				}

				for i, rk := range report.Rankings {
					mark := ""
					if i == 0 && rk.Score > cfg.Detect.Floor {
						mark = "*"
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s%s\t%d\n", report.Path, rk.Info.ID, mark, rk.Score)
				}
			}

			return tw.Flush()
		},
	}
}
