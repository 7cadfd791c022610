// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/woozymasta/gamepak"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List registered formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plugins := gamepak.DefaultRegistry().Plugins()
			infos := make([]gamepak.Info, 0, len(plugins))
			for _, p := range plugins {
				infos = append(infos, p.Info())
			}

			if flags.jsonOutput {
				return printJSON(cmd, infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tCAPS\tEXTENSIONS\tNAME")
			for _, info := range infos {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, info.Caps, strings.Join(info.Extensions, ","), info.Name)
			}

			return tw.Flush()
		},
	}
}
