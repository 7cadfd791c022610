// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/pathrules"
)

func newPackCmd() *cobra.Command {
	var (
		formatID string
		compress []string
	)

	cmd := &cobra.Command{
		Use:   "pack <archive> <dir>",
		Short: "Pack a directory into a writable format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if formatID == "" {
				formatID = cfg.Detect.Format
			}
			if formatID == "" {
				return fmt.Errorf("pack needs --type or --format")
			}

			inputs, err := collectInputs(args[1])
			if err != nil {
				return err
			}

			enc, _ := gamepak.ParseNameEncoding(cfg.NameEncoding)
			opts := gamepak.WriteOptions{
				Options:      cfg.Plugins,
				NameEncoding: enc,
			}
			for _, pattern := range compress {
				opts.Compress = append(opts.Compress, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
			}

			result, err := gamepak.PackFile(cmd.Context(), formatID, args[0], inputs, opts)
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(cmd, result)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, %d data bytes, %d index bytes\n",
				args[0], result.WrittenEntries, result.DataSize, result.IndexSize)

			return err
		},
	}

	cmd.Flags().StringVarP(&formatID, "type", "t", "", "format id to write")
	cmd.Flags().StringArrayVar(&compress, "compress", nil, "compress matching paths (repeatable)")

	return cmd
}

// collectInputs walks dir and returns one input per regular file.
func collectInputs(dir string) ([]gamepak.Input, error) {
	var inputs []gamepak.Input
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		inputs = append(inputs, gamepak.Input{
			Path:     filepath.ToSlash(rel),
			SizeHint: info.Size(),
			ModTime:  info.ModTime(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(path) //nolint:gosec // walked input file
			},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect inputs: %w", err)
	}

	return inputs, nil
}
