// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/gamepak/metrics"
)

func newExtractCmd() *cobra.Command {
	var (
		outputDir   string
		include     []string
		exclude     []string
		concurrency int
		digest      bool
		metricsDump bool
	)

	cmd := &cobra.Command{
		Use:   "extract <archive>...",
		Short: "Extract archives, one output directory per archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Extract.Include = append(cfg.Extract.Include, include...)
			cfg.Extract.Exclude = append(cfg.Extract.Exclude, exclude...)
			if digest {
				cfg.Extract.Digest = true
			}
			if concurrency > 0 {
				cfg.Extract.Concurrency = concurrency
			}

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)

			extractOpts := cfg.ExtractOptions()
			extractOpts.Progress = m.Progress(metrics.StageEntry, nil)

			result, err := gamepak.Batch(cmd.Context(), args, gamepak.BatchOptions{
				Logger:      logger,
				Open:        openOptions(),
				OutputDir:   outputDir,
				Extract:     extractOpts,
				Concurrency: cfg.Extract.Concurrency,
				Progress: m.Progress(metrics.StageArchive, func(p gamepak.Progress) {
					logger.Info("archive processed",
						slog.String("path", p.Path),
						slog.Int64("done", p.Done),
						slog.Int64("total", p.Total),
						slog.Int64("bytes", p.Bytes),
						slog.Any("error", p.Err),
					)
				}),
			})
			if result == nil {
				return err
			}

			if flags.jsonOutput {
				if perr := printJSON(cmd, result); perr != nil {
					return perr
				}
			} else {
				for _, f := range result.Files {
					if f.Err != nil {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", f.Path, f.Err)
						continue
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok   %s [%s] %d entries -> %s\n", f.Path, f.Format, f.Resources, f.Output)
				}
			}

			if metricsDump {
				if derr := dumpMetrics(cmd, reg); derr != nil {
					return derr
				}
			}

			if err != nil {
				return err
			}
			if result.Tally.Failed > 0 {
				return fmt.Errorf("%d of %d archives failed", result.Tally.Failed, result.Tally.Files)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outputDir, "output", "o", ".", "output root directory")
	f.StringArrayVar(&include, "include", nil, "extract only matching paths (repeatable)")
	f.StringArrayVar(&exclude, "exclude", nil, "skip matching paths (repeatable)")
	f.IntVarP(&concurrency, "jobs", "j", 0, "archives processed at once")
	f.BoolVar(&digest, "digest", false, "record a content digest per entry")
	f.BoolVar(&metricsDump, "metrics", false, "print Prometheus metrics after the run")

	return cmd
}

// dumpMetrics writes the registry in the text exposition format.
func dumpMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}

	return nil
}
