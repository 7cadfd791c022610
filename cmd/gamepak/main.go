// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Command gamepak detects, lists, extracts and packs game archives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/woozymasta/gamepak"
	_ "github.com/woozymasta/gamepak/formats"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	format     string
	options    []string
	jsonOutput bool
}

var (
	flags  globalFlags
	cfg    *gamepak.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gamepak",
		Short: "Game archive extraction engine",
		Long: `gamepak recognizes game resource containers by content, lists their
entries and extracts them safely.

Examples:
  gamepak detect data.mix
  gamepak list pak0.pak
  gamepak extract -o out/ *.pbo
  gamepak pack --type grp duke3d.grp ./files`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&flags.format, "format", "f", "", "force format id and skip detection")
	pf.StringArrayVarP(&flags.options, "option", "O", nil, "plugin option key=value (repeatable)")
	pf.BoolVar(&flags.jsonOutput, "json", false, "print machine readable JSON")

	root.AddCommand(
		newDetectCmd(),
		newListCmd(),
		newExtractCmd(),
		newPackCmd(),
		newFormatsCmd(),
	)

	return root
}

// setup loads the config and applies flag overrides.
func setup(cmd *cobra.Command, _ []string) error {
	cfg = gamepak.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := gamepak.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.format != "" {
		cfg.Detect.Format = flags.format
	}

	pluginOptions, err := parseOptions(flags.options)
	if err != nil {
		return err
	}
	if len(pluginOptions) > 0 && cfg.Plugins == nil {
		cfg.Plugins = make(map[string]string, len(pluginOptions))
	}
	for k, v := range pluginOptions {
		cfg.Plugins[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	return nil
}

// openOptions returns archive open options from the loaded config.
func openOptions() []gamepak.Option {
	return append(cfg.Options(), gamepak.WithLogger(logger))
}

// parseOptions splits repeated key=value flags.
func parseOptions(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, want key=value", kv)
		}
		out[key] = value
	}

	return out, nil
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
