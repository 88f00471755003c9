// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/524D/lcquant/internal/config"
	"github.com/524D/lcquant/internal/logging"
	"github.com/524D/lcquant/internal/metrics"

	"github.com/spf13/cobra"
)

// Program name and version, written to results and mzML output
const progName = "lcquant"

var progVersion = `Unknown`

// Format of output, if it ever changes we should still be able to parse
// output from old versions
const outputFormatVersion = "1.0"

// app carries the state shared by all subcommands
type app struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
	logCloser  io.Closer
	metrics    *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   progName,
		Short: "Quantify compounds in LC and LC-MS measurements",
		Long: `lcquant detects and integrates peaks in LC chromatograms, extracts
ion chromatograms for target compounds from mzML files, and converts
their signals to concentrations using calibration standards.

Configuration is read from the file given with --config and can be
overridden with LCQUANT_* environment variables, e.g.
LCQUANT_PROCESSING_WORKERS=4 or LCQUANT_LOGGING_LEVEL=debug.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"YAML configuration `file`")

	root.AddCommand(
		newProcessCmd(a),
		newTICCmd(a),
		newFragmentCmd(a),
		newConcentrationCmd(a),
		newConfigCmd(a),
	)
	return root
}

func versionString() string {
	if progVersion == `Unknown` {
		return `Unknown
Please build this program with script 'build.sh' so that the git version is shown here.`
	}
	return progVersion
}

// init loads the configuration and sets up logging
func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, closer, err := logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	a.logCloser = closer
	a.metrics = metrics.NewCollector()
	return nil
}

// startMetrics serves the metrics endpoint until ctx is done, if an
// address is configured
func (a *app) startMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.StartServer(ctx, addr); err != nil {
			a.log.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	a.log.Info("serving metrics", slog.String("addr", addr))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
