package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/mzml"

	"github.com/spf13/cobra"
)

// ErrNoData is returned when a file has nothing to extract
var ErrNoData = errors.New("no data")

// writeOutput calls write with the file named fn, or with w when fn is
// empty
func writeOutput(fn string, w io.Writer, write func(io.Writer) error) (err error) {
	if fn == "" {
		return write(w)
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func newTICCmd(a *app) *cobra.Command {
	var out string
	var enc mzml.Encoding
	cmd := &cobra.Command{
		Use:   "tic [flags] <mzMLfile>",
		Short: "Extract the total ion current chromatogram",
		Long: `Extract the total ion current chromatogram of an mzML file. An embedded
TIC chromatogram is used when present, otherwise the TIC is computed
from the MS1 spectra.

Without --out the TIC is printed as tab separated time (minutes) and
intensity. With --out it is written as an mzML file containing only the
chromatogram.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tic, ok, err := mzml.ExtractTIC(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], ErrNoData)
			}
			if out == "" {
				return writeTrace(cmd.OutOrStdout(), tic)
			}
			tic.ID = "TIC"
			return writeOutput(out, nil, func(w io.Writer) error {
				return mzml.Write(w, mzml.Document{
					Chromatograms: []mzml.Trace{tic},
					Encoding:      enc,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the TIC to this mzML `file`")
	cmd.Flags().BoolVar(&enc.Zlib, "zlib", false, "zlib compress binary arrays in mzML output")
	cmd.Flags().BoolVar(&enc.Bits64, "64", false, "write 64 bit binary arrays in mzML output")
	return cmd
}

// writeTrace prints a trace as tab separated columns
func writeTrace(w io.Writer, tr mzml.Trace) error {
	for i := range tr.Time {
		if _, err := fmt.Fprintf(w, "%g\t%g\n", tr.Time[i], tr.Intensity[i]); err != nil {
			return err
		}
	}
	return nil
}

type fragmentFlags struct {
	mz          float64
	rt          float64
	mzTolerance float64
	timeWindow  float64
	out         string
}

func newFragmentCmd(a *app) *cobra.Command {
	var f fragmentFlags
	cmd := &cobra.Command{
		Use:   "fragment [flags] <mzMLfile>",
		Short: "Find the fragmentation scan of a precursor nearest to a retention time",
		Long: `Find the MS2 (or higher) scan whose precursor m/z matches --mz and whose
retention time is nearest to --rt. Tolerances default to the fragment
section of the configuration.

Without --out the peaks of the scan are printed as tab separated m/z
and intensity. With --out the scan is written as an mzML file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("mz") || !cmd.Flags().Changed("rt") {
				return errors.New("--mz and --rt are required")
			}
			mzTol, window := a.cfg.Fragment.MzTolerance, a.cfg.Fragment.TimeWindow
			if cmd.Flags().Changed("mztol") {
				mzTol = f.mzTolerance
			}
			if cmd.Flags().Changed("window") {
				window = f.timeWindow
			}
			sc, err := mzml.FindNearestFragmentScan(args[0], f.mz, f.rt, mzTol, window)
			if err != nil {
				return err
			}
			if sc == nil {
				return fmt.Errorf("%s: no fragmentation scan for m/z %g near %g min: %w",
					args[0], f.mz, f.rt, ErrNoData)
			}
			a.log.Info("fragment scan found", slog.String("id", sc.ID), slog.Float64("rt", sc.Time),
				slog.Float64("precursor", sc.PrecursorMz), slog.Int("peaks", len(sc.Mz)))
			if f.out == "" {
				return writeTrace(cmd.OutOrStdout(), mzml.Trace{Time: sc.Mz, Intensity: sc.Intensity})
			}
			return writeOutput(f.out, nil, func(w io.Writer) error {
				return mzml.Write(w, mzml.Document{Spectra: []mzml.Scan{*sc}})
			})
		},
	}
	cmd.Flags().Float64Var(&f.mz, "mz", 0, "precursor m/z")
	cmd.Flags().Float64Var(&f.rt, "rt", 0, "retention time in minutes")
	cmd.Flags().Float64Var(&f.mzTolerance, "mztol", 0, "precursor m/z tolerance (Th)")
	cmd.Flags().Float64Var(&f.timeWindow, "window", 0, "maximum retention time difference in minutes")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the scan to this mzML `file`")
	return cmd
}

func newConcentrationCmd(a *app) *cobra.Command {
	var curveFile string
	cmd := &cobra.Command{
		Use:   "concentration --curve <file> <signal>...",
		Short: "Convert signals to concentrations with a stored calibration curve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			curve, err := readCurveFile(curveFile)
			if err != nil {
				return err
			}
			signals, err := parseSignals(args)
			if err != nil {
				return err
			}
			for i, s := range signals {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g\n", args[i], calibration.Concentration(s, curve))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&curveFile, "curve", "", "calibration curve JSON `file`, as written by process --curves")
	cmd.MarkFlagRequired("curve")
	return cmd
}

func readCurveFile(fn string) (calibration.Curve, error) {
	f, err := os.Open(fn)
	if err != nil {
		return calibration.Curve{}, err
	}
	defer f.Close()
	c, err := calibration.ReadCurve(f)
	if err != nil {
		return c, fmt.Errorf("%s: %w", fn, err)
	}
	return c, nil
}

// parseSignals converts the signal arguments to numbers
func parseSignals(args []string) ([]float64, error) {
	signals := make([]float64, len(args))
	for i, s := range args {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid signal %q: %w", s, err)
		}
		signals[i] = v
	}
	return signals, nil
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying the configuration file and
LCQUANT_* environment variables, in the YAML format read by --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.Write(cmd.OutOrStdout())
		},
	}
}
