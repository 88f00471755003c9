package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/compound"
	"github.com/524D/lcquant/internal/measurement"
	"github.com/524D/lcquant/internal/scheduler"

	"github.com/spf13/cobra"
)

type processFlags struct {
	targets  string
	lc       []string
	ms       []string
	mode     string
	out      string
	curveDir string
	quiet    bool
}

func newProcessCmd(a *app) *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process [flags] [file...]",
		Short: "Process LC and MS files and compute concentrations",
		Long: `Process LC chromatograms and mzML files in batches.

Files given as arguments are sorted by extension: mzML files (optionally
.gz or .xz compressed) are MS measurements, everything else is an LC
chromatogram. An LC and an MS file with the same name are treated as
one sample; the LC peak at the retention time of each ion is recorded
with the ion.

MS files whose name contains STMIX and a concentration (e.g.
STMIX_10mM.mzML) are calibration standards. When standards are present,
a calibration curve is fitted per compound and the concentration of
every compound in every MS file is reported.`,
		Example: `  lcquant process --targets targets.json data/*.txt data/*.mzML
  lcquant process -t targets.json --mode "MS Only" --out results.json run1/*.mzML.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.process(cmd, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.targets, "targets", "t", "", "target compounds JSON `file`")
	cmd.Flags().StringSliceVar(&f.lc, "lc", nil, "LC chromatogram `files`")
	cmd.Flags().StringSliceVar(&f.ms, "ms", nil, "mzML `files`")
	cmd.Flags().StringVar(&f.mode, "mode", "",
		`processing mode: "LC/GC-MS", "LC/GC Only" or "MS Only" (default from configuration)`)
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "`filename` of the JSON results (default stdout)")
	cmd.Flags().StringVar(&f.curveDir, "curves", "", "`directory` to write one calibration JSON per compound")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "don't print progress")
	return cmd
}

func (a *app) process(cmd *cobra.Command, f processFlags, args []string) error {
	ctx := cmd.Context()
	modeStr := a.cfg.Processing.Mode
	if f.mode != "" {
		modeStr = f.mode
	}
	mode, err := scheduler.ParseMode(modeStr)
	if err != nil {
		return err
	}
	lcPaths, msPaths := classifyPaths(args)
	lcPaths = append(append([]string(nil), f.lc...), lcPaths...)
	msPaths = append(append([]string(nil), f.ms...), msPaths...)
	if len(lcPaths)+len(msPaths) == 0 {
		return errors.New("no input files")
	}

	if mode != scheduler.ModeLCOnly && f.targets == "" {
		return fmt.Errorf("mode %q needs --targets", mode)
	}
	var targets []*compound.Compound
	if f.targets != "" {
		if targets, err = compound.LoadTargets(f.targets); err != nil {
			return err
		}
	}

	pc := a.cfg.Processing
	proc := &scheduler.Processor{
		Targets: targets,
		MS: measurement.MSOptions{
			MassAccuracy: pc.MassAccuracy,
			MSLevel:      pc.MSLevel,
			TIC:          pc.TIC,
		},
	}
	if pc.CacheSize > 0 {
		proc.Cache = measurement.NewCache(pc.CacheSize)
	}
	workers := pc.Workers
	if workers == 0 {
		workers = scheduler.DetectWorkers()
	}
	progress := make(chan scheduler.Progress)
	opts := []scheduler.Option{
		scheduler.WithProgress(progress),
		scheduler.WithMetrics(a.metrics),
	}
	if pc.Executor == "group" {
		opts = append(opts, scheduler.WithExecutor(scheduler.GroupExecutor{Workers: workers}))
	}
	sched, err := scheduler.New(scheduler.Config{
		Mode:      mode,
		BatchSize: pc.BatchSize,
		Workers:   workers,
	}, proc.Process, opts...)
	if err != nil {
		return err
	}
	a.startMetrics(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			if !f.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rprocessed %d/%d files (%3.0f%%)",
					p.Completed, p.Total, 100*p.Fraction())
			}
		}
		if !f.quiet {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}()
	res, runErr := sched.Run(ctx, lcPaths, msPaths)
	close(progress)
	<-done
	if res == nil {
		return runErr
	}

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	for _, lc := range res.LC {
		measurement.LabelLC(lc, names)
	}
	for name, ms := range res.MS {
		measurement.AnnotateLC(res.LC[name], ms, pc.RTTolerance)
	}
	if len(targets) > 0 && len(res.MS) > 0 {
		err := measurement.CalibrateCompounds(targets, measurement.Standards(res.MS), res.MS,
			a.cfg.Calibration.LogX, a.cfg.Calibration.LogY)
		switch {
		case errors.Is(err, measurement.ErrNoCalibrationFiles):
			a.log.Warn("no calibration standards, concentrations not computed")
		case err != nil:
			a.log.Warn("some compounds could not be calibrated", slog.Any("error", err))
		}
		if f.curveDir != "" {
			if err := writeCurves(f.curveDir, targets); err != nil {
				return err
			}
		}
	}

	rep := newReport(res, targets)
	err = writeOutput(f.out, cmd.OutOrStdout(), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	})
	if err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	if proc.Cache != nil {
		st := proc.Cache.Stats()
		a.log.Debug("stage cache", slog.Int64("hits", st.Hits), slog.Int64("misses", st.Misses))
	}
	return runErr
}

// classifyPaths splits paths into LC chromatograms and mzML files
func classifyPaths(paths []string) (lc, ms []string) {
	for _, p := range paths {
		if isMzML(p) {
			ms = append(ms, p)
		} else {
			lc = append(lc, p)
		}
	}
	return lc, ms
}

// isMzML reports whether path names an mzML file, possibly compressed
func isMzML(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".gz"), ".xz")
	return strings.HasSuffix(base, ".mzml")
}

// writeCurves writes the curve of every calibrated compound to
// <dir>/<compound>.json
func writeCurves(dir string, targets []*compound.Compound) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, t := range targets {
		if t.Curve == nil {
			continue
		}
		fn := filepath.Join(dir, safeName(t.Name)+".json")
		f, err := os.Create(fn)
		if err != nil {
			return err
		}
		err = calibration.WriteCurve(f, *t.Curve)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", fn, err)
		}
	}
	return nil
}

// safeName replaces characters that are not allowed or awkward in file
// names
func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

// Results as written to JSON
type report struct {
	Version   string          `json:"version"`
	Program   string          `json:"program"`
	RunID     string          `json:"run_id"`
	Compounds []compoundCurve `json:"compounds,omitempty"`
	Samples   []sampleReport  `json:"samples"`
}

type compoundCurve struct {
	Name        string             `json:"name"`
	Mzs         []float64          `json:"mzs"`
	Curve       *calibration.Curve `json:"curve,omitempty"`
	Calibration []calPoint         `json:"calibration,omitempty"`
}

type calPoint struct {
	Concentration float64 `json:"concentration"`
	Signal        float64 `json:"signal"`
}

type sampleReport struct {
	Name          string           `json:"name"`
	Calibration   bool             `json:"calibration,omitempty"`
	Concentration string           `json:"concentration_label,omitempty"`
	LCFile        string           `json:"lc_file,omitempty"`
	MSFile        string           `json:"ms_file,omitempty"`
	LCPeaks       []lcPeak         `json:"lc_peaks,omitempty"`
	Compounds     []compoundResult `json:"compounds,omitempty"`
}

type lcPeak struct {
	Name   string  `json:"name,omitempty"`
	RT     float64 `json:"rt"`
	Height float64 `json:"height"`
	Area   float64 `json:"area"`
}

type compoundResult struct {
	Name          string      `json:"name"`
	Concentration *float64    `json:"concentration,omitempty"`
	Ions          []ionResult `json:"ions"`
}

type ionResult struct {
	Mz            float64  `json:"mz"`
	RT            *float64 `json:"rt,omitempty"`
	PeakArea      *float64 `json:"peak_area,omitempty"`
	CorrectedArea *float64 `json:"corrected_area,omitempty"`
	SNR           *float64 `json:"snr,omitempty"`
	LCIntensity   *float64 `json:"lc_intensity,omitempty"`
	WindowArea    *float64 `json:"window_area,omitempty"`
}

func newReport(res *scheduler.Result, targets []*compound.Compound) report {
	rep := report{
		Version: outputFormatVersion,
		Program: progName + " " + progVersion,
		RunID:   res.RunID,
	}
	for _, t := range targets {
		cc := compoundCurve{Name: t.Name, Mzs: t.Mzs, Curve: t.Curve}
		for conc, signal := range t.Calibration {
			cc.Calibration = append(cc.Calibration, calPoint{Concentration: conc, Signal: signal})
		}
		sort.Slice(cc.Calibration, func(i, j int) bool {
			return cc.Calibration[i].Concentration < cc.Calibration[j].Concentration
		})
		rep.Compounds = append(rep.Compounds, cc)
	}

	names := make(map[string]bool)
	for n := range res.LC {
		names[n] = true
	}
	for n := range res.MS {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, n := range sorted {
		s := sampleReport{Name: n}
		if lc := res.LC[n]; lc != nil {
			s.LCFile = lc.Path
			for i, p := range lc.LC.Peaks {
				var name string
				if i < len(lc.LC.Named) {
					name = lc.LC.Named[i].Name
				}
				s.LCPeaks = append(s.LCPeaks, lcPeak{
					Name:   name,
					RT:     lc.LC.Corrected.Time[p.Apex],
					Height: p.Height,
					Area:   p.Area,
				})
			}
		}
		if ms := res.MS[n]; ms != nil {
			s.MSFile = ms.Path
			s.Calibration = ms.Calibration
			s.Concentration = ms.Concentration
			for _, c := range ms.MS.Compounds {
				cr := compoundResult{Name: c.Name, Concentration: c.Concentration}
				for _, mz := range c.Mzs {
					r := c.Ions[mz]
					cr.Ions = append(cr.Ions, ionResult{
						Mz:            mz,
						RT:            r.RT,
						PeakArea:      r.PeakArea,
						CorrectedArea: r.CorrectedArea,
						SNR:           r.SNR,
						LCIntensity:   r.LCIntensity,
						WindowArea:    r.WindowArea,
					})
				}
				s.Compounds = append(s.Compounds, cr)
			}
		}
		rep.Samples = append(rep.Samples, s)
	}
	return rep
}
