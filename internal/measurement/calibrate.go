package measurement

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/compound"
)

// ErrNoCalibrationFiles means no MS measurement has a usable concentration
var ErrNoCalibrationFiles = errors.New("measurement: no calibration standards")

// Standards returns the concentration label of every calibration
// standard among ms whose file name carries one
func Standards(ms map[string]*Measurement) map[string]string {
	std := make(map[string]string)
	for name, m := range ms {
		if m.Calibration && m.Concentration != "" {
			std[name] = m.Concentration
		}
	}
	return std
}

// CalibrateCompounds fits a calibration curve for every target from the
// MS measurements named in standards (name to concentration label), and
// then sets the concentration of every compound in every MS measurement.
// Curves are fitted on peak areas first and refitted on XIC intensity
// sums when R² stays below calibration.MinRSquared. Compounds that cannot
// be calibrated are skipped; their errors are returned joined.
func CalibrateCompounds(targets []*compound.Compound, standards map[string]string,
	ms map[string]*Measurement, logX, logY bool) error {
	log := slog.Default().With(slog.String("component", "calibration"))

	type standard struct {
		conc float64
		m    *Measurement
	}
	var stds []standard
	names := make([]string, 0, len(standards))
	for name := range standards {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		conc, err := calibration.ParseConcentration(standards[name])
		if err != nil {
			log.Warn("skipping calibration file", slog.String("name", name), slog.Any("error", err))
			continue
		}
		m := ms[name]
		if m == nil || m.MS == nil {
			log.Error("no XICs for calibration file", slog.String("name", name))
			continue
		}
		stds = append(stds, standard{conc, m})
	}
	if len(stds) == 0 {
		return ErrNoCalibrationFiles
	}

	points := func(i int, usePeakArea bool) []calibration.Point {
		t := targets[i]
		t.Calibration = make(map[float64]float64)
		var pts []calibration.Point
		for _, s := range stds {
			c := compoundAt(s.m, i, t.Name)
			if c == nil {
				continue
			}
			signal, _ := c.Signal(usePeakArea)
			t.Calibration[s.conc] = signal
			pts = append(pts, calibration.Point{Concentration: s.conc, Signal: signal})
		}
		return pts
	}

	var errs []error
	for i, t := range targets {
		t.Curve = nil
		curve, err := calibration.Fit(points(i, true), logX, logY)
		if err == nil {
			curve.UsePeakArea = true
		}
		if err != nil || curve.RSquared < calibration.MinRSquared {
			if err == nil {
				log.Warn("low R² with peak areas, using intensity sums",
					slog.String("compound", t.Name), slog.Float64("r2", curve.RSquared))
			}
			curve, err = calibration.Fit(points(i, false), logX, logY)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		t.Curve = &curve
		log.Info("calibrated", slog.String("compound", t.Name), slog.Float64("slope", curve.Slope),
			slog.Float64("intercept", curve.Intercept), slog.Float64("r2", curve.RSquared),
			slog.Bool("peak_area", curve.UsePeakArea))
	}

	for _, m := range ms {
		if m.MS == nil {
			continue
		}
		for i, t := range targets {
			if t.Curve == nil {
				continue
			}
			c := compoundAt(m, i, t.Name)
			if c == nil {
				continue
			}
			signal, _ := c.Signal(t.Curve.UsePeakArea)
			conc := calibration.Concentration(signal, *t.Curve)
			curve := *t.Curve
			c.Curve = &curve
			c.Concentration = &conc
		}
	}
	return errors.Join(errs...)
}

// compoundAt returns compound i of an MS measurement if it is the
// expected one
func compoundAt(m *Measurement, i int, name string) *compound.Compound {
	if i >= len(m.MS.Compounds) || m.MS.Compounds[i].Name != name {
		return nil
	}
	return m.MS.Compounds[i]
}
