// Package xic builds extracted ion chromatograms: for every target m/z
// the summed intensity inside a mass window, one point per scan.
package xic

import (
	"log/slog"
	"sort"

	"github.com/524D/lcquant/internal/compound"
	"github.com/524D/lcquant/internal/mzml"
	"github.com/524D/lcquant/internal/peaks"
)

// windowFactor widens the mass accuracy to the extraction half window
const windowFactor = 3

// ScanSource yields scans one at a time. *mzml.Reader implements it.
type ScanSource interface {
	Next() bool
	Scan() *mzml.Scan
	Err() error
}

// Options restricts which scans contribute to the traces
type Options struct {
	// MSLevel, when not 0, ignores scans of other MS levels
	MSLevel int
}

type window struct {
	lower, upper float64
}

// windows computes the extraction window of every target. The half
// width is relative to the m/z, so massAccuracy is a fraction (1e-5 for
// 10 ppm). Lower bounds are never negative.
func windows(targets []float64, massAccuracy float64, log *slog.Logger) []window {
	w := make([]window, len(targets))
	for i, mz := range targets {
		delta := mz * massAccuracy * windowFactor
		w[i] = window{mz - delta, mz + delta}
		if w[i].lower < 0 {
			log.Info("clamping negative lower mass bound to 0",
				slog.Float64("mz", mz), slog.Float64("lower", w[i].lower))
			w[i].lower = 0
		}
	}
	return w
}

// sumWindow adds the intensities of all peaks with lower <= m/z <= upper.
// mz must be sorted ascending.
func sumWindow(mz, intensity []float64, lower, upper float64) float64 {
	first := sort.SearchFloat64s(mz, lower)
	last := sort.Search(len(mz), func(i int) bool { return mz[i] > upper })
	var sum float64
	for i := first; i < last; i++ {
		sum += intensity[i]
	}
	return sum
}

// Build reads all scans of src and returns one trace per target m/z.
// Every trace has one point per accepted scan, so traces of one file
// always have equal length. Scans without a retention time get time 0.
func Build(src ScanSource, targets []float64, massAccuracy float64) (map[float64]mzml.Trace, error) {
	return BuildWithOptions(src, targets, massAccuracy, Options{})
}

// BuildWithOptions is Build with scan selection
func BuildWithOptions(src ScanSource, targets []float64, massAccuracy float64,
	opts Options) (map[float64]mzml.Trace, error) {
	log := slog.Default().With(slog.String("component", "xic"))
	w := windows(targets, massAccuracy, log)

	var times []float64
	sums := make([][]float64, len(targets))
	for src.Next() {
		sc := src.Scan()
		if opts.MSLevel != 0 && sc.MSLevel != opts.MSLevel {
			continue
		}
		t := sc.Time
		if t < 0 {
			t = 0
		}
		times = append(times, t)
		for i := range targets {
			sums[i] = append(sums[i], sumWindow(sc.Mz, sc.Intensity, w[i].lower, w[i].upper))
		}
	}
	if err := src.Err(); err != nil {
		return nil, err
	}

	traces := make(map[float64]mzml.Trace, len(targets))
	for i, mz := range targets {
		intensity := sums[i]
		if intensity == nil {
			intensity = []float64{}
		}
		traces[mz] = mzml.Trace{
			Time:      times,
			Intensity: intensity,
		}
	}
	log.Debug("built XICs", slog.Int("targets", len(targets)), slog.Int("scans", len(times)))
	return traces, nil
}

// RT returns the time of the highest point of a trace. The first point
// wins ties. Empty traces and traces without signal have RT 0.
func RT(tr mzml.Trace) float64 {
	best := -1
	for i, v := range tr.Intensity {
		if v > 0 && (best < 0 || v > tr.Intensity[best]) {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return tr.Time[best]
}

// IntegrateWindow returns the trapezoidal area of the trace between
// start and end (inclusive), or 0 when fewer than two points fall in
// the window
func IntegrateWindow(tr mzml.Trace, start, end float64) float64 {
	first, last := -1, -1
	for i, t := range tr.Time {
		if t >= start && t <= end {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0
	}
	return peaks.Integrate(tr.Time, tr.Intensity, first, last)
}

// PeakNear integrates and assesses the XIC peak closest to rt. ok is
// false when the trace has no peak.
func PeakNear(tr mzml.Trace, rt float64) (peaks.Peak, bool) {
	return peaks.AreaNear(tr.Time, tr.Intensity, rt)
}

// Apply stores the traces in the ion results of cs and sets the
// retention time, peak areas and signal to noise ratio of every ion
// found in traces
func Apply(cs []*compound.Compound, traces map[float64]mzml.Trace) {
	for _, c := range cs {
		for _, mz := range c.Mzs {
			tr, ok := traces[mz]
			if !ok {
				continue
			}
			r := c.Ions[mz]
			rt := RT(tr)
			r.MSIntensity = &tr
			r.RT = &rt
			if p, ok := PeakNear(tr, rt); ok {
				r.PeakArea = &p.Area
				r.CorrectedArea = &p.CorrectedArea
				r.SNR = &p.SNR
			}
		}
	}
}
