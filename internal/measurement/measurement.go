// Package measurement turns LC and MS data files into analysed
// measurements: corrected chromatograms with integrated peaks for LC,
// compound XICs with retention times and peak areas for MS.
package measurement

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/chromatogram"
	"github.com/524D/lcquant/internal/compound"
	"github.com/524D/lcquant/internal/fileio"
	"github.com/524D/lcquant/internal/mzml"
	"github.com/524D/lcquant/internal/peaks"
	"github.com/524D/lcquant/internal/xic"
)

// Kind tells which data a Measurement carries
type Kind int

const (
	LC Kind = iota
	MS
)

func (k Kind) String() string {
	switch k {
	case LC:
		return "LC"
	case MS:
		return "MS"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Measurement is one analysed data file. Exactly one of LC and MS is set,
// according to Kind.
type Measurement struct {
	Kind Kind
	Path string
	// Name is the file name without directory and extensions
	Name string
	// Calibration is set for calibration standards
	Calibration bool
	// Concentration is the concentration label in the file name, if any
	Concentration string
	LC            *LCData
	MS            *MSData
}

// LCData is the result of LC processing
type LCData struct {
	Raw       chromatogram.Chromatogram
	Corrected chromatogram.Corrected
	Peaks     []peaks.Peak
	// Named holds the peaks labelled by LabelLC
	Named []peaks.Named
}

// MSData is the result of MS processing
type MSData struct {
	MassAccuracy float64
	// Compounds are private copies of the targets with their ion results
	Compounds []*compound.Compound
	// TIC is nil unless requested
	TIC *mzml.Trace
}

// MSOptions controls MS processing
type MSOptions struct {
	// MassAccuracy is the relative m/z accuracy, e.g. 1e-5 for 10 ppm
	MassAccuracy float64
	// MSLevel limits the XICs to one MS level, 0 uses all scans
	MSLevel int
	// TIC also extracts the total ion chromatogram
	TIC bool
}

// New returns an empty measurement for path, with the name derived
// flags already set
func New(path string, kind Kind) *Measurement {
	m := &Measurement{Kind: kind, Path: path, Name: fileio.Stem(path)}
	m.Calibration = calibration.IsCalibrationFile(m.Name)
	if c, ok := calibration.ConcentrationFromName(m.Name); ok {
		m.Concentration = c
	}
	return m
}

// LoadLC reads a chromatogram, corrects its baseline and integrates its
// peaks. cache may be nil.
func LoadLC(path string, cache *Cache) (*Measurement, error) {
	m := New(path, LC)
	raw, err := cached(cache, path, Key{Stage: StageRaw}, func() (chromatogram.Chromatogram, error) {
		return chromatogram.Load(path)
	})
	if err != nil {
		return nil, fmt.Errorf("LC %s: %w", m.Name, err)
	}
	corr, err := cached(cache, path, Key{Stage: StageCorrected}, func() (chromatogram.Corrected, error) {
		return chromatogram.Correct(raw), nil
	})
	if err != nil {
		return nil, fmt.Errorf("LC %s: %w", m.Name, err)
	}
	found, err := cached(cache, path, Key{Stage: StagePeaks}, func() ([]peaks.Peak, error) {
		return peaks.DetectLC(corr.Time, corr.Value), nil
	})
	if err != nil {
		return nil, fmt.Errorf("LC %s: %w", m.Name, err)
	}
	m.LC = &LCData{Raw: raw, Corrected: corr, Peaks: found}
	slog.Default().With(slog.String("component", "measurement")).Info("LC file processed",
		slog.String("name", m.Name), slog.Int("points", raw.Len()), slog.Int("peaks", len(found)))
	return m, nil
}

// LoadMS extracts the XICs of all target ions from an mzML file and
// stores them, with retention times and peak areas, in private copies of
// targets. cache may be nil.
func LoadMS(path string, targets []*compound.Compound, opts MSOptions, cache *Cache) (*Measurement, error) {
	m := New(path, MS)
	mzs := compound.TargetMzs(targets)
	key := Key{Stage: StageXIC, Param: fmt.Sprint(opts.MassAccuracy, opts.MSLevel, mzs)}
	traces, err := cached(cache, path, key, func() (map[float64]mzml.Trace, error) {
		r, err := mzml.Open(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return xic.BuildWithOptions(r, mzs, opts.MassAccuracy, xic.Options{MSLevel: opts.MSLevel})
	})
	if err != nil {
		return nil, fmt.Errorf("MS %s: %w", m.Name, err)
	}
	cs := compound.CloneAll(targets)
	xic.Apply(cs, traces)
	m.MS = &MSData{MassAccuracy: opts.MassAccuracy, Compounds: cs}

	if opts.TIC {
		tic, err := cached(cache, path, Key{Stage: StageTIC}, func() (*mzml.Trace, error) {
			tr, ok, err := mzml.ExtractTIC(path)
			if err != nil || !ok {
				return nil, err
			}
			return &tr, nil
		})
		if err != nil {
			return nil, fmt.Errorf("MS %s: %w", m.Name, err)
		}
		m.MS.TIC = tic
	}
	slog.Default().With(slog.String("component", "measurement")).Info("MS file processed",
		slog.String("name", m.Name), slog.Int("compounds", len(cs)), slog.Int("ions", len(mzs)))
	return m, nil
}

// PeakAt returns the LC peak whose apex lies within tolerance minutes of rt
func (d *LCData) PeakAt(rt, tolerance float64) (peaks.Peak, bool) {
	return peaks.Nearest(d.Corrected.Time, d.Peaks, rt, tolerance)
}

// LabelLC names the LC peaks of m in elution order with names, usually
// the target compounds in target list order. Peaks or names left over
// stay unlabelled.
func LabelLC(m *Measurement, names []string) {
	if m == nil || m.LC == nil {
		return
	}
	m.LC.Named = peaks.MatchNames(m.LC.Peaks, names)
}

// AnnotateLC sets the LC intensity of every MS ion that has a retention
// time to the area of the LC peak at that time, if there is one. The
// XIC area over the time span of that LC peak is stored as the window
// area of the ion.
func AnnotateLC(lc, ms *Measurement, tolerance float64) {
	if lc == nil || lc.LC == nil || ms == nil || ms.MS == nil {
		return
	}
	for _, c := range ms.MS.Compounds {
		for _, mz := range c.Mzs {
			r := c.Ions[mz]
			if r.RT == nil || *r.RT == 0 {
				continue
			}
			if p, ok := lc.LC.PeakAt(*r.RT, tolerance); ok {
				area := p.Area
				r.LCIntensity = &area
				if r.MSIntensity != nil {
					t := lc.LC.Corrected.Time
					w := xic.IntegrateWindow(*r.MSIntensity, t[p.Left], t[p.Right])
					r.WindowArea = &w
				}
			}
		}
	}
}
