// Package compound holds the target compounds of an analysis and the
// per-ion results measured for them in one file.
package compound

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/mzml"
)

// ErrInvalidTargets means a target list could not be decoded
var ErrInvalidTargets = errors.New("compound: invalid target list")

// IonResult is what was measured for one ion of a compound. Nil fields
// have not been computed.
type IonResult struct {
	// RT is the retention time (minutes) of the XIC maximum
	RT          *float64
	MSIntensity *mzml.Trace
	LCIntensity *float64
	// PeakArea is the total area of the XIC peak nearest to RT,
	// CorrectedArea the part above the straight line between its bounds
	PeakArea      *float64
	CorrectedArea *float64
	// SNR is the signal to noise ratio of the XIC peak
	SNR *float64
	// WindowArea is the XIC area over the time span of the matching LC
	// peak
	WindowArea *float64
}

func (r *IonResult) clone() *IonResult {
	if r == nil {
		return &IonResult{}
	}
	return &IonResult{
		RT:            clonePtr(r.RT),
		MSIntensity:   cloneTrace(r.MSIntensity),
		LCIntensity:   clonePtr(r.LCIntensity),
		PeakArea:      clonePtr(r.PeakArea),
		CorrectedArea: clonePtr(r.CorrectedArea),
		SNR:           clonePtr(r.SNR),
		WindowArea:    clonePtr(r.WindowArea),
	}
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTrace(t *mzml.Trace) *mzml.Trace {
	if t == nil {
		return nil
	}
	return &mzml.Trace{
		ID:        t.ID,
		Time:      append([]float64(nil), t.Time...),
		Intensity: append([]float64(nil), t.Intensity...),
	}
}

// Compound is a target compound with its ions keyed by m/z
type Compound struct {
	Name string
	// Mzs lists the ion m/z values in target list order
	Mzs     []float64
	Ions    map[float64]*IonResult
	IonInfo []string
	// Calibration maps standard concentrations (mM) to their signal
	Calibration   map[float64]float64
	Curve         *calibration.Curve
	Concentration *float64
}

// New returns a compound with empty results for every ion
func New(name string, mzs []float64, info []string) *Compound {
	c := &Compound{
		Name:        name,
		Mzs:         append([]float64(nil), mzs...),
		Ions:        make(map[float64]*IonResult, len(mzs)),
		IonInfo:     append([]string(nil), info...),
		Calibration: make(map[float64]float64),
	}
	for _, mz := range mzs {
		c.Ions[mz] = &IonResult{}
	}
	return c
}

// Clone returns a copy of c that shares no ion results with it, so every
// file gets its own result fields
func (c *Compound) Clone() *Compound {
	n := New(c.Name, c.Mzs, c.IonInfo)
	for mz, r := range c.Ions {
		n.Ions[mz] = r.clone()
	}
	for k, v := range c.Calibration {
		n.Calibration[k] = v
	}
	if c.Curve != nil {
		cv := *c.Curve
		n.Curve = &cv
	}
	n.Concentration = clonePtr(c.Concentration)
	return n
}

// CloneAll clones a list of compounds
func CloneAll(cs []*Compound) []*Compound {
	out := make([]*Compound, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

// TargetMzs returns the m/z values of all ions of cs, in order, without
// duplicates
func TargetMzs(cs []*Compound) []float64 {
	seen := make(map[float64]bool)
	var mzs []float64
	for _, c := range cs {
		for _, mz := range c.Mzs {
			if !seen[mz] {
				seen[mz] = true
				mzs = append(mzs, mz)
			}
		}
	}
	return mzs
}

// Signal returns the quantitative signal of the compound: the sum over
// its ions of the baseline corrected peak area when usePeakArea is set
// and a positive area is available, else of the rounded XIC intensity
// sum. usedArea reports whether any peak area contributed.
func (c *Compound) Signal(usePeakArea bool) (signal float64, usedArea bool) {
	for _, mz := range c.Mzs {
		r := c.Ions[mz]
		if r == nil {
			continue
		}
		if usePeakArea && r.CorrectedArea != nil && *r.CorrectedArea > 0 {
			signal += *r.CorrectedArea
			usedArea = true
			continue
		}
		if r.MSIntensity != nil && len(r.MSIntensity.Intensity) > 1 {
			var sum float64
			for _, v := range r.MSIntensity.Intensity {
				sum += v
			}
			signal += math.Round(sum)
		}
	}
	return signal, usedArea
}

type target struct {
	Ions []float64 `json:"ions"`
	Info []string  `json:"info"`
}

// LoadTargets reads a target list file, see ReadTargets
func LoadTargets(path string) ([]*Compound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTargets(f)
}

// ReadTargets decodes a JSON object mapping compound names to their ions
// and ion descriptions:
//
//	{"Alanine": {"ions": [260.1129, 90.055], "info": ["Alanine-D", "Alanine-I-pos"]}}
//
// Compounds are returned in file order.
func ReadTargets(r io.Reader) ([]*Compound, error) {
	d := json.NewDecoder(r)
	tok, err := d.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargets, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrInvalidTargets)
	}
	var cs []*Compound
	for d.More() {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTargets, err)
		}
		name := tok.(string)
		var t target
		if err := d.Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: compound %q: %w", ErrInvalidTargets, name, err)
		}
		if len(t.Ions) == 0 {
			return nil, fmt.Errorf("%w: compound %q has no ions", ErrInvalidTargets, name)
		}
		cs = append(cs, New(name, t.Ions, t.Info))
	}
	if _, err := d.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargets, err)
	}
	return cs, nil
}
