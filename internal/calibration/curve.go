// Package calibration fits linear calibration curves to standard samples
// and converts measured signals back to concentrations.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrTooFewPoints means fewer than two points remain for the fit
	ErrTooFewPoints = errors.New("calibration: fewer than two usable points")
	// ErrDegenerate means all usable points share one concentration
	ErrDegenerate = errors.New("calibration: all concentrations are equal")
)

// MinRSquared is the goodness of fit below which a peak area curve is
// refitted with intensity sums
const MinRSquared = 0.95

// Point is one calibration standard: its concentration (mM) and signal
type Point struct {
	Concentration float64
	Signal        float64
}

// Curve is the straight line signal = Slope*concentration + Intercept,
// with either axis optionally on a log10 scale
type Curve struct {
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	LogX        bool    `json:"log_x"`
	LogY        bool    `json:"log_y"`
	RSquared    float64 `json:"r_squared"`
	UsePeakArea bool    `json:"use_peak_area"`
	// Points is the number of points the line was fitted on
	Points int `json:"points"`
}

// Fit computes the least squares line through points. With logX points
// with a non-positive concentration are dropped, with logY points with a
// non-positive signal.
func Fit(points []Point, logX, logY bool) (Curve, error) {
	x := make([]float64, 0, len(points))
	y := make([]float64, 0, len(points))
	for _, p := range points {
		c, s := p.Concentration, p.Signal
		if logX {
			if c <= 0 {
				continue
			}
			c = math.Log10(c)
		}
		if logY {
			if s <= 0 {
				continue
			}
			s = math.Log10(s)
		}
		x = append(x, c)
		y = append(y, s)
	}
	if len(x) < 2 {
		return Curve{}, fmt.Errorf("%w: %d of %d", ErrTooFewPoints, len(x), len(points))
	}
	if stat.Variance(x, nil) == 0 {
		return Curve{}, ErrDegenerate
	}
	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(r2) {
		// Constant signal: the line is exact
		r2 = 1
	}
	return Curve{
		Slope:     slope,
		Intercept: intercept,
		LogX:      logX,
		LogY:      logY,
		RSquared:  r2,
		Points:    len(x),
	}, nil
}

// Concentration converts a signal to a concentration with curve c.
// Results that are not a finite, non-negative number are reported as 0,
// which also covers signals below the detection limit.
func Concentration(signal float64, c Curve) float64 {
	if c.Slope == 0 {
		return 0
	}
	if c.LogY {
		if signal <= 0 {
			return 0
		}
		signal = math.Log10(signal)
	}
	conc := (signal - c.Intercept) / c.Slope
	if c.LogX {
		conc = math.Pow(10, conc)
	}
	if math.IsNaN(conc) || math.IsInf(conc, 0) || conc < 0 {
		return 0
	}
	return math.Round(conc*1e6) / 1e6
}

// Signal returns the signal the curve predicts for a concentration
func Signal(conc float64, c Curve) float64 {
	if c.LogX {
		conc = math.Log10(conc)
	}
	s := c.Slope*conc + c.Intercept
	if c.LogY {
		s = math.Pow(10, s)
	}
	return s
}

// ReadCurve decodes curve parameters stored as JSON
func ReadCurve(r io.Reader) (Curve, error) {
	var c Curve
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Curve{}, fmt.Errorf("calibration: decode curve: %w", err)
	}
	return c, nil
}

// WriteCurve encodes curve parameters as indented JSON
func WriteCurve(w io.Writer, c Curve) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
