package peaks

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Boundary fractions of the prominence used for integration
const (
	RelHeightLC    = 0.9
	RelHeightNamed = 0.5
)

// noiseStats returns the population standard deviation of v, the
// standard deviation of the values at or below the 25th percentile, and
// the 10th percentile of v
func noiseStats(v []float64) (std, noise, p10 float64) {
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	std = stat.PopStdDev(v, nil)
	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p25 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	var low []float64
	for _, x := range sorted {
		if x > p25 {
			break
		}
		low = append(low, x)
	}
	if len(low) > 1 {
		noise = stat.PopStdDev(low, nil)
	}
	return std, noise, p10
}

// DetectLC finds the peaks of a baseline corrected LC trace with
// thresholds derived from the signal itself, and integrates each peak
// between the points where it drops to 10% of its prominence.
// Peaks narrower than two samples at half prominence are ignored.
func DetectLC(time, values []float64) []Peak {
	if len(values) < 3 {
		return nil
	}
	std, noise, p10 := noiseStats(values)
	maxV := floats.Max(values)
	prom := math.Max(math.Max(5.0, 4*noise), math.Max(2*std, 0.005*(maxV-p10)))
	height := p10 + 3*noise

	found := Detect(values, Options{Distance: 3, Height: height, Prominence: prom})

	// Minimum width, measured at half prominence
	half := append([]Peak(nil), found...)
	Widths(values, half, RelHeightNamed)
	var result []Peak
	for i := range found {
		if half[i].RightIP-half[i].LeftIP >= 2 {
			result = append(result, found[i])
		}
	}
	Widths(values, result, RelHeightLC)
	IntegrateAll(time, values, result)
	return result
}

// AreaNear locates the peak of a trace closest to target on the x axis,
// integrates it and assesses it. When no peak passes the adaptive
// thresholds the global maximum is used. ok is false for traces that are
// too short or entirely flat, and when the global maximum has no
// prominence because it sits at either end of the trace.
func AreaNear(x, y []float64, target float64) (Peak, bool) {
	if len(y) < 3 || floats.Max(y) <= floats.Min(y) {
		return Peak{}, false
	}
	std := stat.PopStdDev(y, nil)
	maxV := floats.Max(y)
	found := Detect(y, Options{
		Distance:   3,
		Height:     2 * std,
		Prominence: math.Max(3*std, 0.005*maxV),
	})
	var p Peak
	if len(found) == 0 {
		p = prominence(y, floats.MaxIdx(y))
		if p.Prominence <= 0 {
			return Peak{}, false
		}
	} else {
		best := 0
		for i := range found {
			if math.Abs(x[found[i].Apex]-target) < math.Abs(x[found[best].Apex]-target) {
				best = i
			}
		}
		p = found[best]
	}
	ps := []Peak{p}
	Widths(y, ps, RelHeightLC)
	IntegrateAll(x, y, ps)
	Assess(x, y, ps)
	return ps[0], true
}

// Nearest returns the first peak whose apex lies within tolerance of
// target on the x axis
func Nearest(x []float64, peaks []Peak, target, tolerance float64) (Peak, bool) {
	for _, p := range peaks {
		if math.Abs(x[p.Apex]-target) <= tolerance {
			return p, true
		}
	}
	return Peak{}, false
}
