package peaks

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// Widths sets the boundaries of each peak to the positions where the
// signal falls to Height - Prominence*relHeight, interpolated linearly
// between samples and limited to the peak's bases. The integer bounds
// are the interpolated positions floored (left) and ceiled (right),
// clamped to the signal.
func Widths(values []float64, peaks []Peak, relHeight float64) {
	for n := range peaks {
		p := &peaks[n]
		height := values[p.Apex] - p.Prominence*relHeight

		i := p.Apex
		for p.LeftBase < i && height < values[i] {
			i--
		}
		p.LeftIP = float64(i)
		if values[i] < height {
			p.LeftIP += (height - values[i]) / (values[i+1] - values[i])
		}

		i = p.Apex
		for i < p.RightBase && height < values[i] {
			i++
		}
		p.RightIP = float64(i)
		if values[i] < height {
			p.RightIP -= (height - values[i]) / (values[i-1] - values[i])
		}

		p.Left = int(math.Floor(p.LeftIP))
		if p.Left < 0 {
			p.Left = 0
		}
		p.Right = int(math.Ceil(p.RightIP))
		if p.Right > len(values)-1 {
			p.Right = len(values) - 1
		}
	}
}

// Integrate returns the trapezoidal area of y over x between the sample
// indices left and right, both inclusive. Empty or single point ranges
// have zero area.
func Integrate(x, y []float64, left, right int) float64 {
	if left < 0 {
		left = 0
	}
	if right > len(y)-1 {
		right = len(y) - 1
	}
	if right-left < 1 {
		return 0
	}
	xs, ys := x[left:right+1], y[left:right+1]
	if !sort.Float64sAreSorted(xs) {
		// integrate.Trapezoidal requires ascending x
		var area float64
		for i := 1; i < len(xs); i++ {
			area += 0.5 * (xs[i] - xs[i-1]) * (ys[i] + ys[i-1])
		}
		return area
	}
	return integrate.Trapezoidal(xs, ys)
}

// IntegrateAll computes the area of every peak between its integer bounds
func IntegrateAll(x, y []float64, peaks []Peak) {
	for n := range peaks {
		peaks[n].Area = Integrate(x, y, peaks[n].Left, peaks[n].Right)
	}
}

// Named is a peak assigned to a compound name
type Named struct {
	Name string
	Peak
}

// MatchNames pairs peaks with names in order. Only the first
// min(len(peaks), len(names)) pairs are returned; surplus peaks or
// names stay unassigned.
func MatchNames(peaks []Peak, names []string) []Named {
	n := len(peaks)
	if len(names) < n {
		n = len(names)
	}
	out := make([]Named, n)
	for i := 0; i < n; i++ {
		out[i] = Named{Name: names[i], Peak: peaks[i]}
	}
	return out
}
