// Package peaks finds peaks in sampled signals, determines their
// boundaries and integrates their area.
//
// Detection follows the usual local maximum definition: a sample (or the
// middle of a flat plateau) that is higher than its neighbours. Candidates
// are then filtered by height, by minimum distance to higher peaks and by
// topographic prominence, in that order.
package peaks

import (
	"math"
	"sort"
)

// Peak describes one detected peak. Indices refer to the input signal.
type Peak struct {
	Apex       int
	Height     float64
	Prominence float64
	// LeftBase and RightBase are the lowest points on either side that
	// bound the prominence computation
	LeftBase  int
	RightBase int
	// LeftIP and RightIP are the interpolated boundary positions, Left
	// and Right the same positions floored and ceiled to sample indices
	LeftIP  float64
	RightIP float64
	Left    int
	Right   int
	Area    float64
	// CorrectedArea is the area above the straight line joining the
	// signal at Left and Right, SNR the apex height above that line
	// divided by the noise next to the peak. Both are only set by
	// Assess.
	CorrectedArea float64
	SNR           float64
}

// Options selects which candidates qualify as peaks. A zero value
// disables the corresponding filter.
type Options struct {
	// Distance is the minimum number of samples between peaks. Lower
	// peaks closer than this to a higher peak are dropped.
	Distance int
	// Height is the minimum signal value at the apex
	Height float64
	// Prominence is the threshold the prominence must exceed
	Prominence float64
}

// Detect returns the peaks of values that pass opts, ordered by apex
// index. The prominence and bases of every returned peak are set. Peaks
// must reach Height and their prominence must exceed Prominence.
func Detect(values []float64, opts Options) []Peak {
	candidates := localMaxima(values)
	if opts.Height != 0 {
		kept := candidates[:0]
		for _, i := range candidates {
			if values[i] >= opts.Height {
				kept = append(kept, i)
			}
		}
		candidates = kept
	}
	if opts.Distance > 1 {
		candidates = selectByDistance(values, candidates, opts.Distance)
	}
	var result []Peak
	for _, i := range candidates {
		p := prominence(values, i)
		if opts.Prominence != 0 && p.Prominence <= opts.Prominence {
			continue
		}
		result = append(result, p)
	}
	return result
}

// localMaxima returns the indices of all local maxima. For flat tops the
// middle sample (rounded down) is returned. The first and last sample
// are never maxima.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	iMax := len(x) - 1
	for i < iMax {
		if x[i-1] < x[i] {
			iAhead := i + 1
			for iAhead < iMax && x[iAhead] == x[i] {
				iAhead++
			}
			if x[iAhead] < x[i] {
				peaks = append(peaks, (i+iAhead-1)/2)
				i = iAhead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance drops peaks that lie closer than distance samples to
// a higher peak. Higher peaks are evaluated first.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})
	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}
	var out []int
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// prominence computes the prominence of the peak at apex: its height
// above the higher of the lowest points reached on either side before
// the signal rises above the apex again.
func prominence(x []float64, apex int) Peak {
	p := Peak{Apex: apex, Height: x[apex], LeftBase: apex, RightBase: apex}

	leftMin := x[apex]
	for i := apex; i >= 0 && x[i] <= x[apex]; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
			p.LeftBase = i
		}
	}
	rightMin := x[apex]
	for i := apex; i < len(x) && x[i] <= x[apex]; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
			p.RightBase = i
		}
	}
	p.Prominence = x[apex] - math.Max(leftMin, rightMin)
	return p
}
