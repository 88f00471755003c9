package peaks

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// noiseSpan is the number of samples on either side of a peak used to
// estimate the noise
const noiseSpan = 20

// linearBaseline returns the value at index i of the straight line
// through (left, y[left]) and (right, y[right])
func linearBaseline(y []float64, left, right, i int) float64 {
	if right <= left {
		return y[left]
	}
	return y[left] + (y[right]-y[left])*float64(i-left)/float64(right-left)
}

// CorrectedArea returns the trapezoidal area of y over x between the
// sample indices left and right, both inclusive, above the straight line
// joining y[left] and y[right]
func CorrectedArea(x, y []float64, left, right int) float64 {
	if left < 0 {
		left = 0
	}
	if right > len(y)-1 {
		right = len(y) - 1
	}
	if right-left < 1 {
		return 0
	}
	c := make([]float64, right-left+1)
	for i := range c {
		c[i] = y[left+i] - linearBaseline(y, left, right, left+i)
	}
	return Integrate(x[left:right+1], c, 0, len(c)-1)
}

// signalToNoise divides the height of the apex above the linear baseline
// by the noise. The noise is the standard deviation of up to noiseSpan
// samples on either side of the peak, at least 1% of their mean. Without
// such samples it is estimated from the low positive values of the whole
// signal.
func signalToNoise(y []float64, p Peak) float64 {
	signal := y[p.Apex] - linearBaseline(y, p.Left, p.Right, p.Apex)

	var region []float64
	region = append(region, y[max(0, p.Left-noiseSpan):p.Left]...)
	region = append(region, y[p.Right:min(len(y), p.Right+noiseSpan)]...)

	var noise float64
	if len(region) > 0 {
		noise = math.Max(stat.PopStdDev(region, nil), 0.01*stat.Mean(region, nil))
	} else {
		var pos []float64
		for _, v := range y {
			if v > 0 {
				pos = append(pos, v)
			}
		}
		if len(pos) > 10 {
			sort.Float64s(pos)
			p20 := stat.Quantile(0.20, stat.Empirical, pos, nil)
			var low []float64
			for _, v := range pos {
				if v > p20 {
					break
				}
				low = append(low, v)
			}
			noise = math.Max(stat.PopStdDev(low, nil), 0.1*stat.Quantile(0.05, stat.Empirical, pos, nil))
		} else {
			noise = math.Max(1, 0.01*y[p.Apex])
		}
	}
	if noise <= 0 {
		return 0
	}
	return signal / noise
}

// Assess sets the baseline corrected area and the signal to noise ratio
// of peaks whose bounds are already set
func Assess(x, y []float64, peaks []Peak) {
	for n := range peaks {
		p := &peaks[n]
		p.CorrectedArea = CorrectedArea(x, y, p.Left, p.Right)
		p.SNR = signalToNoise(y, *p)
	}
}
