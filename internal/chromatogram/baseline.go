package chromatogram

import (
	"math"
	"sort"
)

// llsIterations is the number of minimum filter passes. The window
// radius grows by one sample per pass.
const llsIterations = 20

// Correct removes the baseline of c with the Log-Log-Square (LLS)
// iterative minimum filter and returns a new chromatogram; c is not
// modified. If c has negative values, the median of the negative values
// is subtracted first and remaining negatives are clipped to zero.
// The result is deterministic for a given input.
func Correct(c Chromatogram) Corrected {
	n := len(c.Value)
	shift := negativeMedian(c.Value)

	clipped := make([]float64, n)
	t := make([]float64, n)
	for i, v := range c.Value {
		v -= shift
		if v < 0 {
			v = 0
		}
		clipped[i] = v
		t[i] = math.Log(math.Log(math.Sqrt(v+1)+1) + 1)
	}

	for i := 1; i <= llsIterations; i++ {
		next := make([]float64, n)
		copy(next, t)
		for j := i; j < n-i; j++ {
			next[j] = math.Min(next[j], 0.5*(next[j+i]+next[j-i]))
		}
		t = next
	}

	out := Corrected{
		Chromatogram: Chromatogram{
			Time:  append([]float64(nil), c.Time...),
			Value: make([]float64, n),
		},
		Baseline:    make([]float64, n),
		Uncorrected: clipped,
	}
	for j, v := range t {
		e := math.Exp(math.Exp(v)-1) - 1
		inv := e*e - 1
		out.Baseline[j] = inv + shift
		out.Value[j] = round(clipped[j]-inv, 9)
	}
	return out
}

// negativeMedian returns the median of the negative values of v, or 0
// when there are none
func negativeMedian(v []float64) float64 {
	var neg []float64
	for _, x := range v {
		if x < 0 {
			neg = append(neg, x)
		}
	}
	if len(neg) == 0 {
		return 0
	}
	sort.Float64s(neg)
	m := len(neg) / 2
	if len(neg)%2 == 1 {
		return neg[m]
	}
	return 0.5 * (neg[m-1] + neg[m])
}

func round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
