package chromatogram

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func synthetic(n int, base float64, apex int, height float64) Chromatogram {
	c := Chromatogram{Time: make([]float64, n), Value: make([]float64, n)}
	for i := range c.Time {
		c.Time[i] = float64(i) * 0.01
		c.Value[i] = base
	}
	c.Value[apex-1] += height / 2
	c.Value[apex] += height
	c.Value[apex+1] += height / 2
	return c
}

func TestCorrectDeterministic(t *testing.T) {
	c := synthetic(101, 100, 50, 400)
	for i := range c.Value {
		c.Value[i] += 5 * math.Sin(float64(i)/7)
	}
	a := Correct(c)
	b := Correct(c)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Correct not deterministic (-first +second):\n%s", diff)
	}
}

func TestCorrectDoesNotModifyInput(t *testing.T) {
	c := synthetic(41, -3, 20, 50)
	orig := append([]float64(nil), c.Value...)
	Correct(c)
	if diff := cmp.Diff(orig, c.Value); diff != "" {
		t.Errorf("Correct modified its input (-want +got):\n%s", diff)
	}
}

func TestCorrectFlatPeak(t *testing.T) {
	c := synthetic(101, 100, 50, 400)
	got := Correct(c)
	if got.Len() != c.Len() || len(got.Baseline) != c.Len() || len(got.Uncorrected) != c.Len() {
		t.Fatalf("Correct: lengths %d/%d/%d, should be %d",
			got.Len(), len(got.Baseline), len(got.Uncorrected), c.Len())
	}
	if math.Abs(got.Value[50]-400) > 1e-6 {
		t.Errorf("corrected apex: %f, should be 400", got.Value[50])
	}
	if math.Abs(got.Baseline[50]-100) > 1e-6 {
		t.Errorf("baseline at apex: %f, should be 100", got.Baseline[50])
	}
	for _, j := range []int{0, 10, 90, 100} {
		if math.Abs(got.Value[j]) > 1e-6 {
			t.Errorf("corrected value at %d: %f, should be 0", j, got.Value[j])
		}
	}
}

func TestCorrectNegativeShift(t *testing.T) {
	c := Chromatogram{
		Time:  []float64{0, 1, 2, 3, 4},
		Value: []float64{-2, -4, 10, -6, 1},
	}
	got := Correct(c)
	// Median of the negative values is -4
	want := []float64{2, 0, 14, 0, 5}
	if diff := cmp.Diff(want, got.Uncorrected); diff != "" {
		t.Errorf("Uncorrected mismatch (-want +got):\n%s", diff)
	}
	// Boundary points are never lowered, so the baseline there is the
	// shifted input plus the shift
	if math.Abs(got.Baseline[0]-(-2)) > 1e-9 {
		t.Errorf("Baseline[0]: %f, should be -2", got.Baseline[0])
	}
	if got.Value[0] != 0 {
		t.Errorf("Value[0]: %f, should be 0", got.Value[0])
	}
}

func TestNegativeMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{1, 2, 3}, 0},
		{[]float64{-1, 5, -3, -2}, -2},
		{[]float64{-1, -3, 4}, -2},
	}
	for _, tc := range tests {
		if got := negativeMedian(tc.in); got != tc.want {
			t.Errorf("negativeMedian(%v) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
