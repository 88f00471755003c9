// Package chromatogram loads LC detector traces from delimited text files
// and removes their baseline.
package chromatogram

import "github.com/524D/lcquant/internal/fileio"

// ErrNotFound means the chromatogram file does not exist
var ErrNotFound = fileio.ErrNotFound

// Chromatogram is a detector trace. Time and Value have equal length.
type Chromatogram struct {
	Time  []float64
	Value []float64
}

// Len returns the number of points
func (c Chromatogram) Len() int {
	return len(c.Time)
}

// Corrected is a baseline corrected chromatogram. Value holds the
// corrected signal, Uncorrected the shifted and clipped input signal
// and Baseline the estimated background including the shift.
type Corrected struct {
	Chromatogram
	Baseline    []float64
	Uncorrected []float64
}
