package calibration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrBadConcentration means a concentration string has no numeric value
var ErrBadConcentration = errors.New("calibration: invalid concentration")

// calibrationMarker in a file name flags the file as a calibration standard
const calibrationMarker = "STMIX"

// unitFactors convert a molar unit prefix to millimolar
var unitFactors = map[string]float64{
	"m":  1e3,
	"mm": 1,
	"um": 1e-3,
	"nm": 1e-9,
	"pm": 1e-12,
}

var (
	concentrationRE = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*([A-Za-z]*)\s*$`)
	// A number, an optional separator and a unit such as mM or uM
	fileConcentrationRE = regexp.MustCompile(`(\d+(?:\.\d+)?).?_*([a-z][A-Z]{1,3})`)
)

// ParseConcentration converts strings like "10 uM" or "0.5mM" to mM.
// A missing or unknown unit is taken as mM.
func ParseConcentration(s string) (float64, error) {
	m := concentrationRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrBadConcentration, s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadConcentration, s)
	}
	if f, ok := unitFactors[strings.ToLower(m[2])]; ok {
		v *= f
	}
	return v, nil
}

// ConcentrationFromName extracts a concentration such as "10mM" or
// "2.5_uM" from a file name and returns it in the "value unit" form
// ParseConcentration accepts
func ConcentrationFromName(name string) (string, bool) {
	m := fileConcentrationRE.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1] + " " + m[2], true
}

// IsCalibrationFile reports whether a file name marks a calibration standard
func IsCalibrationFile(name string) bool {
	return strings.Contains(name, calibrationMarker)
}
