package measurement

import (
	"errors"
	"math"
	"testing"

	"github.com/524D/lcquant/internal/calibration"
)

func TestCalibrateCompounds(t *testing.T) {
	dir := t.TempDir()
	tg := targets()
	ms := make(map[string]*Measurement)
	for name, scale := range map[string]float64{
		"STMIX_1mM": 1,
		"STMIX_2mM": 2,
		"STMIX_4mM": 4,
		"sample":    3,
	} {
		m, err := LoadMS(writeMS(t, dir, name, scale), tg, MSOptions{MassAccuracy: 1e-5}, nil)
		if err != nil {
			t.Fatalf("LoadMS %s: %v", name, err)
		}
		ms[m.Name] = m
	}
	std := Standards(ms)
	if len(std) != 3 || std["STMIX_4mM"] != "4 mM" {
		t.Fatalf("Standards: %v", std)
	}
	if err := CalibrateCompounds(tg, std, ms, false, false); err != nil {
		t.Fatalf("CalibrateCompounds: %v", err)
	}
	curve := tg[0].Curve
	if curve == nil || !curve.UsePeakArea || curve.RSquared < calibration.MinRSquared {
		t.Fatalf("curve: %+v", curve)
	}
	if len(tg[0].Calibration) != 3 {
		t.Errorf("calibration points: %v", tg[0].Calibration)
	}
	for name, want := range map[string]float64{"sample": 3, "STMIX_2mM": 2} {
		got := ms[name].MS.Compounds[0].Concentration
		if got == nil || math.Abs(*got-want) > 1e-5 {
			t.Errorf("%s: concentration %v, should be %f", name, got, want)
		}
	}
}

func TestCalibrateCompoundsTooFew(t *testing.T) {
	dir := t.TempDir()
	tg := targets()
	m, err := LoadMS(writeMS(t, dir, "STMIX_1mM", 1), tg, MSOptions{MassAccuracy: 1e-5}, nil)
	if err != nil {
		t.Fatalf("LoadMS: %v", err)
	}
	ms := map[string]*Measurement{m.Name: m}
	err = CalibrateCompounds(tg, Standards(ms), ms, false, false)
	if !errors.Is(err, calibration.ErrTooFewPoints) {
		t.Errorf("CalibrateCompounds: error %v, should be ErrTooFewPoints", err)
	}
	if tg[0].Curve != nil || m.MS.Compounds[0].Concentration != nil {
		t.Errorf("uncalibrated compound got a curve or concentration")
	}
	if err := CalibrateCompounds(tg, nil, ms, false, false); !errors.Is(err, ErrNoCalibrationFiles) {
		t.Errorf("CalibrateCompounds: error %v, should be ErrNoCalibrationFiles", err)
	}
}
