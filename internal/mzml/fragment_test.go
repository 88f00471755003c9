package mzml

import (
	"testing"
)

func fragmentDoc() Document {
	return Document{
		Spectra: []Scan{
			{Time: 1.0, MSLevel: 1, Mz: []float64{100}, Intensity: []float64{1}},
			{ID: "a", Time: 1.2, MSLevel: 2, PrecursorMz: 300.1, Mz: []float64{50}, Intensity: []float64{1}},
			{ID: "b", Time: 1.45, MSLevel: 2, PrecursorMz: 300.1, Mz: []float64{60}, Intensity: []float64{1}},
			{ID: "c", Time: 1.55, MSLevel: 2, PrecursorMz: 300.1, Mz: []float64{70}, Intensity: []float64{1}},
			{ID: "d", Time: 1.5, MSLevel: 2, PrecursorMz: 450.0, Mz: []float64{80}, Intensity: []float64{1}},
		},
		Encoding: Encoding{Zlib: true},
	}
}

func TestFindNearestFragmentScan(t *testing.T) {
	p := writeTestFile(t, fragmentDoc())

	sc, err := FindNearestFragmentScan(p, 300.1, 1.5, 0.01, 0.5)
	if err != nil {
		t.Fatalf("FindNearestFragmentScan: error return %v", err)
	}
	if sc == nil {
		t.Fatalf("FindNearestFragmentScan: nil, should find a scan")
	}
	// "b" and "c" are both 0.05 away, the first one seen wins; "d" is
	// closer in time but has the wrong precursor
	if sc.ID != "b" {
		t.Errorf("FindNearestFragmentScan: scan %s, should be b", sc.ID)
	}
	if len(sc.Mz) != 1 || sc.Mz[0] != 60 {
		t.Errorf("FindNearestFragmentScan: peaks %v not decoded", sc.Mz)
	}
}

func TestFindNearestFragmentScanNone(t *testing.T) {
	p := writeTestFile(t, fragmentDoc())

	sc, err := FindNearestFragmentScan(p, 300.1, 5.0, 0.01, 0.5)
	if err != nil {
		t.Fatalf("FindNearestFragmentScan: error return %v", err)
	}
	if sc != nil {
		t.Errorf("FindNearestFragmentScan: %s, should be nil outside the time window", sc.ID)
	}
	sc, _ = FindNearestFragmentScan(p, 999.0, 1.5, 0.01, 0.5)
	if sc != nil {
		t.Errorf("FindNearestFragmentScan: %s, should be nil for an unknown precursor", sc.ID)
	}
}
