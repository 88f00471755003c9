package mzml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractTICEmbedded(t *testing.T) {
	// The embedded chromatogram deliberately differs from the spectra
	// so that the fast path can be told apart from the fallback
	doc := Document{
		Spectra: testScans(),
		Chromatograms: []Trace{
			{ID: "BPC", Time: []float64{9}, Intensity: []float64{9}},
			{ID: "TIC", Time: []float64{1, 2, 3}, Intensity: []float64{10, 20, 30}},
		},
		Encoding: Encoding{Zlib: true, Bits64: true},
	}
	p := writeTestFile(t, doc)
	tic, ok, err := ExtractTIC(p)
	if err != nil {
		t.Fatalf("ExtractTIC: error return %v", err)
	}
	if !ok {
		t.Fatalf("ExtractTIC: ok false")
	}
	want := Trace{ID: "TIC", Time: []float64{1, 2, 3}, Intensity: []float64{10, 20, 30}}
	if diff := cmp.Diff(want, tic); diff != "" {
		t.Errorf("TIC mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTICFallback(t *testing.T) {
	p := writeTestFile(t, Document{Spectra: testScans(), Encoding: Encoding{Bits64: true}})
	tic, ok, err := ExtractTIC(p)
	if err != nil {
		t.Fatalf("ExtractTIC: error return %v", err)
	}
	if !ok {
		t.Fatalf("ExtractTIC: ok false")
	}
	// Only MS1 spectra with peaks contribute
	want := Trace{ID: "TIC", Time: []float64{0.5, 0.8}, Intensity: []float64{600, 75}}
	if diff := cmp.Diff(want, tic); diff != "" {
		t.Errorf("TIC mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTICEmpty(t *testing.T) {
	p := writeTestFile(t, Document{})
	_, ok, err := ExtractTIC(p)
	if err != nil {
		t.Fatalf("ExtractTIC: error return %v", err)
	}
	if ok {
		t.Errorf("ExtractTIC: ok true for a file without spectra")
	}
}
