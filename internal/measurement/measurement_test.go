package measurement

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/lcquant/internal/compound"
	"github.com/524D/lcquant/internal/fileio"
	"github.com/524D/lcquant/internal/mzml"
)

func gauss(t, center, height float64) float64 {
	d := (t - center) / 0.05
	return height * math.Exp(-d*d/2)
}

// writeMS writes an mzML file whose ion 100 elutes at 1.5 minutes with
// an intensity proportional to scale
func writeMS(t *testing.T, dir, name string, scale float64) string {
	t.Helper()
	var scans []mzml.Scan
	for i := 0; i <= 300; i++ {
		tm := float64(i) * 0.01
		scans = append(scans, mzml.Scan{
			Time:      tm,
			MSLevel:   1,
			Mz:        []float64{100, 200},
			Intensity: []float64{gauss(tm, 1.5, 1000*scale), 10},
		})
	}
	var b bytes.Buffer
	if err := mzml.Write(&b, mzml.Document{Spectra: scans, Encoding: mzml.Encoding{Bits64: true}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p := filepath.Join(dir, name+".mzML")
	if err := os.WriteFile(p, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// writeLC writes a chromatogram with a peak at 1.5 minutes on a flat
// baseline of 100
func writeLC(t *testing.T, dir, name string) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i <= 300; i++ {
		tm := float64(i) * 0.01
		fmt.Fprintf(&b, "%g,%g\n", tm, 100+gauss(tm, 1.5, 400))
	}
	p := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func targets() []*compound.Compound {
	return []*compound.Compound{compound.New("A", []float64{100}, []string{"A-pos"})}
}

func TestNew(t *testing.T) {
	m := New("/data/STMIX_2mM_run1.mzML.gz", MS)
	if m.Name != "STMIX_2mM_run1" || !m.Calibration || m.Concentration != "2 mM" {
		t.Errorf("New: %+v", m)
	}
	m = New("/data/urine.txt", LC)
	if m.Calibration || m.Concentration != "" || m.Kind != LC {
		t.Errorf("New: %+v", m)
	}
	if MS.String() != "MS" || Kind(7).String() != "Kind(7)" {
		t.Errorf("Kind.String: %q %q", MS.String(), Kind(7).String())
	}
}

func TestLoadMS(t *testing.T) {
	p := writeMS(t, t.TempDir(), "sample", 1)
	tg := targets()
	m, err := LoadMS(p, tg, MSOptions{MassAccuracy: 1e-5, TIC: true}, nil)
	if err != nil {
		t.Fatalf("LoadMS: %v", err)
	}
	r := m.MS.Compounds[0].Ions[100]
	if r.RT == nil || math.Abs(*r.RT-1.5) > 1e-9 {
		t.Errorf("RT: %v, should be 1.5", r.RT)
	}
	if r.PeakArea == nil || *r.PeakArea <= 0 {
		t.Errorf("PeakArea: %v", r.PeakArea)
	}
	if r.MSIntensity == nil || len(r.MSIntensity.Intensity) != 301 {
		t.Errorf("MSIntensity not set")
	}
	if tg[0].Ions[100].RT != nil {
		t.Errorf("LoadMS modified the targets")
	}
	if m.MS.TIC == nil || len(m.MS.TIC.Time) != 301 {
		t.Errorf("TIC: %v", m.MS.TIC)
	}
}

func TestLoadNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.mzML")
	if _, err := LoadMS(missing, targets(), MSOptions{MassAccuracy: 1e-5}, NewCache(0)); !errors.Is(err, fileio.ErrNotFound) {
		t.Errorf("LoadMS: error %v, should wrap ErrNotFound", err)
	}
	if _, err := LoadLC(missing, nil); !errors.Is(err, fileio.ErrNotFound) {
		t.Errorf("LoadLC: error %v, should wrap ErrNotFound", err)
	}
}

func TestLoadLCCached(t *testing.T) {
	p := writeLC(t, t.TempDir(), "sample")
	cache := NewCache(0)
	m, err := LoadLC(p, cache)
	if err != nil {
		t.Fatalf("LoadLC: %v", err)
	}
	pk, ok := m.LC.PeakAt(1.5, 0.03)
	if !ok || pk.Area <= 0 {
		t.Fatalf("PeakAt(1.5): %+v %v, peaks %+v", pk, ok, m.LC.Peaks)
	}
	if s := cache.Stats(); s.Hits != 0 || s.Misses != 3 || s.Size != 3 {
		t.Errorf("cache after first load: %+v", s)
	}
	if _, err := LoadLC(p, cache); err != nil {
		t.Fatalf("LoadLC: %v", err)
	}
	if s := cache.Stats(); s.Hits != 3 {
		t.Errorf("cache after second load: %+v", s)
	}
}

func TestAnnotateLC(t *testing.T) {
	dir := t.TempDir()
	lc, err := LoadLC(writeLC(t, dir, "sample"), nil)
	if err != nil {
		t.Fatalf("LoadLC: %v", err)
	}
	ms, err := LoadMS(writeMS(t, dir, "sample", 1), targets(), MSOptions{MassAccuracy: 1e-5}, nil)
	if err != nil {
		t.Fatalf("LoadMS: %v", err)
	}
	AnnotateLC(lc, ms, 0.03)
	r := ms.MS.Compounds[0].Ions[100]
	if r.LCIntensity == nil || *r.LCIntensity <= 0 {
		t.Errorf("LCIntensity: %v", r.LCIntensity)
	}
	// The LC peak spans most of the XIC peak
	full := 1000 * 0.05 * math.Sqrt(2*math.Pi)
	if r.WindowArea == nil || *r.WindowArea < 0.5*full || *r.WindowArea > 1.01*full {
		t.Errorf("WindowArea: %v, should be a large part of %f", r.WindowArea, full)
	}

	// No LC peak near the retention time
	ms, err = LoadMS(writeMS(t, dir, "sample", 1), targets(), MSOptions{MassAccuracy: 1e-5}, nil)
	if err != nil {
		t.Fatalf("LoadMS: %v", err)
	}
	*ms.MS.Compounds[0].Ions[100].RT = 2.5
	AnnotateLC(lc, ms, 0.03)
	if r := ms.MS.Compounds[0].Ions[100]; r.LCIntensity != nil || r.WindowArea != nil {
		t.Errorf("ion without LC peak annotated: %v %v", r.LCIntensity, r.WindowArea)
	}
}

func TestLabelLC(t *testing.T) {
	lc, err := LoadLC(writeLC(t, t.TempDir(), "sample"), nil)
	if err != nil {
		t.Fatalf("LoadLC: %v", err)
	}
	if len(lc.LC.Peaks) == 0 {
		t.Fatalf("no LC peaks")
	}
	LabelLC(lc, []string{"A"})
	if len(lc.LC.Named) != 1 || lc.LC.Named[0].Name != "A" || lc.LC.Named[0].Apex != lc.LC.Peaks[0].Apex {
		t.Errorf("Named: %+v", lc.LC.Named)
	}
	LabelLC(lc, nil)
	if len(lc.LC.Named) != 0 {
		t.Errorf("Named without names: %+v", lc.LC.Named)
	}
	LabelLC(nil, []string{"A"})
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	for i, s := range []Stage{StageRaw, StageCorrected, StagePeaks} {
		c.Put(Key{ID: "f", Stage: s}, i)
	}
	if _, ok := c.Get(Key{ID: "f", Stage: StageRaw}); ok {
		t.Errorf("oldest entry was not evicted")
	}
	if v, ok := c.Get(Key{ID: "f", Stage: StagePeaks}); !ok || v.(int) != 2 {
		t.Errorf("Get: %v %v", v, ok)
	}
	if s := c.Stats(); s.Evictions != 1 || s.Size != 2 {
		t.Errorf("Stats: %+v", s)
	}
}
