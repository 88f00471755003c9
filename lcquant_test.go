package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/lcquant/internal/calibration"
	"github.com/524D/lcquant/internal/mzml"

	"github.com/google/go-cmp/cmp"
)

// run executes the root command with args and returns its standard output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyPaths(t *testing.T) {
	lc, ms := classifyPaths([]string{
		"a.txt", "b.mzML", "c.mzml.gz", "d.MZML.xz", "e.csv", "mzml.txt",
	})
	if diff := cmp.Diff([]string{"a.txt", "e.csv", "mzml.txt"}, lc); diff != "" {
		t.Errorf("LC files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b.mzML", "c.mzml.gz", "d.MZML.xz"}, ms); diff != "" {
		t.Errorf("MS files mismatch (-want +got):\n%s", diff)
	}
}

func TestSafeName(t *testing.T) {
	if got := safeName("1,3-dimethyl/xanthine: A"); got != "1,3-dimethyl_xanthine__A" {
		t.Errorf("safeName: %q", got)
	}
}

func TestParseSignals(t *testing.T) {
	got, err := parseSignals([]string{"1", "2.5", "1e3"})
	if err != nil {
		t.Fatalf("parseSignals: %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2.5, 1000}, got); diff != "" {
		t.Errorf("parseSignals mismatch (-want +got):\n%s", diff)
	}
	if _, err := parseSignals([]string{"1", "x"}); err == nil {
		t.Errorf("parseSignals: no error for a non-numeric signal")
	}
}

func TestConcentrationCmd(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "caffeine.json")
	f, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	if err := calibration.WriteCurve(f, calibration.Curve{Slope: 2, Intercept: 10, RSquared: 1}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := run(t, "concentration", "--curve", fn, "30", "5")
	if err != nil {
		t.Fatalf("concentration: %v", err)
	}
	if out != "30\t10\n5\t0\n" {
		t.Errorf("concentration output %q", out)
	}

	if _, err := run(t, "concentration", "--curve", filepath.Join(t.TempDir(), "missing.json"), "1"); err == nil {
		t.Errorf("concentration: no error for a missing curve file")
	}
}

func TestConfigCmd(t *testing.T) {
	out, err := run(t, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"batch_size: 5", "executor: pool", "mode: LC/GC-MS"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output lacks %q:\n%s", want, out)
		}
	}
}

func TestProcessLCOnly(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i <= 300; i++ {
		tm := float64(i) * 0.01
		d := (tm - 1.5) / 0.05
		fmt.Fprintf(&b, "%g\t%g\n", tm, 100+400*math.Exp(-d*d/2))
	}
	lc := filepath.Join(dir, "sample1.txt")
	if err := os.WriteFile(lc, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	outFile := filepath.Join(dir, "results.json")

	if _, err := run(t, "process", "--mode", "LC/GC Only", "-q", "-o", outFile, lc); err != nil {
		t.Fatalf("process: %v", err)
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if rep.Version != outputFormatVersion || rep.RunID == "" {
		t.Errorf("report header: %q %q", rep.Version, rep.RunID)
	}
	if len(rep.Samples) != 1 || rep.Samples[0].Name != "sample1" {
		t.Fatalf("samples: %+v", rep.Samples)
	}
	found := false
	for _, p := range rep.Samples[0].LCPeaks {
		if math.Abs(p.RT-1.5) < 0.02 && p.Area > 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("no LC peak at 1.5 min: %+v", rep.Samples[0].LCPeaks)
	}
}

// writeMS writes an mzML file whose ion 100 elutes at 1.5 minutes with
// an intensity proportional to scale
func writeMS(t *testing.T, dir, name string, scale float64) string {
	t.Helper()
	var scans []mzml.Scan
	for i := 0; i <= 300; i++ {
		tm := float64(i) * 0.01
		d := (tm - 1.5) / 0.05
		scans = append(scans, mzml.Scan{
			Time:      tm,
			MSLevel:   1,
			Mz:        []float64{100, 200},
			Intensity: []float64{1000 * scale * math.Exp(-d*d/2), 10},
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
		d := (tm - 1.5) / 0.05
		fmt.Fprintf(&b, "%g,%g\n", tm, 100+400*math.Exp(-d*d/2))
	}
	p := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProcessMS(t *testing.T) {
	dir := t.TempDir()
	args := []string{"process", "--mode", "LC/GC-MS", "-q"}
	for name, scale := range map[string]float64{
		"STMIX_1mM": 1,
		"STMIX_2mM": 2,
		"STMIX_4mM": 4,
		"sample":    3,
	} {
		args = append(args, writeMS(t, dir, name, scale))
	}
	lc := writeLC(t, dir, "sample")
	tg := filepath.Join(dir, "targets.json")
	if err := os.WriteFile(tg, []byte(`{"A": {"ions": [100], "info": ["A-pos"]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	args = append(args, "-t", tg, lc)

	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if len(rep.Compounds) != 1 || rep.Compounds[0].Curve == nil || len(rep.Compounds[0].Calibration) != 3 {
		t.Fatalf("compounds: %+v", rep.Compounds)
	}
	if !rep.Compounds[0].Curve.UsePeakArea {
		t.Errorf("curve not fitted on peak areas: %+v", rep.Compounds[0].Curve)
	}

	var sample *sampleReport
	for i := range rep.Samples {
		if rep.Samples[i].Name == "sample" {
			sample = &rep.Samples[i]
		}
	}
	if sample == nil || sample.LCFile != lc || len(sample.Compounds) != 1 {
		t.Fatalf("sample: %+v", sample)
	}
	if len(sample.LCPeaks) == 0 || sample.LCPeaks[0].Name != "A" {
		t.Errorf("LC peaks not labelled: %+v", sample.LCPeaks)
	}
	c := sample.Compounds[0]
	if c.Concentration == nil || math.Abs(*c.Concentration-3) > 1e-3 {
		t.Errorf("concentration: %v, should be 3", c.Concentration)
	}
	ion := c.Ions[0]
	if ion.LCIntensity == nil || ion.WindowArea == nil {
		t.Errorf("ion not annotated with the LC peak: %+v", ion)
	}
	if ion.CorrectedArea == nil || ion.SNR == nil || *ion.SNR <= 0 {
		t.Errorf("ion lacks peak quality: %+v", ion)
	}
}

func TestProcessOutputError(t *testing.T) {
	dir := t.TempDir()
	lc := writeLC(t, dir, "sample1")
	outFile := filepath.Join(dir, "missing", "results.json")
	if _, err := run(t, "process", "--mode", "LC/GC Only", "-q", "-o", outFile, lc); err == nil {
		t.Errorf("process: no error for an output file in a missing directory")
	}
}

func TestProcessErrors(t *testing.T) {
	if _, err := run(t, "process", "--mode", "LC/GC Only"); err == nil {
		t.Errorf("process: no error without input files")
	}
	if _, err := run(t, "process", "--mode", "MS Only", "x.mzML"); err == nil {
		t.Errorf("process: no error without targets")
	}
	if _, err := run(t, "process", "--mode", "bogus", "x.txt"); err == nil {
		t.Errorf("process: no error for an invalid mode")
	}
}

func TestFragmentCmdNoScan(t *testing.T) {
	_, err := run(t, "fragment", "--rt", "1", filepath.Join(t.TempDir(), "x.mzML"))
	if err == nil {
		t.Errorf("fragment: no error without --mz")
	}
	if errors.Is(err, ErrNoData) {
		t.Errorf("fragment: missing flag reported as %v", err)
	}
}
