package fileio

import (
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ulikunitz/xz"
)

const payload = "0.0,10\n0.01,12\n"

func readAll(t *testing.T, path string) string {
	t.Helper()
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll %s: %v", path, err)
	}
	return string(b)
}

func TestOpenPlain(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lc.txt")
	if err := os.WriteFile(p, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, p); got != payload {
		t.Errorf("Open plain: got %q, want %q", got, payload)
	}
}

func TestOpenGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lc.txt.gz")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	z := gzip.NewWriter(f)
	z.Write([]byte(payload))
	z.Close()
	f.Close()
	if got := readAll(t, p); got != payload {
		t.Errorf("Open gzip: got %q, want %q", got, payload)
	}
}

func TestOpenXz(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lc.txt.xz")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	z, err := xz.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	z.Write([]byte(payload))
	z.Close()
	f.Close()
	if got := readAll(t, p); got != payload {
		t.Errorf("Open xz: got %q, want %q", got, payload)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.txt"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing: error %v, should wrap ErrNotFound", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open missing: error %v, should wrap fs.ErrNotExist", err)
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"/data/STMIX_10mM.mzML":    "STMIX_10mM",
		"/data/STMIX_10mM.mzML.gz": "STMIX_10mM",
		"sample.txt.xz":            "sample",
		"plain":                    "plain",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIdentify(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.mzML")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	id1, err := Identify(p)
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := Identify(p)
	if id1 != id2 {
		t.Errorf("Identify not stable: %s != %s", id1, id2)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(p, later, later); err != nil {
		t.Fatal(err)
	}
	id3, _ := Identify(p)
	if id3 == id1 {
		t.Errorf("Identify did not change after modification time changed")
	}
	if _, err := Identify(filepath.Join(t.TempDir(), "none")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Identify missing: error %v, should wrap ErrNotFound", err)
	}
}
