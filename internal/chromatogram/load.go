package chromatogram

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/524D/lcquant/internal/fileio"
)

// ErrNoDelimiter means none of the inspected lines contains a comma, tab or space
var ErrNoDelimiter = errors.New("chromatogram: no recognizable delimiter")

// headLines is the number of leading lines inspected for the delimiter
const headLines = 5

// Load reads a chromatogram text file. It fails with an error wrapping
// ErrNotFound if path does not exist.
func Load(path string) (Chromatogram, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return Chromatogram{}, err
	}
	defer f.Close()
	log := slog.Default().With(slog.String("component", "chromatogram"), slog.String("file", path))
	return parse(f, log)
}

// Parse reads a chromatogram from delimited text. The delimiter (comma,
// tab or space) is detected from the first lines. The first field of a
// row is the time, the last the intensity. Rows with fewer than two
// fields or non-numeric values are skipped.
func Parse(r io.Reader) (Chromatogram, error) {
	return parse(r, slog.Default().With(slog.String("component", "chromatogram")))
}

func parse(r io.Reader, log *slog.Logger) (Chromatogram, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var head []string
	for len(head) < headLines && sc.Scan() {
		head = append(head, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Chromatogram{}, err
	}
	delim, seen := detectDelimiter(head)
	if delim == 0 {
		return Chromatogram{}, ErrNoDelimiter
	}
	if len(seen) > 1 {
		log.Warn("multiple delimiters in file header, using first",
			slog.String("delimiter", strconv.QuoteRune(delim)),
			slog.Int("distinct", len(seen)))
	}

	var c Chromatogram
	skipped := 0
	add := func(line string) {
		t, v, ok := parseRow(line, delim)
		if !ok {
			skipped++
			return
		}
		c.Time = append(c.Time, t)
		c.Value = append(c.Value, v)
	}
	for _, line := range head {
		add(line)
	}
	for sc.Scan() {
		add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Chromatogram{}, err
	}
	if skipped > 0 {
		log.Debug("skipped rows", slog.Int("rows", skipped))
	}
	return c, nil
}

// detectDelimiter returns the delimiter of the first inspected line that has
// one, and the set of distinct delimiters over all inspected lines. Per line
// a comma wins over a tab, and a tab over a space.
func detectDelimiter(lines []string) (rune, map[rune]bool) {
	var delim rune
	seen := make(map[rune]bool)
	for _, line := range lines {
		d := lineDelimiter(strings.TrimSpace(line))
		if d == 0 {
			continue
		}
		seen[d] = true
		if delim == 0 {
			delim = d
		}
	}
	return delim, seen
}

func lineDelimiter(line string) rune {
	for _, d := range []rune{',', '\t', ' '} {
		if strings.ContainsRune(line, d) {
			return d
		}
	}
	return 0
}

func parseRow(line string, delim rune) (float64, float64, bool) {
	var fields []string
	if delim == ' ' {
		fields = strings.Fields(line)
	} else {
		fields = strings.Split(strings.TrimSpace(line), string(delim))
	}
	if len(fields) < 2 {
		return 0, 0, false
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[len(fields)-1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0, false
	}
	return t, v, true
}
