package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/524D/lcquant/internal/fileio"
)

// Reader streams the spectra of an mzML file one at a time. Only the
// current spectrum is held in memory; it is released when Next advances.
// A Reader is not restartable, open the file again to re-read it.
type Reader struct {
	d       *xml.Decoder
	closer  io.Closer
	groups  map[string][]CVParam
	log     *slog.Logger
	scan    *Scan
	err     error
	done    bool
	skipped int
}

// NewReader returns a Reader that decodes spectra from r
func NewReader(r io.Reader) *Reader {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return &Reader{
		d:      d,
		groups: make(map[string][]CVParam),
		log:    slog.Default().With(slog.String("component", "mzml")),
	}
}

// Open opens an mzML file (optionally .gz or .xz compressed) for streaming.
// The returned Reader must be closed by the caller.
func Open(path string) (*Reader, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.closer = f
	r.log = r.log.With(slog.String("file", path))
	return r, nil
}

// Close releases the underlying file, if the Reader owns one
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Next advances to the next spectrum that has both m/z and intensity
// values. Spectra with empty or undecodable arrays are logged and skipped.
// Next returns false at the end of the file or on a read error.
func (r *Reader) Next() bool {
	r.scan = nil
	for {
		s, ok := r.nextSpectrum()
		if !ok {
			return false
		}
		sc := r.header(s)
		if err := r.decodeArrays(s, sc); err != nil {
			r.skipped++
			r.log.Warn("skipping spectrum", slog.String("id", s.ID), slog.Any("error", err))
			continue
		}
		if len(sc.Mz) == 0 || len(sc.Intensity) == 0 {
			r.skipped++
			r.log.Debug("skipping spectrum without peaks", slog.String("id", s.ID))
			continue
		}
		r.scan = sc
		return true
	}
}

// Scan returns the spectrum read by the last successful call to Next
func (r *Reader) Scan() *Scan {
	return r.scan
}

// Err returns the first non-EOF error encountered while reading
func (r *Reader) Err() error {
	return r.err
}

// Skipped returns the number of spectra skipped so far
func (r *Reader) Skipped() int {
	return r.skipped
}

// nextSpectrum decodes the XML of the next spectrum element without
// touching its binary payload. Parameter groups are collected on the way,
// the chromatogram list is skipped.
func (r *Reader) nextSpectrum() (*spectrum, bool) {
	if r.done {
		return nil, false
	}
	for {
		t, err := r.d.Token()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			r.done = true
			return nil, false
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "referenceableParamGroup":
			var g referenceableParamGroup
			if err := r.d.DecodeElement(&g, &se); err != nil {
				r.err = err
				r.done = true
				return nil, false
			}
			r.groups[g.ID] = g.CvPar
		case "chromatogramList":
			if err := r.d.Skip(); err != nil {
				r.err = err
				r.done = true
				return nil, false
			}
		case "spectrum":
			s := new(spectrum)
			if err := r.d.DecodeElement(s, &se); err != nil {
				r.err = err
				r.done = true
				return nil, false
			}
			return s, true
		}
	}
}

// params returns the CV terms of an element, including those of
// referenced parameter groups
func (r *Reader) params(refs []paramGroupRef, own []CVParam) []CVParam {
	if len(refs) == 0 {
		return own
	}
	var all []CVParam
	for _, ref := range refs {
		all = append(all, r.groups[ref.Ref]...)
	}
	return append(all, own...)
}

// header fills the cheap, non-binary fields of a Scan
func (r *Reader) header(s *spectrum) *Scan {
	sc := &Scan{
		Index:           s.Index,
		ID:              s.ID,
		Time:            -1,
		TotalIonCurrent: math.NaN(),
		MSLevel:         1, // If nothing else, guess it's MS1
	}
	for _, cvParam := range r.params(s.ParamGroupRef, s.CvPar) {
		switch cvParam.Accession {
		case cvMSLevel:
			if v, err := strconv.Atoi(cvParam.Value); err == nil {
				sc.MSLevel = v
			}
		case cvTotalIonCurrent:
			if v, err := strconv.ParseFloat(cvParam.Value, 64); err == nil {
				sc.TotalIonCurrent = v
			}
		}
	}
	if len(s.ScanList.Scan) > 0 {
		for _, cvParam := range s.ScanList.Scan[0].CvPar {
			if cvParam.Accession == cvScanStartTime {
				t, err := scanTime(cvParam)
				if err != nil {
					r.log.Debug("unusable scan start time", slog.String("id", s.ID), slog.Any("error", err))
					break
				}
				sc.Time = t
				break
			}
		}
	}
	sc.PrecursorMz = precursorMz(s)
	return sc
}

// scanTime converts a scan start time term to minutes. Values without
// a unit are taken to be minutes.
func scanTime(cvParam CVParam) (float64, error) {
	t, err := strconv.ParseFloat(cvParam.Value, 64)
	if err != nil {
		return 0, err
	}
	return toMinutes(t, cvParam.UnitAccession)
}

func toMinutes(t float64, unit string) (float64, error) {
	switch unit {
	case ``, unitMinute, unitMinuteMS:
		return t, nil
	case unitSecond:
		return t / 60, nil
	}
	return t, fmt.Errorf("%w %s", ErrUnknownUnit, unit)
}

// precursorMz returns the selected ion m/z of the first precursor,
// falling back to the isolation window target. 0 means not present.
func precursorMz(s *spectrum) float64 {
	if len(s.PrecursorList) == 0 || len(s.PrecursorList[0].Precursor) == 0 {
		return 0
	}
	p := s.PrecursorList[0].Precursor[0]
	for _, ion := range p.SelectedIonList.SelectedIon {
		for _, cvParam := range ion.CvPar {
			if cvParam.Accession == cvSelectedIonMz {
				if mz, err := strconv.ParseFloat(cvParam.Value, 64); err == nil {
					return mz
				}
			}
		}
	}
	if p.IsolationWindow != nil {
		for _, cvParam := range p.IsolationWindow.CvPar {
			if cvParam.Accession == cvIsolationTargetMz {
				if mz, err := strconv.ParseFloat(cvParam.Value, 64); err == nil {
					return mz
				}
			}
		}
	}
	return 0
}

// decodeArrays fills Mz and Intensity of sc from the binary arrays of s.
// A missing TIC term is replaced by the sum of the intensities.
func (r *Reader) decodeArrays(s *spectrum, sc *Scan) error {
	for i := range s.BinaryDataArrayList.BinaryDataArray {
		b := &s.BinaryDataArrayList.BinaryDataArray[i]
		enc, err := binaryDataPars(r.params(b.ParamGroupRef, b.CvPar))
		if err != nil {
			return err
		}
		switch enc.kind {
		case mzArray:
			if sc.Mz, err = decodeArray(b.Binary, enc); err != nil {
				return err
			}
		case intensityArray:
			if sc.Intensity, err = decodeArray(b.Binary, enc); err != nil {
				return err
			}
		}
	}
	if len(sc.Mz) != len(sc.Intensity) {
		return fmt.Errorf("%w: %d m/z values, %d intensities",
			ErrMalformedArray, len(sc.Mz), len(sc.Intensity))
	}
	if math.IsNaN(sc.TotalIonCurrent) {
		var sum float64
		for _, v := range sc.Intensity {
			sum += v
		}
		sc.TotalIonCurrent = sum
	}
	return nil
}

type arrayKind int

const (
	otherArray arrayKind = iota
	mzArray
	intensityArray
	timeArray
)

type arrayEncoding struct {
	kind   arrayKind
	zlib   bool
	bits64 bool
	unit   string
}

// binaryDataPars decodes the CV terms in a mzML binarydata section
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
// MS:1000595 time array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
func binaryDataPars(params []CVParam) (arrayEncoding, error) {
	var enc arrayEncoding // Default: no compression, 32 bits
	for _, cvParam := range params {
		switch cvParam.Accession {
		case cvZlibCompression:
			enc.zlib = true
		case cvNoCompression:
			enc.zlib = false
		case cvMzArray:
			enc.kind = mzArray
		case cvIntensityArray:
			enc.kind = intensityArray
		case cvTimeArray:
			enc.kind = timeArray
			enc.unit = cvParam.UnitAccession
		case cv64BitFloat:
			enc.bits64 = true
		case cv32BitFloat:
			enc.bits64 = false
		case `MS:1002312`, `MS:1002313`, `MS:1002314`,
			`MS:1002746`, `MS:1002747`, `MS:1002748`:
			return enc, fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cvParam.Accession)
		}
	}
	return enc, nil
}

// decodeArray decodes a base64 payload, optionally zlib compressed,
// of little-endian 32 or 64 bit floats
func decodeArray(payload string, enc arrayEncoding) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedArray, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if enc.zlib {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedArray, err)
		}
		defer z.Close()
		d, err := io.ReadAll(z)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedArray, err)
		}
		data = d
	}
	width := 4
	if enc.bits64 {
		width = 8
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d",
			ErrMalformedArray, len(data), width)
	}
	cnt := len(data) / width
	values := make([]float64, cnt)
	if enc.bits64 {
		for i := 0; i < cnt; i++ {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	} else {
		for i := 0; i < cnt; i++ {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	}
	return values, nil
}
