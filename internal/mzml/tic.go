package mzml

import (
	"encoding/xml"
	"io"
	"log/slog"
	"strings"

	"github.com/524D/lcquant/internal/fileio"
)

// ExtractTIC returns the total ion current chromatogram of an mzML file.
// It first looks for a precomputed TIC chromatogram embedded in the file
// (accession MS:1000235 or id "TIC"), skipping spectra without decoding
// them. Only if none is present it streams all MS1 spectra and collects
// their total ion current. ok is false when neither source yields data.
func ExtractTIC(path string) (tic Trace, ok bool, err error) {
	log := slog.Default().With(slog.String("component", "mzml"), slog.String("file", path))
	tic, ok, err = embeddedTIC(path)
	if err != nil || ok {
		return tic, ok, err
	}
	log.Debug("no embedded TIC chromatogram, summing spectra")

	r, err := Open(path)
	if err != nil {
		return Trace{}, false, err
	}
	defer r.Close()
	tic.ID = chromatogramTICID
	for r.Next() {
		sc := r.Scan()
		if sc.MSLevel != 1 {
			continue
		}
		tic.Time = append(tic.Time, sc.Time)
		tic.Intensity = append(tic.Intensity, sc.TotalIonCurrent)
	}
	if err := r.Err(); err != nil {
		return Trace{}, false, err
	}
	return tic, len(tic.Time) > 0, nil
}

func embeddedTIC(path string) (Trace, bool, error) {
	f, err := fileio.Open(path)
	if err != nil {
		return Trace{}, false, err
	}
	defer f.Close()
	r := NewReader(f)
	r.log = r.log.With(slog.String("file", path))
	d := r.d

	for {
		t, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return Trace{}, false, nil
			}
			return Trace{}, false, err
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "referenceableParamGroup":
			var g referenceableParamGroup
			if err := d.DecodeElement(&g, &se); err != nil {
				return Trace{}, false, err
			}
			r.groups[g.ID] = g.CvPar
		case "spectrumList":
			if err := d.Skip(); err != nil {
				return Trace{}, false, err
			}
		case "chromatogram":
			var c chromatogram
			if err := d.DecodeElement(&c, &se); err != nil {
				return Trace{}, false, err
			}
			if !isTIC(&c, r.params(c.ParamGroupRef, c.CvPar)) {
				continue
			}
			tr, err := r.decodeChromatogram(&c)
			if err != nil {
				r.log.Warn("unusable TIC chromatogram", slog.String("id", c.ID), slog.Any("error", err))
				continue
			}
			if len(tr.Time) > 0 && len(tr.Time) == len(tr.Intensity) {
				return tr, true, nil
			}
		}
	}
}

func isTIC(c *chromatogram, params []CVParam) bool {
	if strings.EqualFold(c.ID, chromatogramTICID) {
		return true
	}
	for _, cvParam := range params {
		if cvParam.Accession == cvTICChromatogram {
			return true
		}
	}
	return false
}

func (r *Reader) decodeChromatogram(c *chromatogram) (Trace, error) {
	tr := Trace{ID: c.ID}
	for i := range c.BinaryDataArrayList.BinaryDataArray {
		b := &c.BinaryDataArrayList.BinaryDataArray[i]
		enc, err := binaryDataPars(r.params(b.ParamGroupRef, b.CvPar))
		if err != nil {
			return tr, err
		}
		switch enc.kind {
		case timeArray:
			values, err := decodeArray(b.Binary, enc)
			if err != nil {
				return tr, err
			}
			if enc.unit == unitSecond {
				for j := range values {
					values[j] /= 60
				}
			}
			tr.Time = values
		case intensityArray:
			values, err := decodeArray(b.Binary, enc)
			if err != nil {
				return tr, err
			}
			tr.Intensity = values
		}
	}
	return tr, nil
}
