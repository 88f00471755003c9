package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"
	"strconv"
)

// Encoding selects how binary arrays are written
type Encoding struct {
	Zlib   bool
	Bits64 bool
}

// Document is the content of an mzML file as written by Write
type Document struct {
	Spectra       []Scan
	Chromatograms []Trace
	Encoding      Encoding
}

// We define separate structs for writing XML because the namespace
// and version must be written as attributes of the root element
type mzMLWrite struct {
	XMLName xml.Name `xml:"mzML"`
	Xmlns   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`
	Run     runWrite `xml:"run"`
}

type runWrite struct {
	ID               string                 `xml:"id,attr"`
	SpectrumList     spectrumListWrite      `xml:"spectrumList"`
	ChromatogramList *chromatogramListWrite `xml:"chromatogramList,omitempty"`
}

type spectrumListWrite struct {
	Count    int        `xml:"count,attr"`
	Spectrum []spectrum `xml:"spectrum"`
}

type chromatogramListWrite struct {
	Count        int            `xml:"count,attr"`
	Chromatogram []chromatogram `xml:"chromatogram"`
}

// Write writes doc as mzML. Scan times are written in minutes.
func Write(writer io.Writer, doc Document) error {
	if _, err := io.WriteString(writer, `<?xml version="1.0" encoding="utf-8"?>
`); err != nil {
		return err
	}
	content := mzMLWrite{
		Xmlns:   mzMLNamespace,
		Version: "1.1.0",
		Run:     runWrite{ID: "run"},
	}
	for i, sc := range doc.Spectra {
		s, err := newSpectrum(i, sc, doc.Encoding)
		if err != nil {
			return err
		}
		content.Run.SpectrumList.Spectrum = append(content.Run.SpectrumList.Spectrum, s)
	}
	content.Run.SpectrumList.Count = len(doc.Spectra)
	if len(doc.Chromatograms) > 0 {
		cl := &chromatogramListWrite{Count: len(doc.Chromatograms)}
		for i, tr := range doc.Chromatograms {
			c, err := newChromatogram(i, tr, doc.Encoding)
			if err != nil {
				return err
			}
			cl.Chromatogram = append(cl.Chromatogram, c)
		}
		content.Run.ChromatogramList = cl
	}

	enc := xml.NewEncoder(writer)
	enc.Indent(``, `  `)
	if err := enc.Encode(&content); err != nil {
		return err
	}
	_, err := io.WriteString(writer, "\n")
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func newSpectrum(i int, sc Scan, e Encoding) (spectrum, error) {
	id := sc.ID
	if id == `` {
		id = "scan=" + strconv.Itoa(i+1)
	}
	msLevel := sc.MSLevel
	if msLevel == 0 {
		msLevel = 1
	}
	s := spectrum{
		Index:              i,
		ID:                 id,
		DefaultArrayLength: int64(len(sc.Mz)),
		CvPar: []CVParam{
			{CvRef: "MS", Accession: cvMSLevel, Name: "ms level", Value: strconv.Itoa(msLevel)},
			{CvRef: "MS", Accession: cvTotalIonCurrent, Name: "total ion current", Value: formatFloat(sc.TotalIonCurrent)},
		},
		ScanList: scanList{
			Count: 1,
			Scan: []scan{{CvPar: []CVParam{{
				CvRef: "MS", Accession: cvScanStartTime, Name: "scan start time",
				Value: formatFloat(sc.Time), UnitCvRef: "UO", UnitAccession: unitMinute, UnitName: "minute",
			}}}},
		},
	}
	if msLevel >= 2 && sc.PrecursorMz > 0 {
		s.PrecursorList = []precursorList{{
			Count: 1,
			Precursor: []XMLprecursor{{SelectedIonList: selectedIonList{
				Count: 1,
				SelectedIon: []selectedIon{{CvPar: []CVParam{{
					CvRef: "MS", Accession: cvSelectedIonMz, Name: "selected ion m/z",
					Value: formatFloat(sc.PrecursorMz), UnitCvRef: "MS", UnitAccession: "MS:1000040", UnitName: "m/z",
				}}}},
			}}},
		}}
	}
	mz, err := newBinaryDataArray(sc.Mz, e, CVParam{CvRef: "MS", Accession: cvMzArray, Name: "m/z array"})
	if err != nil {
		return s, err
	}
	intens, err := newBinaryDataArray(sc.Intensity, e, CVParam{CvRef: "MS", Accession: cvIntensityArray, Name: "intensity array"})
	if err != nil {
		return s, err
	}
	s.BinaryDataArrayList = binaryDataArrayList{Count: 2, BinaryDataArray: []binaryDataArray{mz, intens}}
	return s, nil
}

func newChromatogram(i int, tr Trace, e Encoding) (chromatogram, error) {
	c := chromatogram{
		Index:              i,
		ID:                 tr.ID,
		DefaultArrayLength: int64(len(tr.Time)),
	}
	if tr.ID == chromatogramTICID {
		c.CvPar = []CVParam{{CvRef: "MS", Accession: cvTICChromatogram, Name: "total ion current chromatogram"}}
	}
	times, err := newBinaryDataArray(tr.Time, e, CVParam{
		CvRef: "MS", Accession: cvTimeArray, Name: "time array",
		UnitCvRef: "UO", UnitAccession: unitMinute, UnitName: "minute",
	})
	if err != nil {
		return c, err
	}
	intens, err := newBinaryDataArray(tr.Intensity, e, CVParam{CvRef: "MS", Accession: cvIntensityArray, Name: "intensity array"})
	if err != nil {
		return c, err
	}
	c.BinaryDataArrayList = binaryDataArrayList{Count: 2, BinaryDataArray: []binaryDataArray{times, intens}}
	return c, nil
}

func newBinaryDataArray(values []float64, e Encoding, kind CVParam) (binaryDataArray, error) {
	b64, err := encodeBinary(values, e)
	if err != nil {
		return binaryDataArray{}, err
	}
	width := CVParam{CvRef: "MS", Accession: cv32BitFloat, Name: "32-bit float"}
	if e.Bits64 {
		width = CVParam{CvRef: "MS", Accession: cv64BitFloat, Name: "64-bit float"}
	}
	compression := CVParam{CvRef: "MS", Accession: cvNoCompression, Name: "no compression"}
	if e.Zlib {
		compression = CVParam{CvRef: "MS", Accession: cvZlibCompression, Name: "zlib compression"}
	}
	return binaryDataArray{
		EncodedLength: len(b64),
		CvPar:         []CVParam{width, compression, kind},
		Binary:        b64,
	}, nil
}

func encodeBinary(values []float64, e Encoding) (string, error) {
	var rawUncompressed []byte

	if e.Bits64 {
		rawUncompressed = make([]byte, len(values)*8)
		for i, v := range values {
			binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], math.Float64bits(v))
		}
	} else {
		rawUncompressed = make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], math.Float32bits(float32(v)))
		}
	}
	data := rawUncompressed
	if e.Zlib {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
