package mzml

import "errors"

// Scan holds one decoded spectrum. Mz is sorted ascending and has the
// same length as Intensity. Time is the scan start time in minutes,
// or -1 when the file does not record it.
type Scan struct {
	Index           int
	ID              string
	Time            float64
	TotalIonCurrent float64
	MSLevel         int
	// PrecursorMz is the selected ion m/z of a fragmentation scan, 0 if absent
	PrecursorMz float64
	Mz          []float64
	Intensity   []float64
}

// Trace is a time/intensity series, e.g. an embedded chromatogram
type Trace struct {
	ID        string
	Time      []float64
	Intensity []float64
}

// Controlled vocabulary accessions used by the reader and writer
const (
	cvMSLevel           = `MS:1000511`
	cvTotalIonCurrent   = `MS:1000285`
	cvScanStartTime     = `MS:1000016`
	cvSelectedIonMz     = `MS:1000744`
	cvIsolationTargetMz = `MS:1000827`
	cvTICChromatogram   = `MS:1000235`
	cvMzArray           = `MS:1000514`
	cvIntensityArray    = `MS:1000515`
	cvTimeArray         = `MS:1000595`
	cv32BitFloat        = `MS:1000521`
	cv64BitFloat        = `MS:1000523`
	cvZlibCompression   = `MS:1000574`
	cvNoCompression     = `MS:1000576`
	unitMinute          = `UO:0000031`
	unitMinuteMS        = `MS:1000038`
	unitSecond          = `UO:0000010`
	mzMLNamespace       = `http://psi.hupo.org/ms/mzml`
	chromatogramTICID   = `TIC`
)

type spectrum struct {
	Index              int             `xml:"index,attr"`
	ID                 string          `xml:"id,attr"`
	DefaultArrayLength int64           `xml:"defaultArrayLength,attr"`
	ParamGroupRef      []paramGroupRef `xml:"referenceableParamGroupRef,omitempty"`
	CvPar              []CVParam       `xml:"cvParam,omitempty"`
	ScanList           scanList        `xml:"scanList"`
	// precursorList is a slice, only the current version of
	// the encoding/xml package does not handle "omitempty" properly on
	// structures, and we don't want precursorList tags to appear in
	// e.g. ms1 spectra
	PrecursorList       []precursorList     `xml:"precursorList,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type chromatogram struct {
	Index               int                 `xml:"index,attr"`
	ID                  string              `xml:"id,attr"`
	DefaultArrayLength  int64               `xml:"defaultArrayLength,attr"`
	ParamGroupRef       []paramGroupRef     `xml:"referenceableParamGroupRef,omitempty"`
	CvPar               []CVParam           `xml:"cvParam,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int             `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int             `xml:"arrayLength,attr,omitempty"`
	ParamGroupRef []paramGroupRef `xml:"referenceableParamGroupRef,omitempty"`
	CvPar         []CVParam       `xml:"cvParam,omitempty"`
	Binary        string          `xml:"binary"`
}

// referenceableParamGroup holds CV terms shared by reference, typically
// the encoding of all m/z or intensity arrays in a file
type referenceableParamGroup struct {
	ID    string    `xml:"id,attr"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type paramGroupRef struct {
	Ref string `xml:"ref,attr"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type precursorList struct {
	Count     int            `xml:"count,attr,omitempty"`
	Precursor []XMLprecursor `xml:"precursor"`
}

// XMLprecursor contains info for the correspondingly named tag in the mzML file
type XMLprecursor struct {
	SpectrumRef     string           `xml:"spectrumRef,attr,omitempty"`
	IsolationWindow *isolationWindow `xml:"isolationWindow,omitempty"`
	SelectedIonList selectedIonList  `xml:"selectedIonList"`
}

type isolationWindow struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

type selectedIonList struct {
	Count       int           `xml:"count,attr,omitempty"`
	SelectedIon []selectedIon `xml:"selectedIon"`
}

type selectedIon struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	CvRef         string `xml:"cvRef,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrUnsupportedCompression means a binary array uses an encoding
	// (e.g. MS-Numpress) that the reader cannot decode
	ErrUnsupportedCompression = errors.New("MzML: unsupported binary compression")
	// ErrMalformedArray means a binary array could not be decoded
	ErrMalformedArray = errors.New("MzML: malformed binary data array")
	// ErrUnknownUnit means the file contains a unit that the software cannot handle
	ErrUnknownUnit = errors.New("MzML: can't handle unit")
)
