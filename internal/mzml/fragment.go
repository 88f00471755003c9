package mzml

import (
	"log/slog"
	"math"
)

// FindNearestFragmentScan streams an mzML file and returns the
// fragmentation (MS level >= 2) scan whose precursor m/z lies within
// mzTolerance of precursorMz and whose time lies within timeWindow of
// targetTime, choosing the smallest time difference. Ties keep the scan
// seen first. Binary arrays are only decoded for scans that pass the
// header checks and improve on the current best. Returns nil if no scan
// qualifies.
func FindNearestFragmentScan(path string, precursorMz, targetTime,
	mzTolerance, timeWindow float64) (*Scan, error) {

	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var best *Scan
	bestDelta := math.Inf(1)
	for {
		s, ok := r.nextSpectrum()
		if !ok {
			break
		}
		sc := r.header(s)
		if sc.MSLevel < 2 || sc.Time < 0 {
			continue
		}
		delta := math.Abs(sc.Time - targetTime)
		if delta > timeWindow || delta >= bestDelta {
			continue
		}
		if sc.PrecursorMz == 0 {
			r.log.Debug("fragment scan without precursor m/z", slog.String("id", s.ID))
			continue
		}
		if math.Abs(sc.PrecursorMz-precursorMz) > mzTolerance {
			continue
		}
		if err := r.decodeArrays(s, sc); err != nil {
			r.log.Warn("skipping fragment scan", slog.String("id", s.ID), slog.Any("error", err))
			continue
		}
		if len(sc.Mz) == 0 {
			continue
		}
		best = sc
		bestDelta = delta
	}
	return best, r.Err()
}
