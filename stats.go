package mergeload

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Stats provides pipeline statistics with thread-safe access.
// Counter fields use atomic operations so the progress ticker can read them
// while the item loop writes.
type Stats struct {
	extracted   atomic.Int64
	filtered    atomic.Int64
	transformed atomic.Int64
	loaded      atomic.Int64
	skipped     atomic.Int64
	errors      atomic.Int64
}

// Extracted returns the number of items extracted.
func (s *Stats) Extracted() int64 { return s.extracted.Load() }

// Filtered returns the number of items filtered out before transformation.
func (s *Stats) Filtered() int64 { return s.filtered.Load() }

// Transformed returns the number of items transformed.
func (s *Stats) Transformed() int64 { return s.transformed.Load() }

// Loaded returns the number of items the sink accepted.
func (s *Stats) Loaded() int64 { return s.loaded.Load() }

// Skipped returns the number of items dropped by the ErrorHandler.
func (s *Stats) Skipped() int64 { return s.skipped.Load() }

// Errors returns the number of errors encountered.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// MarshalZerologObject implements zerolog.LogObjectMarshaler for structured
// logging.
func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("extracted", s.Extracted()).
		Int64("filtered", s.Filtered()).
		Int64("transformed", s.Transformed()).
		Int64("loaded", s.Loaded()).
		Int64("skipped", s.Skipped()).
		Int64("errors", s.Errors())
}

// Internal increment methods. These return the new value after incrementing.
func (s *Stats) incExtracted(n int64) int64   { return s.extracted.Add(n) }
func (s *Stats) incFiltered(n int64) int64    { return s.filtered.Add(n) }
func (s *Stats) incTransformed(n int64) int64 { return s.transformed.Add(n) }
func (s *Stats) incLoaded(n int64) int64      { return s.loaded.Add(n) }
func (s *Stats) incSkipped(n int64) int64     { return s.skipped.Add(n) }
func (s *Stats) incErrors(n int64) int64      { return s.errors.Add(n) }
