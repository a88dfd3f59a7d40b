package mergeload

import (
	"context"
	"time"
)

// ReportInterval controls how often progress is reported. This interface can
// be implemented independently of ProgressReporter when you want to set the
// interval via the job struct rather than the builder.
//
// The value can be overridden at runtime via WithReportInterval, which takes
// precedence over this interface. If neither is set, DefaultReportInterval
// (one minute) is used.
//
// Example:
//
//	func (j *MyJob) ReportInterval() time.Duration { return 30 * time.Second }
type ReportInterval interface {
	// ReportInterval returns the time between OnProgress calls.
	ReportInterval() time.Duration
}

// ProgressReporter receives periodic progress updates while the pipeline
// runs. OnProgress is called from a ticker goroutine beside the item loop, so
// a slow sink does not delay the report.
//
// The Stats passed to OnProgress is safe to read concurrently.
//
// Example:
//
//	func (j *MyJob) OnProgress(ctx context.Context, stats *mergeload.Stats) {
//	    log.Info().Int64("loaded", stats.Loaded()).Msg("progress")
//	}
type ProgressReporter interface {
	// OnProgress is called periodically during execution.
	OnProgress(ctx context.Context, stats *Stats)
}
