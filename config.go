package mergeload

import "time"

// Default configuration values.
const (
	DefaultReportInterval = time.Minute
	DefaultDrainTimeout   = 30 * time.Second
)

// DrainTimeout controls graceful shutdown behavior. When the parent context is
// cancelled (e.g., SIGTERM), the pipeline:
//
//  1. Stops extracting new items immediately
//  2. Allows the item in flight to finish transforming and loading within the timeout
//  3. If it finishes within timeout: exits cleanly with nil error
//  4. If timeout expires: forces abort with error
//
// Implement this interface to set the timeout from the job struct rather than
// the pipeline builder.
//
// The value can be overridden at runtime via WithDrainTimeout, which takes
// precedence. If neither is set, DefaultDrainTimeout (30 seconds) is used.
//
// Set to 0 to disable graceful shutdown entirely (immediate abort on context
// cancellation). Negative values passed to WithDrainTimeout are ignored.
//
// When to customize:
//   - Sinks that retry for a long time: raise it so a retrying delivery can
//     still land before exit
//   - Runs where a half-delivered record is worse than none: set to 0
//
// Example:
//
//	func (j *MyJob) DrainTimeout() time.Duration { return 2 * time.Minute }
type DrainTimeout interface {
	// DrainTimeout returns the maximum time to wait for the item in flight
	// to complete after the parent context is cancelled.
	// A zero value disables graceful shutdown (immediate abort).
	DrainTimeout() time.Duration
}

// resolveReportInterval returns the effective report interval.
// Priority: WithReportInterval > ReportInterval interface > DefaultReportInterval.
func (p *Pipeline[S, T]) resolveReportInterval() time.Duration {
	if p.reportInterval != nil {
		return *p.reportInterval
	}
	if p.reportIntervalIface != nil {
		if d := p.reportIntervalIface.ReportInterval(); d > 0 {
			return d
		}
	}
	return DefaultReportInterval
}

// resolveDrainTimeout returns the effective drain timeout.
// Priority: WithDrainTimeout > DrainTimeout interface > DefaultDrainTimeout.
func (p *Pipeline[S, T]) resolveDrainTimeout() time.Duration {
	if p.drainTimeout != nil {
		return *p.drainTimeout
	}
	if p.drainTimeoutIface != nil {
		return p.drainTimeoutIface.DrainTimeout()
	}
	return DefaultDrainTimeout
}
