package mergeload

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pipeline drives a Job one item at a time: extract, transform, load.
type Pipeline[S, T any] struct {
	job Job[S, T]

	// Configuration overrides (nil means use interface value or default)
	reportInterval *time.Duration
	drainTimeout   *time.Duration

	// Optional capabilities (detected from job interfaces)
	filter              Filter[S]
	errHandler          ErrorHandler
	progress            ProgressReporter
	starter             Starter
	stopper             Stopper
	reportIntervalIface ReportInterval
	drainTimeoutIface   DrainTimeout
}

// New creates a new Pipeline for the given job. Optional interfaces are
// auto-detected.
func New[S, T any](job Job[S, T]) *Pipeline[S, T] {
	p := &Pipeline[S, T]{
		job: job,
	}

	if f, ok := any(job).(Filter[S]); ok {
		p.filter = f
	}
	if h, ok := any(job).(ErrorHandler); ok {
		p.errHandler = h
	}
	if t, ok := any(job).(ProgressReporter); ok {
		p.progress = t
	}
	if s, ok := any(job).(Starter); ok {
		p.starter = s
	}
	if s, ok := any(job).(Stopper); ok {
		p.stopper = s
	}
	if r, ok := any(job).(ReportInterval); ok {
		p.reportIntervalIface = r
	}
	if g, ok := any(job).(DrainTimeout); ok {
		p.drainTimeoutIface = g
	}

	return p
}

// WithReportInterval overrides how often progress is reported.
// Priority: this method > ReportInterval interface > DefaultReportInterval.
// Values less than or equal to zero are ignored.
func (p *Pipeline[S, T]) WithReportInterval(d time.Duration) *Pipeline[S, T] {
	if d > 0 {
		p.reportInterval = &d
	}
	return p
}

// WithDrainTimeout overrides the graceful shutdown timeout.
// When the parent context is cancelled, the pipeline stops extracting and
// waits up to this duration for the item in flight to finish loading.
// Priority: this method > DrainTimeout interface > DefaultDrainTimeout.
// Set to 0 to disable graceful shutdown (immediate abort). Negative values are ignored.
func (p *Pipeline[S, T]) WithDrainTimeout(d time.Duration) *Pipeline[S, T] {
	if d < 0 {
		return p
	}
	p.drainTimeout = &d
	return p
}

// Run executes the pipeline.
func (p *Pipeline[S, T]) Run(ctx context.Context) error {
	stats := &Stats{}

	if p.starter != nil {
		ctx = p.starter.Start(ctx)
	}

	drainCtx, shutdownComplete := p.setupDrainContext(ctx)

	drainedSuccessfully, pipelineErr := p.execute(ctx, drainCtx, stats)

	if p.stopper != nil {
		p.stopper.Stop(drainCtx, stats, pipelineErr)
	}
	close(shutdownComplete)

	return p.handleCompletion(ctx, drainedSuccessfully, pipelineErr)
}

// setupDrainContext creates a context for graceful shutdown with two-phase management:
// - parent ctx: When cancelled, signals "stop extracting new items"
// - drainCtx: Allows the in-flight transform/load to complete within timeout
func (p *Pipeline[S, T]) setupDrainContext(ctx context.Context) (context.Context, chan struct{}) {
	drainTimeout := p.resolveDrainTimeout()
	drainCtx, drainCancel := context.WithCancelCause(context.WithoutCancel(ctx))
	shutdownComplete := make(chan struct{})

	if drainTimeout > 0 {
		go p.runDrainTimer(ctx, drainTimeout, drainCancel, shutdownComplete)
	} else {
		go p.mirrorContextCancel(ctx, drainCancel, shutdownComplete)
	}

	return drainCtx, shutdownComplete
}

// runDrainTimer starts a timer when parent context is cancelled, cancelling drain context on timeout.
func (p *Pipeline[S, T]) runDrainTimer(ctx context.Context, timeout time.Duration, cancel context.CancelCauseFunc, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel(fmt.Errorf("drain timeout expired after %v", timeout))
		case <-done:
			cancel(nil)
		}
	case <-done:
		cancel(nil)
	}
}

// mirrorContextCancel cancels drain context when parent context is cancelled (no graceful shutdown).
func (p *Pipeline[S, T]) mirrorContextCancel(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		cancel(ctx.Err())
	case <-done:
		cancel(nil)
	}
}

// execute runs the item loop and, when the job reports progress, a ticker
// beside it. Returns (drainedSuccessfully, error) where drainedSuccessfully is
// true if the parent context was cancelled and the item in flight still
// finished.
func (p *Pipeline[S, T]) execute(ctx, drainCtx context.Context, stats *Stats) (bool, error) {
	if p.progress == nil {
		return p.runSequential(ctx, drainCtx, stats)
	}

	var (
		group   errgroup.Group
		drained bool
		done    = make(chan struct{})
	)
	group.Go(func() error {
		defer close(done)
		var err error
		drained, err = p.runSequential(ctx, drainCtx, stats)
		return err
	})
	group.Go(func() error {
		p.runProgress(drainCtx, done, stats)
		return nil
	})
	err := group.Wait()

	return drained, err
}

// runSequential pulls one item at a time through transform and load.
// ctx is checked for the shutdown signal, drainCtx is used for transform and
// load so the item in flight can finish.
func (p *Pipeline[S, T]) runSequential(ctx, drainCtx context.Context, stats *Stats) (bool, error) {
	for item, err := range p.job.Extract(ctx) {
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		if err != nil {
			if p.skip(ctx, StageExtract, err, stats) {
				continue
			}
			return false, fmt.Errorf("extract: %w", err)
		}

		stats.incExtracted(1)

		if p.filter != nil && !p.filter.Include(item) {
			stats.incFiltered(1)
			continue
		}

		out, err := p.job.Transform(drainCtx, item)
		if err != nil {
			if p.skip(drainCtx, StageTransform, err, stats) {
				continue
			}
			return false, fmt.Errorf("transform: %w", err)
		}
		stats.incTransformed(1)

		if err := p.job.Load(drainCtx, out); err != nil {
			if p.skip(drainCtx, StageLoad, err, stats) {
				continue
			}
			return false, fmt.Errorf("load: %w", err)
		}
		stats.incLoaded(1)
	}

	return ctx.Err() != nil, nil
}

// skip records err and reports whether the item should be dropped rather than
// failing the run.
func (p *Pipeline[S, T]) skip(ctx context.Context, stage Stage, err error, stats *Stats) bool {
	stats.incErrors(1)
	if p.errHandler == nil || p.errHandler.OnError(ctx, stage, err) != ActionSkip {
		return false
	}
	stats.incSkipped(1)
	return true
}

// runProgress calls OnProgress every report interval until done is closed.
func (p *Pipeline[S, T]) runProgress(ctx context.Context, done <-chan struct{}, stats *Stats) {
	ticker := time.NewTicker(p.resolveReportInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.progress.OnProgress(ctx, stats)
		}
	}
}

// handleCompletion maps the loop outcome to the error returned by Run.
func (p *Pipeline[S, T]) handleCompletion(ctx context.Context, drainedSuccessfully bool, pipelineErr error) error {
	if pipelineErr != nil {
		return pipelineErr
	}

	drainTimeout := p.resolveDrainTimeout()
	if ctx.Err() != nil && (drainTimeout == 0 || !drainedSuccessfully) {
		return ctx.Err()
	}

	return nil
}
