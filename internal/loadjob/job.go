// Package loadjob wires the merge-join stages, a sink and the run's logging
// into a mergeload.Job.
package loadjob

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/bjaus/mergeload"
)

// Sink accepts transformed records. *mergeload.HTTPLoader and *JSONLines
// implement it.
type Sink interface {
	Load(ctx context.Context, rec mergeload.Record) error
}

// Options configures a Job.
type Options struct {
	Files       []mergeload.SourceFile
	JoinColumn  string
	Transformer *mergeload.RecordTransformer
	Sink        Sink

	// DeadLetter receives records the sink refused. When nil, a refused
	// record fails the run.
	DeadLetter *DeadLetter

	ReportEvery  time.Duration
	DrainTimeout time.Duration
	Logger       zerolog.Logger
}

// Job loads one directory of sorted extracts into a sink.
type Job struct {
	opts    Options
	log     zerolog.Logger
	started time.Time
}

var (
	_ mergeload.Job[mergeload.Group, mergeload.Record] = (*Job)(nil)
	_ mergeload.ErrorHandler                           = (*Job)(nil)
	_ mergeload.ProgressReporter                       = (*Job)(nil)
	_ mergeload.ReportInterval                         = (*Job)(nil)
	_ mergeload.DrainTimeout                           = (*Job)(nil)
	_ mergeload.Starter                                = (*Job)(nil)
	_ mergeload.Stopper                                = (*Job)(nil)
)

// New creates a Job.
func New(o Options) *Job {
	return &Job{opts: o, log: o.Logger}
}

// Run executes the job through a mergeload pipeline.
func (j *Job) Run(ctx context.Context) error {
	return mergeload.New[mergeload.Group, mergeload.Record](j).Run(ctx)
}

// Extract opens every source, merges them on the join column and yields one
// group per join id. All files are closed when the sequence ends.
func (j *Job) Extract(ctx context.Context) iter.Seq2[mergeload.Group, error] {
	return func(yield func(mergeload.Group, error) bool) {
		stopped := false
		err := mergeload.WithSources(ctx, j.opts.Files, func(cursors []*mergeload.Cursor) error {
			for g, err := range mergeload.GroupTriples(mergeload.Merge(cursors, j.opts.JoinColumn)) {
				if !yield(g, err) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err == nil {
			return
		}
		if stopped {
			j.log.Warn().Err(err).Msg("closing sources")
			return
		}
		yield(mergeload.Group{}, err)
	}
}

// Transform builds the record for one group.
func (j *Job) Transform(ctx context.Context, g mergeload.Group) (mergeload.Record, error) {
	rec, err := j.opts.Transformer.Transform(ctx, g)
	if err != nil {
		return nil, &groupError{id: g.ID, err: err}
	}
	return rec, nil
}

// Load hands the record to the sink.
func (j *Job) Load(ctx context.Context, rec mergeload.Record) error {
	return j.opts.Sink.Load(ctx, rec)
}

// OnError skips groups that cannot be transformed and, when a dead-letter
// file is configured, records the sink refused. Everything else fails the run.
func (j *Job) OnError(_ context.Context, stage mergeload.Stage, err error) mergeload.Action {
	var (
		castErr     *mergeload.CastError
		deliveryErr *mergeload.DeliveryError
		ge          *groupError
	)
	id := ""
	if errors.As(err, &ge) {
		id = ge.id
	}

	switch {
	case stage == mergeload.StageTransform && errors.Is(err, mergeload.ErrNoAnchor):
		j.log.Warn().Str("join_id", id).Msg("found join with no anchor row, skipping")
		return mergeload.ActionSkip

	case stage == mergeload.StageTransform && errors.As(err, &castErr):
		j.log.Warn().
			Str("join_id", id).
			Str("source", castErr.Source).
			Str("column", castErr.Column).
			Str("value", castErr.Value).
			Err(castErr.Err).
			Msg("malformed cell, skipping record")
		return mergeload.ActionSkip

	case stage == mergeload.StageLoad && errors.As(err, &deliveryErr) && j.opts.DeadLetter != nil:
		if dlErr := j.opts.DeadLetter.Write(deliveryErr); dlErr != nil {
			j.log.Error().Err(dlErr).Msg("writing dead letter")
			return mergeload.ActionFail
		}
		j.log.Error().
			Int("status", deliveryErr.Status).
			Int("attempts", deliveryErr.Attempts).
			Err(err).
			Msg("record dead-lettered")
		return mergeload.ActionSkip
	}

	j.log.Error().Str("stage", string(stage)).Err(err).Msg("pipeline error")
	return mergeload.ActionFail
}

// ReportInterval returns how often progress is logged.
func (j *Job) ReportInterval() time.Duration { return j.opts.ReportEvery }

// DrainTimeout returns how long a delivery in flight may run after shutdown
// is requested.
func (j *Job) DrainTimeout() time.Duration { return j.opts.DrainTimeout }

// OnProgress logs cumulative counts.
func (j *Job) OnProgress(_ context.Context, stats *mergeload.Stats) {
	j.log.Info().Object("stats", stats).Dur("elapsed", time.Since(j.started)).Msg("imported records")
}

// Start logs the beginning of the run.
func (j *Job) Start(ctx context.Context) context.Context {
	j.started = time.Now()
	j.log.Info().Int("sources", len(j.opts.Files)).Str("join_column", j.opts.JoinColumn).Msg("importing records")
	return ctx
}

// Stop logs the outcome of the run.
func (j *Job) Stop(_ context.Context, stats *mergeload.Stats, err error) {
	ev := j.log.Info()
	msg := "loading complete"
	if err != nil {
		ev = j.log.Error().Err(err)
		msg = "loading failed"
	}
	ev.Object("stats", stats).Dur("elapsed", time.Since(j.started)).Msg(msg)
}

// groupError tags a transform error with the join id of its group.
type groupError struct {
	id  string
	err error
}

func (e *groupError) Error() string { return "join id " + e.id + ": " + e.err.Error() }

func (e *groupError) Unwrap() error { return e.err }
