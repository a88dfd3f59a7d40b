package mergeload

import "context"

// Filter excludes items before transformation. Filtered items count towards
// Stats.Filtered and never reach the sink.
//
// Example:
//
//	func (j *MyJob) Include(g mergeload.Group) bool {
//	    return g.ID != ""
//	}
type Filter[S any] interface {
	// Include returns true if the item should be processed.
	Include(src S) bool
}

// ErrorHandler customizes error handling per pipeline stage. Without an
// ErrorHandler, the pipeline stops on the first error in any stage.
//
// A merge-join load usually skips malformed groups and dead-letters rejected
// deliveries, but fails on extract errors because a broken source (unsorted,
// unreadable) makes every later group suspect:
//
//	func (j *MyJob) OnError(ctx context.Context, stage mergeload.Stage, err error) mergeload.Action {
//	    switch stage {
//	    case mergeload.StageTransform:
//	        log.Warn().Err(err).Msg("skipping record")
//	        return mergeload.ActionSkip
//	    case mergeload.StageLoad:
//	        var derr *mergeload.DeliveryError
//	        if errors.As(err, &derr) && j.deadLetter(derr) == nil {
//	            return mergeload.ActionSkip
//	        }
//	    }
//	    return mergeload.ActionFail
//	}
//
// Every error increments Stats.Errors; skipped ones also increment
// Stats.Skipped.
type ErrorHandler interface {
	// OnError is called when an error occurs during any stage.
	// Return ActionSkip to continue processing, ActionFail to stop the pipeline.
	OnError(ctx context.Context, stage Stage, err error) Action
}

// Starter is called once before extraction begins. The context it returns is
// used for the whole run.
type Starter interface {
	Start(ctx context.Context) context.Context
}

// Stopper is called exactly once after the run finishes, whether it
// succeeded, failed or was shut down. The ctx is the drain context, so it is
// still usable after the parent context has been cancelled. err is the error
// Run is about to return, without errors that were skipped.
type Stopper interface {
	Stop(ctx context.Context, stats *Stats, err error)
}
