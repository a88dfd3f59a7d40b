package mergeload

import (
	"context"
	"iter"
)

// Stage identifies where in the pipeline an event occurred.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Action tells the pipeline what to do after an error.
type Action string

const (
	ActionFail Action = "fail" // Stop pipeline and return error
	ActionSkip Action = "skip" // Skip this record and continue
)

// Row is one line of a source file keyed by header column name. Rows are
// never modified after they are read.
type Row map[string]string

// Triple is one row leaving the merge stage, tagged with its join id and the
// name of the source it came from.
type Triple struct {
	ID     string
	Source string
	Row    Row
}

// Group holds every row sharing one join id, keyed by source name. Each
// source's rows keep their file order. A missing key means the source had no
// rows for ID.
type Group struct {
	ID   string
	Rows map[string][]Row
}

// Record is the nested, schema-shaped object delivered to the sink.
type Record map[string]any

// Job defines the core operations of a load run. This is the only required
// interface to implement.
//
// The type parameters are:
//   - S: source item type (a [Group] for merge-join runs)
//   - T: target item type (a [Record] for merge-join runs)
//
// Unlike a batch loader, Load receives exactly one transformed item; each item
// is delivered independently and there is no atomicity across items.
type Job[S, T any] interface {
	// Extract yields items from the source. The sequence is finite and is
	// consumed once.
	Extract(ctx context.Context) iter.Seq2[S, error]

	// Transform converts one source item into one target item.
	Transform(ctx context.Context, src S) (T, error)

	// Load delivers one target item to the destination.
	Load(ctx context.Context, item T) error
}
