// Package mergeload rebuilds relational records from several sorted CSV
// extracts and delivers them one at a time to an HTTP sink.
//
// A run is a chain of lazy stages, each consumed on demand by the next:
//
//	OpenSources -> Merge -> GroupTriples -> RecordTransformer -> HTTPLoader
//
// so at most one grouped record plus one lookahead row per file is held in
// memory.
//
// # Sources
//
// [OpenSources] opens every file up front and returns a [SourceSet] that owns
// the handles; always defer Close, or use [WithSources]:
//
//	err := mergeload.WithSources(ctx, files, func(cursors []*mergeload.Cursor) error {
//	    for g, err := range mergeload.GroupTriples(mergeload.Merge(cursors, "CdAcidente")) {
//	        if err != nil {
//	            return err
//	        }
//	        fmt.Println(g.ID, len(g.Rows))
//	    }
//	    return nil
//	})
//
// # Merge and Group
//
// [Merge] is a k-way merge join. Each file must already be sorted ascending by
// the join column, compared as strings ("10" sorts before "9"). Merge checks
// this as it reads and yields an [*UnsortedError] rather than silently
// producing split groups. Every row for one id comes out contiguously, which
// is what lets [GroupTriples] fold each run of equal ids into a single [Group].
//
// # Transform
//
// [RecordTransformer] maps the first row of the anchor source into the
// primary block and each other configured source, row by row, into a list.
// Every object gets a fresh _localId. A group without an anchor row returns
// [ErrNoAnchor]; a cell that does not cast returns a [*CastError]. Both are
// per-record conditions meant to be skipped by an [ErrorHandler].
//
// # Load
//
// [HTTPLoader] posts each record to <api-root>/records/ and waits for 201.
// Transient failures are retried with exponential backoff up to a bounded
// number of attempts; permanent failures and exhausted retries come back as a
// [*DeliveryError] carrying the payload, so the caller can dead-letter it.
// Delivery is at-least-once: a record may reach the sink twice if an
// acknowledgment is lost.
//
// # Pipeline
//
// [Pipeline] drives any [Job] sequentially. Optional behavior is detected
// from the interfaces the job implements: [Filter], [ErrorHandler],
// [ProgressReporter], [ReportInterval], [Starter], [Stopper] and
// [DrainTimeout].
//
//	err := mergeload.New[mergeload.Group, mergeload.Record](job).
//	    WithReportInterval(time.Minute).
//	    Run(ctx)
//
// Cancelling ctx stops extraction at once; the record in flight gets up to
// the drain timeout to finish loading.
package mergeload
