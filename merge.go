package mergeload

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// UnsortedError reports a source whose join ids go backwards. Merge relies on
// every source being sorted ascending by join id.
type UnsortedError struct {
	Source string
	Line   int
	Prev   string
	ID     string
}

func (e *UnsortedError) Error() string {
	return fmt.Sprintf("source %s is not sorted by join id: line %d has %q after %q", e.Source, e.Line, e.ID, e.Prev)
}

// MissingColumnError reports a row without the join column.
type MissingColumnError struct {
	Source string
	Line   int
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("source %s line %d has no join column %q", e.Source, e.Line, e.Column)
}

// head is the one-row lookahead kept for each open source.
type head struct {
	cur *Cursor
	row Row
	id  string
}

// advance reads the next row into h. It returns false once the source is
// exhausted.
func (h *head) advance(joinColumn string) (bool, error) {
	row, err := h.cur.Next()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	id, ok := row[joinColumn]
	if !ok {
		return false, &MissingColumnError{Source: h.cur.Name(), Line: h.cur.Line(), Column: joinColumn}
	}
	if h.row != nil && id < h.id {
		return false, &UnsortedError{Source: h.cur.Name(), Line: h.cur.Line(), Prev: h.id, ID: id}
	}
	h.row, h.id = row, id
	return true, nil
}

// Merge interleaves cursors that are each sorted ascending by joinColumn into
// one sequence ordered by join id. Ids compare as strings.
//
// Every row for a given id is yielded contiguously: sources in the order given,
// and each source's rows in file order. Sources without rows are dropped
// up front. A source that goes backwards yields an *UnsortedError and ends the
// sequence.
func Merge(cursors []*Cursor, joinColumn string) iter.Seq2[Triple, error] {
	return func(yield func(Triple, error) bool) {
		heads := make([]*head, 0, len(cursors))
		for _, c := range cursors {
			h := &head{cur: c}
			ok, err := h.advance(joinColumn)
			if err != nil {
				yield(Triple{}, err)
				return
			}
			if ok {
				heads = append(heads, h)
			}
		}

		for len(heads) > 0 {
			minID := heads[0].id
			for _, h := range heads[1:] {
				if h.id < minID {
					minID = h.id
				}
			}

			live := heads[:0]
			for _, h := range heads {
				open := true
				for open && h.id == minID {
					if !yield(Triple{ID: minID, Source: h.cur.Name(), Row: h.row}, nil) {
						return
					}
					var err error
					open, err = h.advance(joinColumn)
					if err != nil {
						yield(Triple{}, err)
						return
					}
				}
				if open {
					live = append(live, h)
				}
			}
			heads = live
		}
	}
}
