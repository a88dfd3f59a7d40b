package mergeload

import "iter"

// GroupTriples folds runs of equal join id into one Group each. It relies on
// the input yielding every triple for an id contiguously, which Merge
// guarantees. Groups come out in the order their ids first appear.
//
// Errors from the input are passed through and end the sequence.
func GroupTriples(triples iter.Seq2[Triple, error]) iter.Seq2[Group, error] {
	return func(yield func(Group, error) bool) {
		var g Group
		open := false

		for t, err := range triples {
			if err != nil {
				yield(Group{}, err)
				return
			}
			if open && t.ID != g.ID {
				if !yield(g, nil) {
					return
				}
				open = false
			}
			if !open {
				g = Group{ID: t.ID, Rows: make(map[string][]Row)}
				open = true
			}
			g.Rows[t.Source] = append(g.Rows[t.Source], t.Row)
		}

		if open {
			yield(g, nil)
		}
	}
}
