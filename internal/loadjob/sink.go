package loadjob

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bjaus/mergeload"
)

// JSONLines is a Sink that writes each record as one JSON line instead of
// delivering it. Used for dry runs.
type JSONLines struct {
	enc *json.Encoder
}

// NewJSONLines writes records to w.
func NewJSONLines(w io.Writer) *JSONLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLines{enc: enc}
}

// Load writes rec.
func (s *JSONLines) Load(_ context.Context, rec mergeload.Record) error {
	return s.enc.Encode(rec)
}
