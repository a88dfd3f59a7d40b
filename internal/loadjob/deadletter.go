package loadjob

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bjaus/mergeload"
)

// DeadLetter appends refused deliveries as JSON lines. Each line carries the
// exact payload that was sent, so a later run can replay it.
type DeadLetter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewDeadLetter writes to w.
func NewDeadLetter(w io.Writer) *DeadLetter {
	return &DeadLetter{w: w, now: time.Now}
}

// OpenDeadLetter writes to a size-rotated file at path.
func OpenDeadLetter(path string) (*DeadLetter, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 10,
		Compress:   true,
	}
	return NewDeadLetter(lj), lj
}

type deadLetterLine struct {
	At       time.Time       `json:"at"`
	URL      string          `json:"url"`
	Status   int             `json:"status,omitempty"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
	Record   json.RawMessage `json:"record"`
}

// Write appends one line for e.
func (d *DeadLetter) Write(e *mergeload.DeliveryError) error {
	line, err := json.Marshal(deadLetterLine{
		At:       d.now().UTC(),
		URL:      e.URL,
		Status:   e.Status,
		Attempts: e.Attempts,
		Error:    e.Error(),
		Record:   e.Payload,
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = d.w.Write(append(line, '\n'))
	return err
}
