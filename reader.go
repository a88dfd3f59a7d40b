package mergeload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// SourceFile names one input file. Name is the key rows are grouped under;
// Path is where the file lives.
type SourceFile struct {
	Name string
	Path string
}

// Cursor reads rows from one CSV file in file order. A cursor is finite and
// cannot be rewound.
type Cursor struct {
	name   string
	header []string
	r      *csv.Reader
	line   int
	err    error
}

// newCursor reads the header row from r. An empty input produces a cursor that
// is already exhausted.
func newCursor(name string, rd io.Reader) (*Cursor, error) {
	r := csv.NewReader(rd)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	c := &Cursor{name: name, r: r}
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		c.err = io.EOF
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	c.header = append([]string(nil), header...)
	c.line = 1
	return c, nil
}

// Name returns the source name the cursor was opened with.
func (c *Cursor) Name() string { return c.name }

// Header returns the column names from the first line of the file.
func (c *Cursor) Header() []string { return c.header }

// Line returns the 1-based line number of the last row returned by Next.
func (c *Cursor) Line() int { return c.line }

// Next returns the next row; returns io.EOF when done. Cells beyond the
// header are dropped and missing trailing cells are absent from the row.
func (c *Cursor) Next() (Row, error) {
	if c.err != nil {
		return nil, c.err
	}
	rec, err := c.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			err = fmt.Errorf("read %s line %d: %w", c.name, c.line+1, err)
		}
		c.err = err
		return nil, err
	}
	c.line++

	row := make(Row, len(c.header))
	for i, col := range c.header {
		if i < len(rec) {
			row[col] = rec[i]
		}
	}
	return row, nil
}

// Rows adapts the cursor to a sequence. The sequence ends at io.EOF; any other
// read error is yielded once and ends it.
func (c *Cursor) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := c.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// SourceSet owns the open handles of a group of source files.
type SourceSet struct {
	cursors []*Cursor
	files   []*os.File
}

// OpenSources opens every file up front and returns one cursor per file in the
// order given. If any file fails to open, the files opened before it are
// closed and the error is returned.
func OpenSources(ctx context.Context, files []SourceFile) (*SourceSet, error) {
	s := &SourceSet{
		cursors: make([]*Cursor, 0, len(files)),
		files:   make([]*os.File, 0, len(files)),
	}
	for _, sf := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(err, s.Close())
		}
		f, err := os.Open(sf.Path)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open source %s: %w", sf.Name, err), s.Close())
		}
		s.files = append(s.files, f)

		c, err := newCursor(sf.Name, f)
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.cursors = append(s.cursors, c)
	}
	return s, nil
}

// WithSources opens files, calls fn with their cursors and closes every handle
// when fn returns or panics.
func WithSources(ctx context.Context, files []SourceFile, fn func(cursors []*Cursor) error) (err error) {
	set, err := OpenSources(ctx, files)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := set.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(set.Cursors())
}

// Cursors returns the cursors in the order the files were given.
func (s *SourceSet) Cursors() []*Cursor { return s.cursors }

// Close releases every open handle. Calling Close more than once is a no-op.
func (s *SourceSet) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}
