package mergeload

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ErrNoAnchor is returned by Transform when a group has no row from the
// anchor source. There is nothing to build a record from, so the pipeline
// should skip it.
var ErrNoAnchor = errors.New("group has no anchor row")

// LocalIDField is the per-object identifier every emitted block carries.
const LocalIDField = "_localId"

// FieldMapping copies one source column into one target field.
type FieldMapping struct {
	Column string
	Field  string
	Cast   CastFunc
}

// Block maps the rows of one source into a target field of the record data.
type Block struct {
	Source   string
	Field    string
	Mappings []FieldMapping
}

// Derived names the anchor columns used for computed fields.
type Derived struct {
	DateColumn      string
	TimeColumn      string
	LongitudeColumn string
	LatitudeColumn  string
}

// RecordTransformer builds a Record from a Group.
//
// The anchor block maps the first anchor row into a single object; each child
// block maps every row of its source into a list. Sources in the group that no
// block names are ignored.
type RecordTransformer struct {
	Anchor   Block
	Children []Block
	Derived  Derived
	SchemaID string
	Clock    *Clock

	// NewID generates LocalIDField values. Defaults to uuid.NewString.
	NewID func() string
}

// Transform implements the transform stage for merge-join runs.
// It returns ErrNoAnchor when the group has no anchor row and a *CastError
// when any cell, date or coordinate cannot be converted.
func (rt *RecordTransformer) Transform(_ context.Context, g Group) (Record, error) {
	anchors := g.Rows[rt.Anchor.Source]
	if len(anchors) == 0 {
		return nil, ErrNoAnchor
	}
	anchor := anchors[0]

	primary, err := rt.object(rt.Anchor, anchor)
	if err != nil {
		return nil, err
	}
	data := map[string]any{rt.Anchor.Field: primary}

	for _, child := range rt.Children {
		rows := g.Rows[child.Source]
		list := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			obj, err := rt.object(child, row)
			if err != nil {
				return nil, err
			}
			list = append(list, obj)
		}
		data[child.Field] = list
	}

	occurred, err := rt.occurred(anchor)
	if err != nil {
		return nil, err
	}
	geom, err := rt.geom(anchor)
	if err != nil {
		return nil, err
	}

	return Record{
		"data":          data,
		"schema":        rt.SchemaID,
		"occurred_from": occurred,
		"occurred_to":   occurred,
		"geom":          geom,
	}, nil
}

// object maps one row through b.Mappings. Columns missing from the row are
// skipped.
func (rt *RecordTransformer) object(b Block, row Row) (map[string]any, error) {
	out := make(map[string]any, len(b.Mappings)+1)
	for _, m := range b.Mappings {
		raw, ok := row[m.Column]
		if !ok {
			continue
		}
		fn := m.Cast
		if fn == nil {
			fn = String
		}
		v, err := fn(raw)
		if err != nil {
			return nil, &CastError{Source: b.Source, Column: m.Column, Value: raw, Err: err}
		}
		out[m.Field] = v
	}
	out[LocalIDField] = rt.newID()
	return out, nil
}

func (rt *RecordTransformer) occurred(row Row) (string, error) {
	if rt.Clock == nil {
		return "", errors.New("record transformer has no clock")
	}
	date, clock := row[rt.Derived.DateColumn], row[rt.Derived.TimeColumn]
	t, err := rt.Clock.Parse(date, clock)
	if err != nil {
		return "", &CastError{Source: rt.Anchor.Source, Column: rt.Derived.DateColumn, Value: date + " " + clock, Err: err}
	}
	return rt.Clock.Format(t), nil
}

func (rt *RecordTransformer) geom(row Row) (string, error) {
	lon, err := rt.coordinate(row, rt.Derived.LongitudeColumn)
	if err != nil {
		return "", err
	}
	lat, err := rt.coordinate(row, rt.Derived.LatitudeColumn)
	if err != nil {
		return "", err
	}
	return PointWKT(orb.Point{lon, lat}), nil
}

func (rt *RecordTransformer) coordinate(row Row, column string) (float64, error) {
	raw := row[column]
	v, err := Float(raw)
	if err != nil {
		return 0, &CastError{Source: rt.Anchor.Source, Column: column, Value: raw, Err: err}
	}
	return v.(float64), nil
}

func (rt *RecordTransformer) newID() string {
	if rt.NewID != nil {
		return rt.NewID()
	}
	return uuid.NewString()
}

// PointWKT renders p as "POINT (lon lat)" using the shortest decimal form of
// each coordinate. Whole numbers keep a trailing ".0".
func PointWKT(p orb.Point) string {
	return "POINT (" + coord(p.Lon()) + " " + coord(p.Lat()) + ")"
}

func coord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
