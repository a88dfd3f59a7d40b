package mergeload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// CastFunc converts a raw cell into the value written to the record.
type CastFunc func(string) (any, error)

// CastError reports a cell that could not be converted. The record it belongs
// to is skipped.
type CastError struct {
	Source string
	Column string
	Value  string
	Err    error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast %s.%s value %q: %v", e.Source, e.Column, e.Value, e.Err)
}

func (e *CastError) Unwrap() error { return e.Err }

// String passes the cell through unchanged.
func String(s string) (any, error) { return cast.ToStringE(s) }

// Int parses a base-10 integer. Leading zeros are allowed, so "007" reads as 7.
// Decimal forms such as "7.0" are rejected.
func Int(s string) (any, error) {
	d := decimal(s)
	if !whole(d) {
		return nil, fmt.Errorf("%q is not a whole number", s)
	}
	return cast.ToInt64E(d)
}

// Float parses a 64-bit float.
func Float(s string) (any, error) { return cast.ToFloat64E(strings.TrimSpace(s)) }

// Bool parses the forms accepted by strconv.ParseBool.
func Bool(s string) (any, error) { return cast.ToBoolE(strings.TrimSpace(s)) }

// Nullable wraps fn so an empty or blank cell becomes nil instead of an error.
func Nullable(fn CastFunc) CastFunc {
	return func(s string) (any, error) {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return fn(s)
	}
}

var casts = map[string]CastFunc{
	"string": String,
	"int":    Int,
	"float":  Float,
	"bool":   Bool,
	"int?":   Nullable(Int),
	"float?": Nullable(Float),
	"bool?":  Nullable(Bool),
}

// LookupCast returns the cast registered under name. An empty name means
// "string".
func LookupCast(name string) (CastFunc, error) {
	if name == "" {
		name = "string"
	}
	fn, ok := casts[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown cast %q (known: %s)", name, strings.Join(CastNames(), ", "))
	}
	return fn, nil
}

// CastNames lists the registered cast names in sorted order.
func CastNames() []string {
	names := make([]string, 0, len(casts))
	for n := range casts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// whole reports whether s is an optional minus sign followed by digits.
func whole(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// decimal strips blanks and leading zeros so cast never reads the value as
// octal or hex.
func decimal(s string) string {
	s = strings.TrimSpace(s)
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		trimmed = "0"
	}
	if sign == "+" {
		sign = ""
	}
	return sign + trimmed
}
