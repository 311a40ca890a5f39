package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// UntraceableError names a chart row whose channel values do not come from a
// single row of the source payload.
type UntraceableError struct {
	Row    int
	Values map[string]any
	Reason string
}

func (e *UntraceableError) Error() string {
	return fmt.Sprintf("chart row %d %v %s", e.Row, e.Values, e.Reason)
}

// sourceRows returns every object in payload that holds at least one scalar
// member. Objects that only group nested results are descended into.
func sourceRows(payload any) []map[string]any {
	var rows []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			scalar := false
			keys := make([]string, 0, len(t))
			for k, child := range t {
				keys = append(keys, k)
				switch child.(type) {
				case map[string]any, []any, []map[string]any, nil:
				default:
					scalar = true
				}
			}
			if scalar {
				rows = append(rows, t)
			}
			sort.Strings(keys)
			for _, k := range keys {
				switch t[k].(type) {
				case map[string]any, []any, []map[string]any:
					walk(t[k])
				}
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		case []map[string]any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(payload)
	return rows
}

// sameValue compares a charted value with a source value. Numbers match
// numeric strings holding the same number.
func sameValue(chartVal, srcVal any) bool {
	if chartVal == nil || srcVal == nil {
		return false
	}
	if cf, ok := numberOf(chartVal); ok {
		sf, ok := numberOf(srcVal)
		return ok && (cf == sf || math.Abs(cf-sf) <= 1e-9*math.Max(1, math.Abs(cf)))
	}
	switch c := chartVal.(type) {
	case string:
		s, ok := srcVal.(string)
		return ok && s == c
	case bool:
		s, ok := srcVal.(bool)
		return ok && s == c
	}
	return false
}

func numberOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case fmt.Stringer:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// rowMatches reports whether every channel value of a chart row is found in
// src: under the same field name when src has it, otherwise in any of its
// members.
func rowMatches(values map[string]any, src map[string]any) bool {
	for f, v := range values {
		if sv, ok := src[f]; ok {
			if !sameValue(v, sv) {
				return false
			}
			continue
		}
		found := false
		for _, sv := range src {
			if sameValue(v, sv) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Traceable verifies that the spec's data table is a projection of the
// retrieved payload: each row's channel values (x, y and color) must come
// together from one source row, and each source row backs at most one chart
// row. Null or missing channel values are rejected. Helper columns the model
// may add for labels are ignored.
func Traceable(s *Spec, payload any) error {
	if s == nil {
		return ErrMissingSpec
	}

	var fields []string
	for _, fd := range []*FieldDef{s.Encoding.X, s.Encoding.Y, s.Encoding.Color} {
		if fd != nil && fd.Field != "" {
			fields = append(fields, fd.Field)
		}
	}

	src := sourceRows(payload)
	if len(s.Data.Values) > len(src) {
		return &UntraceableError{
			Row:    len(src),
			Reason: fmt.Sprintf("exceeds the %d retrieved rows", len(src)),
		}
	}

	used := make([]bool, len(src))
	for i, row := range s.Data.Values {
		values := make(map[string]any, len(fields))
		for _, f := range fields {
			v, ok := row[f]
			if !ok || v == nil {
				return &UntraceableError{Row: i, Values: values, Reason: fmt.Sprintf("has no value for %q", f)}
			}
			values[f] = v
		}

		matched := false
		for j, candidate := range src {
			if used[j] || !rowMatches(values, candidate) {
				continue
			}
			used[j] = true
			matched = true
			break
		}
		if !matched {
			return &UntraceableError{Row: i, Values: values, Reason: "does not match any retrieved row"}
		}
	}
	return nil
}
