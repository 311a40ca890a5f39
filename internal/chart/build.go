package chart

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// BuildOptions tunes Build.
type BuildOptions struct {
	Title string
}

// column describes one attribute of a retrieved row set.
type column struct {
	name string
	kind FieldType
}

var (
	timeHints    = []string{"date", "time", "month", "year", "week", "day", "period", "quarter"}
	measureHints = []string{"revenue", "sales", "total", "amount", "value", "count", "sum", "avg", "price", "quantity", "order"}
	dateLayouts  = []string{time.RFC3339, "2006-01-02", "2006-01", "2006-01-02 15:04:05"}
)

// Build derives a chart spec deterministically from a retrieved payload. The
// first row set holding a category or time column and a numeric column is
// used; values are copied verbatim apart from numeric strings, which become
// numbers. A single-row set is not charted.
func Build(payload any, opts BuildOptions) (*Spec, error) {
	rows := findRows(payload, 0)
	if len(rows) < 2 {
		return nil, ErrNotChartable
	}

	cols := analyse(rows)
	x, ok := pickAxis(cols)
	if !ok {
		return nil, ErrNotChartable
	}
	y, ok := pickMeasure(cols, x.name)
	if !ok {
		return nil, ErrNotChartable
	}

	values := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		yv, isNum := toNumber(row[y.name])
		if !isNum {
			return nil, ErrNotChartable
		}
		values = append(values, map[string]any{x.name: row[x.name], y.name: yv})
	}

	mark := "bar"
	if x.kind == Temporal || x.kind == Ordinal {
		mark = "line"
	}
	title := opts.Title
	if title == "" {
		title = humanise(y.name) + " by " + humanise(x.name)
	}

	return &Spec{
		Schema: SchemaURL,
		Title:  title,
		Mark:   mark,
		Data:   Data{Values: values},
		Encoding: Encoding{
			X: &FieldDef{Field: x.name, Type: x.kind, Title: humanise(x.name)},
			Y: &FieldDef{Field: y.name, Type: Quantitative, Title: humanise(y.name)},
		},
	}, nil
}

// findRows returns the first array of objects reachable from payload, looking
// at most two levels into nested objects with keys visited in sorted order.
func findRows(payload any, depth int) []map[string]any {
	switch t := payload.(type) {
	case []map[string]any:
		return t
	case []any:
		rows := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil
			}
			rows = append(rows, m)
		}
		return rows
	case map[string]any:
		if depth >= 2 {
			return nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if rows := findRows(t[k], depth+1); len(rows) > 0 {
				return rows
			}
		}
	}
	return nil
}

func analyse(rows []map[string]any) []column {
	keys := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, column{name: k, kind: inferKind(k, rows)})
	}
	return cols
}

func inferKind(name string, rows []map[string]any) FieldType {
	numeric, dates := true, true
	for _, row := range rows {
		v := row[name]
		if _, ok := toNumber(v); !ok {
			numeric = false
		}
		s, isString := v.(string)
		if !isString || !isDate(s) {
			dates = false
		}
	}
	switch {
	case dates:
		return Temporal
	case numeric && !hinted(name, timeHints):
		return Quantitative
	case hinted(name, timeHints):
		return Ordinal
	}
	return Nominal
}

func pickAxis(cols []column) (column, bool) {
	for _, want := range []FieldType{Temporal, Ordinal, Nominal} {
		for _, c := range cols {
			if c.kind == want {
				return c, true
			}
		}
	}
	return column{}, false
}

func pickMeasure(cols []column, axis string) (column, bool) {
	var fallback *column
	for i, c := range cols {
		if c.kind != Quantitative || c.name == axis {
			continue
		}
		if hinted(c.name, measureHints) {
			return c, true
		}
		if fallback == nil && !hinted(c.name, []string{"id"}) {
			fallback = &cols[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return column{}, false
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// hinted reports whether any word of name matches a hint, plural included.
func hinted(name string, hints []string) bool {
	for _, w := range words(strings.ToLower(name)) {
		for _, h := range hints {
			if w == h || w == h+"s" {
				return true
			}
		}
	}
	return false
}

func words(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
}

func humanise(name string) string {
	parts := words(name)
	for i, w := range parts {
		parts[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(parts, " ")
}
