package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/toolbox"
)

// DateLayout is the only date form handed to operations.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// NormalizeArguments rewrites the model's arguments for op into the forms
// operations expect. Unknown parameters are dropped, strings trimmed, numeric
// strings coerced for numeric parameters and date-like values of date
// parameters rewritten as YYYY-MM-DD. Arguments that are not a JSON object are
// returned unchanged.
func NormalizeArguments(op toolbox.Operation, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		return arguments
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		p, ok := op.Param(k)
		if !ok {
			continue
		}
		if nv, keep := normalizeValue(p, v); keep {
			out[k] = nv
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return arguments
	}
	return string(b)
}

func normalizeValue(p toolbox.Parameter, v any) (any, bool) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	switch dataType(p.Type) {
	case schema.Integer:
		switch t := v.(type) {
		case float64:
			return int64(t), true
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n, true
			}
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return int64(f), true
			}
			return nil, false
		}
	case schema.Number:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
	case schema.Boolean:
		if s, ok := v.(string); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, false
			}
			return b, true
		}
	case schema.String:
		switch t := v.(type) {
		case string:
			if isDateParam(p.Name) {
				return NormalizeDate(t), true
			}
			return t, true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case bool:
			return fmt.Sprint(t), true
		}
	}
	return v, true
}

func isDateParam(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "date") || strings.HasSuffix(n, "_from") || strings.HasSuffix(n, "_to") ||
		n == "from" || n == "to" || n == "since" || n == "until" || n == "day"
}

// NormalizeDate rewrites a recognised date as YYYY-MM-DD; anything else is
// returned as is.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}
