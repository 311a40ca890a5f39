package chart

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var fieldDefSchema = map[string]any{
	"type":     "object",
	"required": []any{"field", "type"},
	"properties": map[string]any{
		"field": map[string]any{"type": "string", "minLength": 1},
		"type": map[string]any{
			"type": "string",
			"enum": []any{string(Nominal), string(Ordinal), string(Quantitative), string(Temporal)},
		},
	},
}

// structureSchema is the minimum a renderable single-view spec must satisfy.
var structureSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []any{"data", "encoding"},
	"properties": map[string]any{
		"data": map[string]any{
			"type":     "object",
			"required": []any{"values"},
			"properties": map[string]any{
				"values": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items":    map[string]any{"type": "object", "minProperties": 1},
				},
			},
		},
		"encoding": map[string]any{
			"type":     "object",
			"required": []any{"x", "y"},
			"properties": map[string]any{
				"x": fieldDefSchema,
				"y": fieldDefSchema,
			},
		},
	},
})

// ValidationError lists every structural problem found in a spec.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid chart spec: " + strings.Join(e.Problems, "; ")
}

// Validate checks that s is a complete single-view spec: non-empty data
// values, x and y channels with a known value kind, channel fields present and
// non-null in every row, and quantitative fields holding real numbers.
func Validate(s *Spec) error {
	if s == nil {
		return &ValidationError{Problems: []string{ErrMissingSpec.Error()}}
	}

	result, err := gojsonschema.Validate(structureSchema, gojsonschema.NewGoLoader(s))
	if err != nil {
		return fmt.Errorf("chart schema validation failed: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			problems[i] = e.String()
		}
		return &ValidationError{Problems: problems}
	}

	var problems []string
	check := func(channel string, fd *FieldDef) {
		if fd == nil {
			return
		}
		for i, row := range s.Data.Values {
			v, ok := row[fd.Field]
			if !ok {
				problems = append(problems, fmt.Sprintf("row %d has no %q for encoding.%s", i, fd.Field, channel))
				return
			}
			if v == nil {
				problems = append(problems, fmt.Sprintf("row %d %q is null", i, fd.Field))
				return
			}
			if fd.Type == Quantitative && fd.Aggregate != "count" {
				if _, isNum := v.(float64); !isNum {
					problems = append(problems, fmt.Sprintf("row %d %q is not a number", i, fd.Field))
					return
				}
			}
		}
	}
	check("x", s.Encoding.X)
	check("y", s.Encoding.Y)
	check("color", s.Encoding.Color)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Complete reports whether the spec carries both a non-empty data table and a
// non-empty encoding. It is the weaker check applied at render time.
func Complete(s *Spec) bool {
	return s != nil && len(s.Data.Values) > 0 && !s.Encoding.Empty()
}
