// Package chart holds the typed Vega-Lite document exchanged between the
// presentation stage and the renderer, together with its decoding, validation
// and deterministic construction rules.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SchemaURL is the schema identifier stamped on generated specs.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// FieldType is the value kind of an encoded field.
type FieldType string

const (
	Nominal      FieldType = "nominal"
	Ordinal      FieldType = "ordinal"
	Quantitative FieldType = "quantitative"
	Temporal     FieldType = "temporal"
)

// Valid reports whether t is one of the known value kinds.
func (t FieldType) Valid() bool {
	switch t {
	case Nominal, Ordinal, Quantitative, Temporal:
		return true
	}
	return false
}

var (
	// ErrMissingSpec is returned when there is no document to decode.
	ErrMissingSpec = errors.New("chart spec is missing")
	// ErrNotChartable is returned by Build when the payload has no row set
	// with a category or time axis and a numeric measure.
	ErrNotChartable = errors.New("payload cannot be charted")
)

// Spec is a single-view Vega-Lite document.
type Spec struct {
	Schema      string   `json:"$schema,omitempty"`
	Title       any      `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Mark        any      `json:"mark,omitempty"`
	Data        Data     `json:"data"`
	Encoding    Encoding `json:"encoding"`
}

// Data is the inline data table of a spec.
type Data struct {
	Values []map[string]any `json:"values"`
}

// FieldDef maps one visual channel to a column of the data table.
type FieldDef struct {
	Field     string    `json:"field"`
	Type      FieldType `json:"type"`
	Title     string    `json:"title,omitempty"`
	Aggregate string    `json:"aggregate,omitempty"`
	TimeUnit  string    `json:"timeUnit,omitempty"`
	Sort      any       `json:"sort,omitempty"`
}

// Encoding holds the channel mappings. Channels other than x, y and color
// are carried through untouched.
type Encoding struct {
	X     *FieldDef
	Y     *FieldDef
	Color *FieldDef
	Extra map[string]json.RawMessage
}

// Empty reports whether no channel is mapped.
func (e Encoding) Empty() bool {
	return e.X == nil && e.Y == nil && e.Color == nil && len(e.Extra) == 0
}

func (e Encoding) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		m[k] = v
	}
	if e.X != nil {
		m["x"] = e.X
	}
	if e.Y != nil {
		m["y"] = e.Y
	}
	if e.Color != nil {
		m["color"] = e.Color
	}
	return json.Marshal(m)
}

func (e *Encoding) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Encoding{}
	for k, v := range raw {
		switch k {
		case "x", "y", "color":
			var fd FieldDef
			if err := json.Unmarshal(v, &fd); err != nil {
				return fmt.Errorf("encoding.%s: %w", k, err)
			}
			switch k {
			case "x":
				e.X = &fd
			case "y":
				e.Y = &fd
			default:
				e.Color = &fd
			}
		default:
			if e.Extra == nil {
				e.Extra = map[string]json.RawMessage{}
			}
			e.Extra[k] = v
		}
	}
	return nil
}

// Channels returns the mapped field definitions keyed by channel name, in a
// stable order.
func (e Encoding) Channels() []string {
	var out []string
	if e.X != nil {
		out = append(out, "x")
	}
	if e.Y != nil {
		out = append(out, "y")
	}
	if e.Color != nil {
		out = append(out, "color")
	}
	extra := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Decode turns a transmitted chart document into a Spec. The document may be
// an object, a JSON string holding the object, and its data and encoding
// members may themselves be string-encoded. Any decoding failure is returned
// as an error; callers treat it like missing data.
func Decode(raw []byte) (*Spec, error) {
	raw, err := unquote(raw)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("chart spec is not a JSON object: %w", err)
	}
	if doc == nil {
		return nil, ErrMissingSpec
	}
	for _, key := range []string{"data", "encoding"} {
		member, ok := doc[key]
		if !ok {
			continue
		}
		inner, err := unquote(member)
		if err != nil {
			return nil, fmt.Errorf("chart spec %s: %w", key, err)
		}
		doc[key] = inner
	}

	normalised, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := json.Unmarshal(normalised, &spec); err != nil {
		return nil, fmt.Errorf("chart spec shape: %w", err)
	}
	return &spec, nil
}

// DecodeString is Decode for the string-encoded wire form.
func DecodeString(s string) (*Spec, error) {
	return Decode([]byte(s))
}

// Encode serialises the spec into its single-string wire form.
func Encode(s *Spec) (string, error) {
	if s == nil {
		return "", ErrMissingSpec
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unquote strips up to two levels of JSON string encoding.
func unquote(raw []byte) ([]byte, error) {
	for range 2 {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, ErrMissingSpec
		}
		if raw[0] != '"' {
			return raw, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode string-encoded member: %w", err)
		}
		raw = []byte(s)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrMissingSpec
	}
	return raw, nil
}
