package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smartsearch/corporate-agent/internal/chart"
)

// ResponseType classifies a final answer.
type ResponseType string

const (
	ResponseVisual         ResponseType = "visual"
	ResponseText           ResponseType = "text"
	ResponseUnableToAnswer ResponseType = "unable_to_answer"
)

// ResponseTypes lists every valid response type.
var ResponseTypes = []ResponseType{ResponseVisual, ResponseText, ResponseUnableToAnswer}

func (t ResponseType) Valid() bool {
	switch t {
	case ResponseVisual, ResponseText, ResponseUnableToAnswer:
		return true
	}
	return false
}

// FallbackSummary is shown when no valid presentation could be produced.
const FallbackSummary = "I'm sorry, I couldn't put together a reliable answer to that question right now. Please try rephrasing it or ask again in a moment."

// FinalPresentation is the checked output of the presentation stage.
type FinalPresentation struct {
	ResponseType ResponseType
	SummaryText  string
	// Chart is set only for visual responses.
	Chart *chart.Spec
}

// UnableToAnswer builds an unable_to_answer presentation.
func UnableToAnswer(summary string) *FinalPresentation {
	if strings.TrimSpace(summary) == "" {
		summary = FallbackSummary
	}
	return &FinalPresentation{ResponseType: ResponseUnableToAnswer, SummaryText: summary}
}

// Check enforces the presentation invariants: a known type, a non-empty
// summary, and a chart present exactly when the type is visual, in which case
// the chart must validate.
func (p *FinalPresentation) Check() error {
	if p == nil {
		return errors.New("presentation is nil")
	}
	if !p.ResponseType.Valid() {
		return fmt.Errorf("unknown response_type %q", p.ResponseType)
	}
	if strings.TrimSpace(p.SummaryText) == "" {
		return errors.New("summary_text is empty")
	}
	if p.ResponseType != ResponseVisual {
		if p.Chart != nil {
			return fmt.Errorf("chart_spec must be absent for response_type %q", p.ResponseType)
		}
		return nil
	}
	if p.Chart == nil {
		return errors.New("chart_spec is required for a visual response")
	}
	return chart.Validate(p.Chart)
}

// Wire converts the presentation to its transmitted form.
func (p *FinalPresentation) Wire() (WirePresentation, error) {
	w := WirePresentation{ResponseType: p.ResponseType, SummaryText: p.SummaryText}
	if p.Chart == nil {
		return w, nil
	}
	s, err := chart.Encode(p.Chart)
	if err != nil {
		return WirePresentation{}, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return WirePresentation{}, err
	}
	w.ChartSpec = raw
	return w, nil
}

func (p FinalPresentation) MarshalJSON() ([]byte, error) {
	w, err := p.Wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// WirePresentation is a presentation as transmitted or stored. It is not
// trusted: ChartSpec holds the raw chart member, normally a JSON string that
// encodes the chart document, and may be malformed.
type WirePresentation struct {
	ResponseType ResponseType    `json:"response_type"`
	SummaryText  string          `json:"summary_text"`
	ChartSpec    json.RawMessage `json:"chart_spec"`
}

// HasChart reports whether a chart member other than null was transmitted.
func (w WirePresentation) HasChart() bool {
	s := strings.TrimSpace(string(w.ChartSpec))
	return s != "" && s != "null" && s != `""`
}

// UnmarshalJSON accepts vega_lite_spec as an alias of chart_spec.
func (w *WirePresentation) UnmarshalJSON(b []byte) error {
	var raw struct {
		ResponseType ResponseType    `json:"response_type"`
		SummaryText  string          `json:"summary_text"`
		ChartSpec    json.RawMessage `json:"chart_spec"`
		VegaLiteSpec json.RawMessage `json:"vega_lite_spec"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*w = WirePresentation{ResponseType: raw.ResponseType, SummaryText: raw.SummaryText, ChartSpec: raw.ChartSpec}
	if !w.HasChart() && len(raw.VegaLiteSpec) > 0 {
		w.ChartSpec = raw.VegaLiteSpec
	}
	return nil
}
