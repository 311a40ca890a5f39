// Package render turns a transmitted presentation into something a display
// surface can show. It never fails: malformed input degrades to an error view.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/chart"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// Kind is the variant of a rendered view.
type Kind string

const (
	KindVisual         Kind = "visual"
	KindText           Kind = "text"
	KindUnableToAnswer Kind = "unable_to_answer"
	KindError          Kind = "error"
)

const (
	// IncompleteChartNotice replaces a chart whose data or encoding is missing.
	IncompleteChartNotice = "The chart for this answer could not be displayed because its data was incomplete."
	// MalformedNotice is shown when the presentation itself is unusable.
	MalformedNotice = "This answer could not be displayed."
)

// View is the renderable artifact.
type View struct {
	Kind    Kind        `json:"kind"`
	Content string      `json:"content"`
	Notice  string      `json:"notice,omitempty"`
	Chart   *chart.Spec `json:"chart,omitempty"`
}

// Render materialises p. Visual presentations whose chart cannot be decoded,
// or decodes without data values or encoding, become an error view that keeps
// the summary text.
func Render(p model.WirePresentation) (v View) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Interface("panic", r).Msg("Render recovered from panic")
			v = View{Kind: KindError, Content: p.SummaryText, Notice: MalformedNotice}
		}
	}()

	summary := strings.TrimSpace(p.SummaryText)

	switch p.ResponseType {
	case model.ResponseVisual:
		spec, err := decode(p.ChartSpec)
		if err != nil || !chart.Complete(spec) {
			logx.Warn().Err(err).Str("response_type", string(p.ResponseType)).Msg("Chart spec incomplete; degrading to text notice")
			return View{Kind: KindError, Content: summary, Notice: IncompleteChartNotice}
		}
		if verr := chart.Validate(spec); verr != nil {
			logx.Debug().Err(verr).Msg("Rendering chart that fails strict validation")
		}
		return View{Kind: KindVisual, Content: summary, Chart: spec}

	case model.ResponseText, model.ResponseUnableToAnswer:
		if p.HasChart() {
			logx.Warn().Str("response_type", string(p.ResponseType)).Msg("Ignoring chart spec on non-visual presentation")
		}
		if summary == "" {
			return View{Kind: KindError, Notice: MalformedNotice}
		}
		if p.ResponseType == model.ResponseText {
			return View{Kind: KindText, Content: summary}
		}
		return View{Kind: KindUnableToAnswer, Content: summary}
	}

	logx.Warn().Str("response_type", string(p.ResponseType)).Msg("Unknown response type; degrading")
	return View{Kind: KindError, Content: summary, Notice: MalformedNotice}
}

// RenderRaw decodes a transmitted payload before rendering it.
func RenderRaw(raw []byte) View {
	var p model.WirePresentation
	if err := json.Unmarshal(raw, &p); err != nil {
		logx.Warn().Err(err).Msg("Presentation payload is not valid JSON")
		return View{Kind: KindError, Notice: MalformedNotice}
	}
	return Render(p)
}

func decode(raw json.RawMessage) (*chart.Spec, error) {
	if len(raw) == 0 {
		return nil, chart.ErrMissingSpec
	}
	return chart.Decode(raw)
}

// Text formats the view for a terminal.
func (v View) Text() string {
	var b strings.Builder
	if v.Content != "" {
		b.WriteString(v.Content)
		b.WriteString("\n")
	}
	if v.Notice != "" {
		fmt.Fprintf(&b, "[%s] %s\n", v.Kind, v.Notice)
	}
	if v.Chart == nil || v.Chart.Encoding.X == nil || v.Chart.Encoding.Y == nil {
		return b.String()
	}

	x, y := v.Chart.Encoding.X.Field, v.Chart.Encoding.Y.Field
	if title, ok := v.Chart.Title.(string); ok && title != "" {
		fmt.Fprintf(&b, "\n%s\n", title)
	}
	width := len(x)
	for _, row := range v.Chart.Data.Values {
		if n := len(fmt.Sprint(row[x])); n > width {
			width = n
		}
	}
	fmt.Fprintf(&b, "%-*s  %s\n", width, x, y)
	for _, row := range v.Chart.Data.Values {
		fmt.Fprintf(&b, "%-*v  %v\n", width, row[x], row[y])
	}
	return b.String()
}
