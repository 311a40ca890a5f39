package parsers

import (
	"fmt"
	"strings"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/chart"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
)

// Repair actions applied by Finalize.
const (
	RepairForcedUnableToAnswer = "forced_unable_to_answer"
	RepairDroppedChart         = "dropped_chart"
	RepairRebuiltChart         = "rebuilt_chart"
	RepairDowngradedToText     = "downgraded_to_text"
)

// Finalize turns a parsed candidate into a checked FinalPresentation for the
// given retrieval result. Violations that can be fixed without inventing
// content are repaired and reported in repairs:
//   - an irrelevant or failed result always yields unable_to_answer
//   - a chart on a non-visual answer is dropped
//   - an invalid or untraceable chart is rebuilt from the payload, or the
//     answer becomes text when the payload cannot be charted
//
// What remains invalid is returned as an error wrapping
// errx.ErrStageOutputInvalid.
func Finalize(w model.WirePresentation, result model.QueryResult) (*model.FinalPresentation, []string, error) {
	var repairs []string
	summary := strings.TrimSpace(w.SummaryText)

	if !result.IsData() {
		if w.ResponseType != model.ResponseUnableToAnswer || w.HasChart() {
			repairs = append(repairs, RepairForcedUnableToAnswer)
		}
		p := model.UnableToAnswer(summary)
		return p, repairs, nil
	}

	p := &model.FinalPresentation{ResponseType: w.ResponseType, SummaryText: summary}

	switch w.ResponseType {
	case model.ResponseText, model.ResponseUnableToAnswer:
		if w.HasChart() {
			repairs = append(repairs, RepairDroppedChart)
		}
	case model.ResponseVisual:
		payload, err := result.Decoded()
		if err != nil {
			return nil, repairs, fmt.Errorf("%w: %v", errx.ErrStageOutputInvalid, err)
		}
		spec, problem := acceptChart(w, payload)
		if problem == nil {
			p.Chart = spec
			break
		}
		opts := chart.BuildOptions{}
		if spec != nil {
			if title, ok := spec.Title.(string); ok {
				opts.Title = title
			}
		}
		if rebuilt, err := chart.Build(payload, opts); err == nil {
			p.Chart = rebuilt
			repairs = append(repairs, RepairRebuiltChart)
			break
		}
		p.ResponseType = model.ResponseText
		repairs = append(repairs, RepairDowngradedToText)
	default:
		return nil, repairs, fmt.Errorf("%w: unknown response_type %q", errx.ErrStageOutputInvalid, w.ResponseType)
	}

	if err := p.Check(); err != nil {
		return nil, repairs, fmt.Errorf("%w: %v", errx.ErrStageOutputInvalid, err)
	}
	return p, repairs, nil
}

// acceptChart decodes and checks the transmitted chart. The decoded spec is
// returned even when it is rejected so its title can be reused.
func acceptChart(w model.WirePresentation, payload any) (*chart.Spec, error) {
	if !w.HasChart() {
		return nil, chart.ErrMissingSpec
	}
	spec, err := chart.Decode(w.ChartSpec)
	if err != nil {
		return nil, err
	}
	if err := chart.Validate(spec); err != nil {
		return spec, err
	}
	if err := chart.Traceable(spec, payload); err != nil {
		return spec, err
	}
	return spec, nil
}
