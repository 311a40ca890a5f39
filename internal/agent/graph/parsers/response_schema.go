package parsers

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
)

func responseTypeEnum() []any {
	enum := make([]any, len(model.ResponseTypes))
	for i, t := range model.ResponseTypes {
		enum[i] = string(t)
	}
	return enum
}

// PresentationResponseSchema is the output shape the presenter model is
// constrained to generate. ParsePresentation checks the same contract after
// generation.
func PresentationResponseSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:     openapi3.TypeObject,
		Required: []string{"response_type", "summary_text"},
		Properties: openapi3.Schemas{
			"response_type": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:        openapi3.TypeString,
				Enum:        responseTypeEnum(),
				Description: "visual for a chart answer, text for a prose answer, unable_to_answer when there is no usable data",
			}),
			"summary_text": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:        openapi3.TypeString,
				Description: "Plain-language answer to the question",
			}),
			"chart_spec": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:        openapi3.TypeString,
				Nullable:    true,
				Description: "Vega-Lite v5 chart encoded as a JSON string; null unless response_type is visual",
			}),
		},
	}
}
