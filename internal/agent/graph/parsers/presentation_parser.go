package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

const (
	maxContentLen = 256 * 1024
	maxErrSnippet = 200
)

var chartMemberSchema = map[string]any{
	"type": []any{"string", "object", "null"},
}

// presentationSchema is the output contract of the presenter model.
var presentationSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []any{"response_type", "summary_text"},
	"properties": map[string]any{
		"response_type": map[string]any{
			"type": "string",
			"enum": responseTypeEnum(),
		},
		"summary_text":   map[string]any{"type": "string", "minLength": 1},
		"chart_spec":     chartMemberSchema,
		"vega_lite_spec": chartMemberSchema,
	},
})

// ParsePresentation extracts the presenter's JSON object from content and
// validates it against the output contract. Code fences and prose around the
// object are tolerated. Every failure wraps errx.ErrStageOutputInvalid.
func ParsePresentation(content string) (out model.WirePresentation, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "presentation_parser").Msgf("panic recovered: %v", r)
			out = model.WirePresentation{}
			err = fmt.Errorf("%w: parser panic", errx.ErrStageOutputInvalid)
		}
	}()

	if len(content) > maxContentLen {
		return model.WirePresentation{}, fmt.Errorf("%w: output of %d bytes exceeds limit", errx.ErrStageOutputInvalid, len(content))
	}

	obj, ok := extractObject(content)
	if !ok {
		return model.WirePresentation{}, fmt.Errorf("%w: no JSON object in output %q", errx.ErrStageOutputInvalid, snippet(content))
	}

	res, err := gojsonschema.Validate(presentationSchema, gojsonschema.NewStringLoader(obj))
	if err != nil {
		return model.WirePresentation{}, fmt.Errorf("%w: %v", errx.ErrStageOutputInvalid, err)
	}
	if !res.Valid() {
		problems := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			problems = append(problems, e.String())
		}
		return model.WirePresentation{}, fmt.Errorf("%w: %s", errx.ErrStageOutputInvalid, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return model.WirePresentation{}, fmt.Errorf("%w: %v", errx.ErrStageOutputInvalid, err)
	}
	return out, nil
}

// extractObject returns the first complete JSON object in s. Text after the
// object is ignored, braces included.
func extractObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	for offset := 0; offset < len(s); {
		i := strings.IndexByte(s[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&obj); err == nil {
			return string(obj), true
		}
		offset = start + 1
	}
	return "", false
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}
