package nodes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
)

// CollectResult builds the retrieval result. Values come only from recorded
// operation outcomes; the model's final text is read for the irrelevance
// marker and nothing else.
//
//   - the model replied with the irrelevance marker: irrelevant
//   - one or more operations the model called succeeded: data; a single
//     result is passed through, several are keyed by operation name
//   - only failures: error, listing each failure
//   - nothing beyond the up-front discovery: irrelevant
func CollectResult(final *schema.Message, calls []model.OperationCall) model.QueryResult {
	if final != nil && IsIrrelevanceMarker(final.Content) {
		return model.Irrelevant()
	}

	var (
		succeeded []model.OperationCall
		failures  []string
	)
	for _, c := range calls {
		switch {
		case !c.Succeeded():
			failures = append(failures, fmt.Sprintf("%s: %s", c.Name, c.Error))
		case !c.Discovery:
			succeeded = append(succeeded, c)
		}
	}

	switch {
	case len(succeeded) == 1:
		return model.Data(succeeded[0].Result)
	case len(succeeded) > 1:
		merged := make(map[string]json.RawMessage, len(succeeded))
		for _, c := range succeeded {
			key := c.Name
			for n := 2; ; n++ {
				if _, taken := merged[key]; !taken {
					break
				}
				key = fmt.Sprintf("%s#%d", c.Name, n)
			}
			merged[key] = c.Result
		}
		res, err := model.DataOf(merged)
		if err != nil {
			return model.Failed(err.Error())
		}
		return res
	case len(failures) > 0:
		return model.Failed(strings.Join(failures, "; "))
	}
	return model.Irrelevant()
}

// IsIrrelevanceMarker reports whether content is the {"status":"irrelevant"}
// reply, possibly fenced or surrounded by prose.
func IsIrrelevanceMarker(content string) bool {
	s := strings.TrimSpace(content)
	if s == "" {
		return false
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return strings.EqualFold(strings.Trim(s, "`\"' .\n"), model.StatusIrrelevant)
	}
	var marker struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &marker); err != nil {
		return false
	}
	return strings.EqualFold(marker.Status, model.StatusIrrelevant)
}
