package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(operationCallsTotal.WithLabelValues("monthly-revenue", "error"))
	ObserveOperation("monthly-revenue", 20*time.Millisecond, errors.New("timeout"))
	after := testutil.ToFloat64(operationCallsTotal.WithLabelValues("monthly-revenue", "error"))
	assert.Equal(t, before+1, after)
}

func TestObserveLLMCostIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(llmCostUSDTotal.WithLabelValues("gemini-test"))
	ObserveLLMCost("gemini-test", 0)
	ObserveLLMCost("gemini-test", 0.5)
	assert.InDelta(t, before+0.5, testutil.ToFloat64(llmCostUSDTotal.WithLabelValues("gemini-test")), 1e-9)
}

func TestObserveHTTPRequest(t *testing.T) {
	ObserveHTTPRequest("POST", "/run", 200, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/run", "200")))
}
