package model

import (
	"github.com/cloudwego/eino/schema"
)

// RetrievalState stores per-invocation state for the retrieval graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen inside Eino state handlers
//     (WithStatePreHandler, WithStatePostHandler) or compose.ProcessState,
//     which serialise access, so no extra locking is needed.
//   - Operation outcomes are not kept here; they are recorded by the
//     per-request tool set (see tools.Recorder).
type RetrievalState struct {
	SessionID            string
	History              []*schema.Message // mutated only inside Eino state handlers
	ToolCallCount        int               // maintained in handlers (reset/increment)
	ToolCallLimitReached bool              // set when tool call limit is exceeded
	ToolCallIDSeq        int               // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// PresentationState stores per-invocation state for the presentation graph.
type PresentationState struct {
	SessionID string
	Question  string
	Result    QueryResult
	// Attempt is 1-based; Feedback carries the rejection reason of the
	// previous attempt, if any.
	Attempt  int
	Feedback string

	TotalCostUSD float64
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	// History holds earlier questions of the session, oldest first.
	History []string `json:"history,omitempty"`
}

// StageHandoff is what the retrieval stage passes to the presentation stage.
type StageHandoff struct {
	SessionID  string
	Question   string
	Result     QueryResult
	Operations []OperationCall
}

// PresentationInput is the input of one presentation attempt.
type PresentationInput struct {
	SessionID string
	Question  string
	Result    QueryResult
	Attempt   int
	Feedback  string
}

// PipelineOutput is the coordinator's result for one question.
type PipelineOutput struct {
	Presentation *FinalPresentation
	Result       QueryResult
	Operations   []OperationCall
}
