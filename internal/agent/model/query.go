package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind tags the variant held by a QueryResult.
type ResultKind int

const (
	ResultIrrelevant ResultKind = iota
	ResultData
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultData:
		return "data"
	case ResultError:
		return "error"
	default:
		return "irrelevant"
	}
}

// StatusIrrelevant is the wire marker for a question no operation can answer.
const StatusIrrelevant = "irrelevant"

// QueryResult is the retrieval stage's sole output: exactly one of the
// irrelevance marker, a data payload or an error reason. The zero value is
// the irrelevance marker. Values are immutable once built.
type QueryResult struct {
	kind    ResultKind
	payload json.RawMessage
	reason  string
}

// Irrelevant builds the irrelevance marker.
func Irrelevant() QueryResult {
	return QueryResult{kind: ResultIrrelevant}
}

// Data wraps a JSON payload returned by one or more operations. A null or
// empty payload becomes an empty array so that "no rows" stays data.
func Data(payload json.RawMessage) QueryResult {
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("[]")
	}
	cp := make(json.RawMessage, len(payload))
	copy(cp, payload)
	return QueryResult{kind: ResultData, payload: cp}
}

// DataOf marshals v into a data result.
func DataOf(v any) (QueryResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return QueryResult{}, fmt.Errorf("marshal query payload: %w", err)
	}
	return Data(b), nil
}

// Failed builds the error variant.
func Failed(reason string) QueryResult {
	if reason == "" {
		reason = "data retrieval failed"
	}
	return QueryResult{kind: ResultError, reason: reason}
}

func (r QueryResult) Kind() ResultKind { return r.kind }

func (r QueryResult) IsIrrelevant() bool { return r.kind == ResultIrrelevant }

func (r QueryResult) IsData() bool { return r.kind == ResultData }

func (r QueryResult) IsError() bool { return r.kind == ResultError }

// Payload returns a copy of the raw data payload; nil unless IsData.
func (r QueryResult) Payload() json.RawMessage {
	if r.kind != ResultData {
		return nil
	}
	cp := make(json.RawMessage, len(r.payload))
	copy(cp, r.payload)
	return cp
}

// Decoded returns the payload decoded into generic JSON values.
func (r QueryResult) Decoded() (any, error) {
	if r.kind != ResultData {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.payload, &v); err != nil {
		return nil, fmt.Errorf("decode query payload: %w", err)
	}
	return v, nil
}

// Reason returns the failure reason of the error variant.
func (r QueryResult) Reason() string { return r.reason }

// MarshalJSON renders the result in the form the presentation stage reads:
// the raw payload for data, or a status object for the other variants.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case ResultData:
		return r.payload, nil
	case ResultError:
		return json.Marshal(map[string]string{"status": "error", "error": r.reason})
	default:
		return json.Marshal(map[string]string{"status": StatusIrrelevant})
	}
}

// OperationCall records one operation invocation made while answering a question.
type OperationCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Discovery bool            `json:"discovery,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
}

// Succeeded reports whether the invocation returned a result.
func (c OperationCall) Succeeded() bool {
	return c.Error == ""
}
