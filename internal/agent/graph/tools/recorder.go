package tools

import (
	"sync"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
)

// Recorder keeps the operation calls of one retrieval run in order.
type Recorder struct {
	mu    sync.Mutex
	calls []model.OperationCall
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(call model.OperationCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []model.OperationCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OperationCall, len(r.calls))
	copy(out, r.calls)
	return out
}
