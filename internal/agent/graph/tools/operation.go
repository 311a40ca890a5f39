package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
)

// Invoker runs a registry operation. *toolbox.Session implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// OperationTool exposes one registry operation to the retriever model.
// It never returns an error: failures are reported to the model as an
// {"error": ...} object and recorded, so one bad call cannot abort the stage.
type OperationTool struct {
	op        toolbox.Operation
	invoker   Invoker
	recorder  *Recorder
	discovery bool
}

// NewOperationTool wraps op. discovery marks the schema-discovery operation.
func NewOperationTool(op toolbox.Operation, invoker Invoker, recorder *Recorder, discovery bool) *OperationTool {
	return &OperationTool{op: op, invoker: invoker, recorder: recorder, discovery: discovery}
}

// NewOperationTools wraps every operation of a session.
func NewOperationTools(ops []toolbox.Operation, invoker Invoker, recorder *Recorder, discoveryName string) []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(ops))
	for _, op := range ops {
		out = append(out, NewOperationTool(op, invoker, recorder, op.Name == discoveryName))
	}
	return out
}

// GetToolInfos collects the tool infos to bind to the retriever model.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (t *OperationTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	params := make(map[string]*schema.ParameterInfo, len(t.op.Parameters))
	for _, p := range t.op.Parameters {
		params[p.Name] = &schema.ParameterInfo{
			Type:     dataType(p.Type),
			Desc:     p.Description,
			Required: p.IsRequired(),
		}
		if params[p.Name].Type == schema.Array {
			params[p.Name].ElemInfo = &schema.ParameterInfo{Type: schema.String}
		}
	}
	desc := strings.TrimSpace(t.op.Description)
	if desc == "" {
		desc = t.op.Name
	}
	return &schema.ToolInfo{
		Name:        t.op.Name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *OperationTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	call, out := t.Run(ctx, argumentsInJSON)
	if t.recorder != nil {
		t.recorder.Record(call)
	}
	return out, nil
}

// Run invokes the operation and returns the call record together with the
// text handed back to the model.
func (t *OperationTool) Run(ctx context.Context, argumentsInJSON string) (model.OperationCall, string) {
	call := model.OperationCall{Name: t.op.Name, Discovery: t.discovery}

	args := map[string]any{}
	if s := strings.TrimSpace(argumentsInJSON); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			call.Error = fmt.Sprintf("arguments are not a JSON object: %v", err)
			return call, errorResult(call.Error)
		}
	}
	if b, err := json.Marshal(args); err == nil {
		call.Arguments = b
	}

	start := time.Now()
	out, err := t.invoker.Invoke(ctx, t.op.Name, args)
	call.Duration = time.Since(start)
	if err != nil {
		call.Error = describe(err)
		return call, errorResult(call.Error)
	}
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	call.Result = out
	return call, string(out)
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, toolbox.ErrUnknownOperation):
		return "operation is not available"
	}
	return err.Error()
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// UnknownToolResult is returned to the model for a call naming no operation.
func UnknownToolResult(name string) string {
	b, _ := json.Marshal(map[string]string{"error": "unknown_tool", "name": name, "note": "ignored"})
	return string(b)
}

func dataType(t string) schema.DataType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "integer", "int":
		return schema.Integer
	case "float", "number", "numeric":
		return schema.Number
	case "boolean", "bool":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object", "map":
		return schema.Object
	default:
		return schema.String
	}
}

// Names returns the sorted operation names of ts.
func Names(ctx context.Context, ts []tool.BaseTool) []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		if info, err := t.Info(ctx); err == nil {
			names = append(names, info.Name)
		}
	}
	sort.Strings(names)
	return names
}

var _ tool.InvokableTool = (*OperationTool)(nil)
