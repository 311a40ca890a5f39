// Package toolbox adapts the database-backed operation registry: it lists the
// parameterised data-access operations of a toolset and invokes them.
package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

var (
	// ErrUnknownOperation is returned when invoking an operation that is not
	// part of the loaded toolset.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrOperationFailed wraps an error reported by the backend for a
	// well-formed request (bad arguments, query failure).
	ErrOperationFailed = errors.New("operation failed")
)

// Parameter describes one argument of an operation.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    *bool  `json:"required,omitempty" yaml:"required,omitempty"`
}

// IsRequired reports whether the parameter must be supplied. Parameters are
// required unless marked otherwise.
func (p Parameter) IsRequired() bool {
	return p.Required == nil || *p.Required
}

// Operation is a named, parameterised data-access function.
type Operation struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Param returns the named parameter.
func (o Operation) Param(name string) (Parameter, bool) {
	for _, p := range o.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Manifest is a loaded toolset.
type Manifest struct {
	ServerVersion string               `json:"serverVersion"`
	Tools         map[string]Operation `json:"tools"`
}

// Operations returns the manifest's operations sorted by name.
func (m *Manifest) Operations() []Operation {
	if m == nil {
		return nil
	}
	ops := make([]Operation, 0, len(m.Tools))
	for name, op := range m.Tools {
		op.Name = name
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Backend is a connection to a registry, bound to one credential.
type Backend interface {
	LoadToolset(ctx context.Context, toolset string) (*Manifest, error)
	Invoke(ctx context.Context, operation string, args map[string]any) (json.RawMessage, error)
}

// Dialer opens a Backend carrying a fresh credential. Each logical session
// dials its own backend so credentials are never shared across requests.
type Dialer interface {
	Dial(ctx context.Context) (Backend, error)
}
