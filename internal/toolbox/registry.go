package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// Registry lists and invokes the operations of one toolset. The manifest is
// the only state shared between requests; it is read-mostly and cached.
type Registry struct {
	cfg    Config
	dialer Dialer
	cache  *cache.Cache
}

func NewRegistry(cfg Config, dialer Dialer) *Registry {
	ttl := cfg.ManifestTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Registry{
		cfg:    cfg,
		dialer: dialer,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// DiscoveryOperation is the name of the schema-discovery operation.
func (r *Registry) DiscoveryOperation() string {
	return r.cfg.DiscoveryTool
}

// DiscoveryArgs are the arguments discovery is invoked with.
func (r *Registry) DiscoveryArgs() map[string]any {
	args, err := r.cfg.discoveryArgs()
	if err != nil {
		return map[string]any{}
	}
	return args
}

// ListOperations returns the toolset's operations. A registry that cannot be
// reached yields an empty set and a warning instead of an error; callers
// treat "no operations" as a valid state.
func (r *Registry) ListOperations(ctx context.Context) []Operation {
	if m, ok := r.cache.Get(r.cfg.Toolset); ok {
		return m.(*Manifest).Operations()
	}

	m, err := r.load(ctx)
	if err != nil {
		metrics.ObserveRegistryLoadFailure()
		logx.Warn().
			Err(err).
			Str("toolset", r.cfg.Toolset).
			Msg("Operation registry unavailable; continuing with an empty operation set")
		return nil
	}
	r.cache.SetDefault(r.cfg.Toolset, m)
	logx.Debug().
		Str("toolset", r.cfg.Toolset).
		Str("server_version", m.ServerVersion).
		Int("operations", len(m.Tools)).
		Msg("Operation registry loaded")
	return m.Operations()
}

func (r *Registry) load(ctx context.Context) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.LoadTimeout)
	defer cancel()

	backend, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, errx.WrapToolbox(err)
	}
	m, err := backend.LoadToolset(ctx, r.cfg.Toolset)
	if err != nil {
		return nil, errx.WrapToolbox(err)
	}
	if m == nil {
		return nil, errors.New("registry returned no manifest")
	}
	return m, nil
}

// Session opens a per-request view of the registry with its own credential.
func (r *Registry) Session(ctx context.Context, sessionID string) (*Session, error) {
	ops := r.ListOperations(ctx)
	byName := make(map[string]Operation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}
	if len(ops) == 0 {
		return &Session{id: sessionID, ops: byName, timeout: r.cfg.InvokeTimeout}, nil
	}

	backend, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, errx.WrapToolbox(fmt.Errorf("dial registry: %w", err))
	}
	return &Session{
		id:        sessionID,
		backend:   backend,
		ops:       byName,
		ordered:   ops,
		timeout:   r.cfg.InvokeTimeout,
		discovery: r.DiscoveryOperation(),
		discArgs:  r.DiscoveryArgs(),
	}, nil
}

// Session invokes operations on behalf of one request.
type Session struct {
	id        string
	backend   Backend
	ops       map[string]Operation
	ordered   []Operation
	timeout   time.Duration
	discovery string
	discArgs  map[string]any
}

// Operations returns the operations available to this session.
func (s *Session) Operations() []Operation {
	return s.ordered
}

// Discovery returns the discovery operation and its arguments when the
// toolset provides one.
func (s *Session) Discovery() (Operation, map[string]any, bool) {
	op, ok := s.ops[s.discovery]
	if !ok {
		return Operation{}, nil, false
	}
	args := make(map[string]any, len(s.discArgs))
	for k, v := range s.discArgs {
		args[k] = v
	}
	return op, args, true
}

// Invoke runs one operation with a bounded wait.
func (s *Session) Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if _, ok := s.ops[name]; !ok || s.backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.backend.Invoke(ctx, name, args)
	elapsed := time.Since(start)
	metrics.ObserveOperation(name, elapsed, err)

	if err != nil {
		logx.Warn().
			Err(err).
			Str("session_id", s.id).
			Str("operation", name).
			Dur("elapsed", elapsed).
			Msg("Operation invocation failed")
		if errors.Is(err, ErrOperationFailed) {
			return nil, err
		}
		return nil, errx.WrapToolbox(err)
	}
	logx.Debug().
		Str("session_id", s.id).
		Str("operation", name).
		Dur("elapsed", elapsed).
		Int("bytes", len(out)).
		Msg("Operation invoked")
	return out, nil
}
