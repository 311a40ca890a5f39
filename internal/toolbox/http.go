package toolbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const maxResponseBytes = 8 << 20

// HTTPDialer dials the remote registry service over its REST API.
type HTTPDialer struct {
	baseURL string
	client  *http.Client
	// tokens creates the per-session credential; nil disables authentication.
	tokens func(ctx context.Context) oauth2.TokenSource
}

// HTTPOption configures an HTTPDialer.
type HTTPOption func(*HTTPDialer)

// WithHTTPClient sets the base client requests are sent with.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(d *HTTPDialer) { d.client = c }
}

// WithTokenSource authenticates every dialled backend with a token source
// created for it.
func WithTokenSource(factory func(ctx context.Context) oauth2.TokenSource) HTTPOption {
	return func(d *HTTPDialer) { d.tokens = factory }
}

// WithIdentityTokens authenticates with Google-signed identity tokens whose
// audience is the service URL.
func WithIdentityTokens() HTTPOption {
	return func(d *HTTPDialer) {
		d.tokens = func(ctx context.Context) oauth2.TokenSource {
			return NewIDTokenSource(ctx, d.baseURL)
		}
	}
}

func NewHTTPDialer(baseURL string, opts ...HTTPOption) *HTTPDialer {
	d := &HTTPDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial returns a backend with its own credential cache.
func (d *HTTPDialer) Dial(ctx context.Context) (Backend, error) {
	client := d.client
	if d.tokens != nil {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client = &http.Client{
			Timeout:   d.client.Timeout,
			Transport: &oauth2.Transport{Source: d.tokens(ctx), Base: base},
		}
	}
	return &httpBackend{baseURL: d.baseURL, client: client}, nil
}

type httpBackend struct {
	baseURL string
	client  *http.Client
}

func (b *httpBackend) LoadToolset(ctx context.Context, toolset string) (*Manifest, error) {
	endpoint := b.baseURL + "/api/toolset/" + url.PathEscape(toolset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	body, err := b.do(req)
	if err != nil {
		return nil, fmt.Errorf("load toolset %q: %w", toolset, err)
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode toolset %q: %w", toolset, err)
	}
	for name, op := range m.Tools {
		op.Name = name
		m.Tools[name] = op
	}
	return &m, nil
}

func (b *httpBackend) Invoke(ctx context.Context, operation string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	endpoint := b.baseURL + "/api/tool/" + url.PathEscape(operation) + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := b.do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", operation, err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %q response: %w", operation, err)
	}
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		return nil, fmt.Errorf("%w: %s: %s", ErrOperationFailed, operation, errorText(resp.Error))
	}
	return unwrapResult(resp.Result), nil
}

func (b *httpBackend) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	res, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 300 {
		if res.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: status %d: %s", ErrOperationFailed, res.StatusCode, snippet(body))
		}
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, snippet(body))
	}
	return body, nil
}

// unwrapResult turns the service's string-encoded result into JSON. A string
// that is not itself JSON is kept as a JSON string.
func unwrapResult(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return raw
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
