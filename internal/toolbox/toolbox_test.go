package toolbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const manifestJSON = `{
  "serverVersion": "0.9.0",
  "tools": {
    "list-tables": {"description": "List tables and columns", "parameters": []},
    "monthly-revenue": {"description": "Revenue per month", "parameters": [
      {"name": "start_date", "type": "string", "description": "inclusive YYYY-MM-DD"},
      {"name": "end_date", "type": "string", "description": "exclusive YYYY-MM-DD", "required": false}
    ]}
  }
}`

type fakeToolbox struct {
	manifestHits atomic.Int32
	lastAuth     atomic.Value
}

func (f *fakeToolbox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/toolset/ecommerce-toolset", func(w http.ResponseWriter, r *http.Request) {
		f.manifestHits.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(manifestJSON))
	})
	mux.HandleFunc("POST /api/tool/monthly-revenue/invoke", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		if args["start_date"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid date"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"result": `[{"month":"Jan","revenue":29230.95},{"month":"Feb","revenue":31877.4}]`,
		})
	})
	mux.HandleFunc("POST /api/tool/list-tables/invoke", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"permission denied"}`))
	})
	return mux
}

func testConfig(url string) Config {
	return Config{
		URL:           url,
		Toolset:       "ecommerce-toolset",
		DiscoveryTool: "list-tables",
		DiscoveryArgs: `{"schema":"public"}`,
		InvokeTimeout: 2 * time.Second,
		LoadTimeout:   2 * time.Second,
		ManifestTTL:   time.Minute,
	}
}

func TestRegistryListAndInvoke(t *testing.T) {
	fake := &fakeToolbox{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	reg := NewRegistry(testConfig(srv.URL), NewHTTPDialer(srv.URL))
	ctx := context.Background()

	ops := reg.ListOperations(ctx)
	require.Len(t, ops, 2)
	assert.Equal(t, "list-tables", ops[0].Name)
	assert.Equal(t, "monthly-revenue", ops[1].Name)
	p, ok := ops[1].Param("end_date")
	require.True(t, ok)
	assert.False(t, p.IsRequired())

	// second listing is served from cache
	reg.ListOperations(ctx)
	assert.Equal(t, int32(1), fake.manifestHits.Load())

	sess, err := reg.Session(ctx, "s-1")
	require.NoError(t, err)

	out, err := sess.Invoke(ctx, "monthly-revenue", map[string]any{"start_date": "2024-01-01"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"month":"Jan","revenue":29230.95},{"month":"Feb","revenue":31877.4}]`, string(out))

	_, err = sess.Invoke(ctx, "monthly-revenue", map[string]any{"start_date": "bad"})
	assert.ErrorIs(t, err, ErrOperationFailed)

	_, err = sess.Invoke(ctx, "list-tables", nil)
	assert.ErrorIs(t, err, ErrOperationFailed)

	_, err = sess.Invoke(ctx, "drop-tables", nil)
	assert.ErrorIs(t, err, ErrUnknownOperation)

	op, args, ok := sess.Discovery()
	require.True(t, ok)
	assert.Equal(t, "list-tables", op.Name)
	assert.Equal(t, map[string]any{"schema": "public"}, args)
}

func TestRegistryUnavailableYieldsEmptySet(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	reg := NewRegistry(testConfig(url), NewHTTPDialer(url))
	assert.Empty(t, reg.ListOperations(context.Background()))

	sess, err := reg.Session(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Operations())
	_, _, ok := sess.Discovery()
	assert.False(t, ok)
	_, err = sess.Invoke(context.Background(), "monthly-revenue", nil)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestRegistryServerErrorYieldsEmptySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg := NewRegistry(testConfig(srv.URL), NewHTTPDialer(srv.URL))
	assert.Empty(t, reg.ListOperations(context.Background()))
}

func TestDialerAttachesPerSessionToken(t *testing.T) {
	fake := &fakeToolbox{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	var issued atomic.Int32
	dialer := NewHTTPDialer(srv.URL, WithTokenSource(func(ctx context.Context) oauth2.TokenSource {
		n := issued.Add(1)
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-" + string(rune('0'+n)), TokenType: "Bearer"})
	}))
	reg := NewRegistry(testConfig(srv.URL), dialer)
	ctx := context.Background()

	require.NotEmpty(t, reg.ListOperations(ctx))
	assert.Equal(t, "Bearer tok-1", fake.lastAuth.Load())

	first, err := reg.Session(ctx, "a")
	require.NoError(t, err)
	second, err := reg.Session(ctx, "b")
	require.NoError(t, err)

	_, err = first.Invoke(ctx, "monthly-revenue", map[string]any{"start_date": "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-2", fake.lastAuth.Load())

	_, err = second.Invoke(ctx, "monthly-revenue", map[string]any{"start_date": "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-3", fake.lastAuth.Load())
}

func TestIDTokenSource(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, _ := json.Marshal(map[string]any{"aud": "https://toolbox", "exp": exp.Unix()})
	jwt := "header." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"

	var calls int
	ts := newIDTokenSource(context.Background(), "https://toolbox", func(ctx context.Context, audience string) (string, error) {
		calls++
		assert.Equal(t, "https://toolbox", audience)
		return jwt + "\n", nil
	})

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, jwt, tok.AccessToken)
	assert.True(t, tok.Expiry.Equal(exp))

	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "valid token is reused")

	failing := newIDTokenSource(context.Background(), "a", func(context.Context, string) (string, error) {
		return "", errors.New("metadata: not on GCE")
	})
	_, err = failing.Token()
	assert.Error(t, err)
}

func TestTokenExpiryFallback(t *testing.T) {
	got := tokenExpiry("not-a-jwt")
	assert.WithinDuration(t, time.Now().Add(idTokenLifetime), got, time.Minute)
}

func TestUnwrapResult(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, string(unwrapResult(json.RawMessage(`"[{\"a\":1}]"`))))
	assert.Equal(t, `null`, string(unwrapResult(json.RawMessage(`"null"`))))
	assert.Equal(t, `"plain text"`, string(unwrapResult(json.RawMessage(`"plain text"`))))
	assert.Equal(t, `{"a":1}`, string(unwrapResult(json.RawMessage(`{"a":1}`))))
	assert.Equal(t, `null`, string(unwrapResult(nil)))
}
