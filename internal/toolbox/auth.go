package toolbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/oauth2"
)

// idTokenLifetime is assumed when a token's expiry cannot be read.
const idTokenLifetime = 55 * time.Minute

// identityFetcher returns a signed identity token for audience.
type identityFetcher func(ctx context.Context, audience string) (string, error)

func metadataIdentity(ctx context.Context, audience string) (string, error) {
	suffix := "instance/service-accounts/default/identity?audience=" + url.QueryEscape(audience) + "&format=full"
	return metadata.GetWithContext(ctx, suffix)
}

// idTokenSource fetches Google-signed identity tokens for the registry
// service from the metadata server.
type idTokenSource struct {
	ctx      context.Context
	audience string
	fetch    identityFetcher
}

// NewIDTokenSource returns a caching token source for audience. The cache
// lives as long as the returned source, so callers create one per session.
func NewIDTokenSource(ctx context.Context, audience string) oauth2.TokenSource {
	return newIDTokenSource(ctx, audience, metadataIdentity)
}

func newIDTokenSource(ctx context.Context, audience string, fetch identityFetcher) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &idTokenSource{ctx: ctx, audience: audience, fetch: fetch})
}

func (s *idTokenSource) Token() (*oauth2.Token, error) {
	raw, err := s.fetch(s.ctx, s.audience)
	if err != nil {
		return nil, fmt.Errorf("fetch identity token: %w", err)
	}
	raw = strings.TrimSpace(raw)
	return &oauth2.Token{
		AccessToken: raw,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(raw),
	}, nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it.
func tokenExpiry(jwt string) time.Time {
	fallback := time.Now().Add(idTokenLifetime)
	parts := strings.Split(jwt, ".")
	if len(parts) != 3 {
		return fallback
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fallback
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return fallback
	}
	return time.Unix(claims.Exp, 0)
}
