package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingIDToken is returned when a request needs the identity token and none is stored.
var ErrMissingIDToken = errors.New("missing identity token")

// TokenKind selects which stored token authorizes a request.
type TokenKind int

const (
	// AccessToken is used for mutating calls and is the default.
	AccessToken TokenKind = iota
	// IDToken is used for reads that rely on identity-provider group claims.
	IDToken
	// NoToken sends the request without an Authorization header.
	NoToken
)

func (k TokenKind) String() string {
	switch k {
	case IDToken:
		return "id"
	case NoToken:
		return "none"
	default:
		return "access"
	}
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const tokenKindKey contextKey = "token_kind"

// WithTokenKind marks a request context with the token it should carry.
func WithTokenKind(ctx context.Context, kind TokenKind) context.Context {
	return context.WithValue(ctx, tokenKindKey, kind)
}

// TokenKindFromContext returns the token kind for a request, defaulting to AccessToken.
func TokenKindFromContext(ctx context.Context) TokenKind {
	if kind, ok := ctx.Value(tokenKindKey).(TokenKind); ok {
		return kind
	}
	return AccessToken
}

// TokenSource supplies the current bearer tokens.
type TokenSource interface {
	Token(kind TokenKind) string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(kind TokenKind) string

func (f TokenSourceFunc) Token(kind TokenKind) string { return f(kind) }

// BearerTransport authorizes outgoing API requests and reports rejected sessions.
type BearerTransport struct {
	Base   http.RoundTripper
	Tokens TokenSource
	// OnUnauthorized runs after any 401 response.
	OnUnauthorized func(*http.Request)
}

// NewBearerTransport wraps base, defaulting to http.DefaultTransport.
func NewBearerTransport(base http.RoundTripper, tokens TokenSource, onUnauthorized func(*http.Request)) *BearerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BearerTransport{Base: base, Tokens: tokens, OnUnauthorized: onUnauthorized}
}

// RoundTrip implements http.RoundTripper.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	kind := TokenKindFromContext(req.Context())
	switch kind {
	case IDToken:
		token := t.token(kind)
		if token == "" {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, ErrMissingIDToken
		}
		req = withAuthorization(req, token)
	case AccessToken:
		// An explicit Authorization header wins over the stored access token.
		if req.Header.Get("Authorization") == "" {
			if token := t.token(kind); token != "" {
				req = withAuthorization(req, token)
			}
		}
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && kind != NoToken && t.OnUnauthorized != nil {
		t.OnUnauthorized(req)
	}
	return resp, nil
}

func (t *BearerTransport) token(kind TokenKind) string {
	if t.Tokens == nil {
		return ""
	}
	return strings.TrimSpace(t.Tokens.Token(kind))
}

func withAuthorization(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}
