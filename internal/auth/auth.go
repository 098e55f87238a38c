package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token expired")
	ErrMissingIssuer   = errors.New("OIDC issuer is required")
	ErrMissingClientID = errors.New("OIDC client id is required")
	ErrMissingCode     = errors.New("missing auth code")
	ErrMissingVerifier = errors.New("missing code verifier")
	ErrNoAccessToken   = errors.New("no access token returned")
	ErrNoIDToken       = errors.New("no id token returned (required)")
)

// Config describes the hosted identity provider.
type Config struct {
	Issuer      string
	ClientID    string
	RedirectURL string
	Scopes      []string
}

// Tokens is the credential set kept for a signed-in session.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Complete reports whether both bearer tokens are present.
func (t *Tokens) Complete() bool {
	return t != nil && t.AccessToken != "" && t.IDToken != ""
}

// AuthRequest is one authorization-code attempt with PKCE.
type AuthRequest struct {
	URL      string
	State    string
	Verifier string
}

// Service handles the authorization-code flow against the hosted UI.
type Service struct {
	issuer     string
	oauth      *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewService creates an authentication service for cfg.
func NewService(cfg Config) (*Service, error) {
	issuer := strings.TrimRight(strings.TrimSpace(cfg.Issuer), "/")
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, ErrMissingClientID
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	return &Service{
		issuer: issuer,
		oauth: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   issuer + "/oauth2/authorize",
				TokenURL:  issuer + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// Issuer returns the normalized issuer URL.
func (s *Service) Issuer() string {
	return s.issuer
}

// RedirectURL returns the configured callback URL.
func (s *Service) RedirectURL() string {
	return s.oauth.RedirectURL
}

// RevocationURL is the endpoint used to revoke refresh tokens.
func (s *Service) RevocationURL() string {
	return s.issuer + "/oauth2/revoke"
}

// LogoutURL builds the hosted UI logout link that returns to logoutURI.
func (s *Service) LogoutURL(logoutURI string) string {
	q := url.Values{}
	q.Set("client_id", s.oauth.ClientID)
	q.Set("logout_uri", logoutURI)
	return s.issuer + "/logout?" + q.Encode()
}

// NewAuthRequest starts an authorization-code attempt with a fresh state and verifier.
func (s *Service) NewAuthRequest() (*AuthRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	return &AuthRequest{
		URL:      s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}, nil
}

// Exchange trades an authorization code for tokens. Both the access and id
// tokens are required.
func (s *Service) Exchange(ctx context.Context, code, verifier string) (*Tokens, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if verifier == "" {
		return nil, ErrMissingVerifier
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, ErrNoIDToken
	}

	return &Tokens{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Revoke invalidates a refresh token at the identity provider.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("client_id", s.oauth.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RevocationURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("failed to revoke token: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// ParseIDToken reads the identity claims of an id token without verifying
// its signature. The claims are for display and expiry checks only.
func ParseIDToken(raw string) (*models.Claims, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "Bearer ")
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	out := &models.Claims{
		Subject:  sub,
		Username: stringClaim(claims, "cognito:username", "username", "preferred_username"),
		Email:    stringClaim(claims, "email"),
		Groups:   listClaim(claims, "cognito:groups", "groups"),
		Exp:      exp.Unix(),
	}
	return out, nil
}

// CheckExpiry returns ErrExpiredToken once claims have passed their expiry.
func (s *Service) CheckExpiry(claims *models.Claims) error {
	if claims == nil {
		return ErrInvalidToken
	}
	if !s.now().Before(time.Unix(claims.Exp, 0)) {
		return ErrExpiredToken
	}
	return nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// GenerateState returns a random URL-safe value for the OAuth state parameter.
func GenerateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func listClaim(claims jwt.MapClaims, keys ...string) []string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			if v != "" {
				return []string{v}
			}
		}
	}
	return nil
}
