// Package session holds the signed-in identity and its tokens. A Session is
// created once per process and passed to everything that needs the caller's
// role; there is no package-level session state.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

var (
	ErrNotSignedIn      = errors.New("not signed in")
	ErrIncompleteTokens = errors.New("access and id tokens are both required")
	ErrForbidden        = errors.New("role is not permitted to perform this action")
)

// Profile loads the backend record for the current tokens.
type Profile interface {
	Me(ctx context.Context) (*models.User, error)
}

// Revoker invalidates refresh tokens at the identity provider.
type Revoker interface {
	Revoke(ctx context.Context, refreshToken string) error
}

// Session is safe for concurrent use; the HTTP transport reads tokens from
// request goroutines.
type Session struct {
	mu      sync.RWMutex
	store   TokenStore
	revoker Revoker
	tokens  *auth.Tokens
	user    *models.User
}

// Option configures a Session.
type Option func(*Session)

// WithRevoker revokes the refresh token on sign-out.
func WithRevoker(r Revoker) Option {
	return func(s *Session) { s.revoker = r }
}

// New creates a signed-out session backed by store.
func New(store TokenStore, opts ...Option) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Session{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap restores stored tokens and loads the user. Any failure clears the
// stored tokens and leaves the session signed out.
func (s *Session) Bootstrap(ctx context.Context, profile Profile) error {
	tokens, err := s.store.Load()
	if err != nil {
		log.WithError(err).Warn("Discarding unreadable stored tokens")
		s.clear()
		return fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	if !tokens.Complete() {
		s.clear()
		return ErrNotSignedIn
	}
	return s.establish(ctx, tokens, profile)
}

// SignInWithTokens stores fresh tokens and loads the user.
func (s *Session) SignInWithTokens(ctx context.Context, tokens *auth.Tokens, profile Profile) error {
	if !tokens.Complete() {
		return ErrIncompleteTokens
	}
	if err := s.store.Save(tokens); err != nil {
		return err
	}
	return s.establish(ctx, tokens, profile)
}

func (s *Session) establish(ctx context.Context, tokens *auth.Tokens, profile Profile) error {
	s.mu.Lock()
	cp := *tokens
	s.tokens = &cp
	s.user = nil
	s.mu.Unlock()

	me, err := profile.Me(ctx)
	if err != nil {
		s.clear()
		return fmt.Errorf("failed to load profile: %w", err)
	}

	s.mu.Lock()
	s.user = me
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"user": me.DisplayName(),
		"role": me.Role,
	}).Info("Signed in")
	return nil
}

// SignOut forgets the user and tokens, in memory and on disk. The refresh
// token is revoked when a Revoker is configured.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.RLock()
	var refresh string
	if s.tokens != nil {
		refresh = s.tokens.RefreshToken
	}
	s.mu.RUnlock()

	if s.revoker != nil && refresh != "" {
		if err := s.revoker.Revoke(ctx, refresh); err != nil {
			log.WithError(err).Warn("Failed to revoke refresh token")
		}
	}
	return s.clear()
}

// HandleUnauthorized signs out after the backend rejects the session.
func (s *Session) HandleUnauthorized(req *http.Request) {
	log.WithField("path", req.URL.Path).Warn("Session rejected by backend, signing out")
	if err := s.clear(); err != nil {
		log.WithError(err).Error("Failed to clear stored tokens")
	}
}

func (s *Session) clear() error {
	s.mu.Lock()
	s.tokens = nil
	s.user = nil
	s.mu.Unlock()
	return s.store.Clear()
}

// Token implements middleware.TokenSource.
func (s *Session) Token(kind middleware.TokenKind) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	switch kind {
	case middleware.IDToken:
		return s.tokens.IDToken
	case middleware.AccessToken:
		return s.tokens.AccessToken
	default:
		return ""
	}
}

// SignedIn reports whether a user is loaded.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the signed-in user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Role is the signed-in role, or empty when signed out.
func (s *Session) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return models.ParseRole(string(s.user.Role))
}

// Features lists the features the current role may open; none when signed out.
func (s *Session) Features() []models.Feature {
	if !s.SignedIn() {
		return nil
	}
	return models.AllowedFeatures(s.Role())
}

// CanAccess reports whether the current role may open feature.
func (s *Session) CanAccess(feature models.Feature) bool {
	return s.SignedIn() && models.CanAccess(s.Role(), feature)
}

// Authorize checks that the session may perform action.
func (s *Session) Authorize(action string) (models.User, error) {
	user, ok := s.User()
	if !ok {
		return models.User{}, ErrNotSignedIn
	}
	user.Role = models.ParseRole(string(user.Role))
	if !user.HasPermission(action) {
		return user, fmt.Errorf("%w: %s cannot %s", ErrForbidden, user.Role, action)
	}
	return user, nil
}
