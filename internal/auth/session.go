package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moviesnow/internal/api"
	"moviesnow/internal/auth/tokenstore"
	"moviesnow/pkg/apierror"
)

// refreshSkew treats a token expiring within this window as already
// expired, so requests never go out with a token about to lapse mid-call.
const refreshSkew = 30 * time.Second

// Session holds the logged-in account's tokens, implements the
// transport's TokenSource, and persists credentials through the store so
// separate CLI invocations share one login. Safe for concurrent use.
type Session struct {
	client *api.Client
	store  *tokenstore.Store
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time

	mu    sync.RWMutex
	creds *tokenstore.Credentials
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the structured logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSessionClock overrides the time source, for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession loads any persisted credentials and returns the session. The
// client must not yet have a token source; install this session on it via
// client.SetTokenSource.
func NewSession(client *api.Client, store *tokenstore.Store, opts ...SessionOption) (*Session, error) {
	s := &Session{
		client: client,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.creds = creds
	return s, nil
}

// Token implements api.TokenSource. It returns the current access token,
// refreshing first when the stored one is expired or about to expire. An
// empty token means anonymous.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()

	if creds == nil {
		return "", nil
	}
	if creds.ExpiresAt.IsZero() || s.now().Add(refreshSkew).Before(creds.ExpiresAt) {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		return creds.AccessToken, nil
	}
	return s.Refresh(ctx)
}

// Refresh implements api.TokenSource. Concurrent refreshes collapse into
// a single network call; every waiter receives the same new token. A
// refused refresh token logs the session out locally.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()

	if creds == nil || creds.RefreshToken == "" {
		return "", apierror.New(apierror.CodeUnauthorized, "not logged in")
	}

	var env tokenEnvelope
	req := api.NewRequest("auth.refresh", http.MethodPost, "/api/v1/auth/refresh",
		api.WithAnonymous(),
		api.WithNoRetry(),
		api.WithJSON(map[string]string{"refresh_token": creds.RefreshToken}),
	)
	if err := s.client.Do(ctx, req, &env); err != nil {
		if apierror.HasCode(err, apierror.CodeUnauthorized) {
			// The refresh token was revoked or expired: this login is over.
			s.logger.InfoContext(ctx, "refresh token rejected, clearing stored credentials")
			s.Clear()
			return "", apierror.Wrap(err, apierror.CodeUnauthorized, "session expired, log in again")
		}
		return "", apierror.Wrap(err, apierror.CodeUnauthorized, "token refresh failed")
	}
	if env.AccessToken == "" {
		return "", apierror.New(apierror.CodeInternal, "refresh response carried no access token")
	}

	next := &tokenstore.Credentials{
		Email:        creds.Email,
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		ExpiresAt:    env.expiry(s.now()),
		SessionJTI:   env.sessionJTI(),
	}
	if next.RefreshToken == "" {
		// Server kept the old refresh token instead of rotating.
		next.RefreshToken = creds.RefreshToken
	}
	if next.SessionJTI == "" {
		next.SessionJTI = creds.SessionJTI
	}
	s.Set(next)
	return next.AccessToken, nil
}

// Set installs new credentials in memory and on disk. Persistence
// failures are logged, not fatal: the in-memory session still works.
func (s *Session) Set(creds *tokenstore.Credentials) {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if creds == nil {
		return
	}
	if err := s.store.Save(creds); err != nil {
		s.logger.Warn("failed to persist credentials", "error", err)
	}
}

// Clear drops the credentials from memory and disk.
func (s *Session) Clear() {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Warn("failed to remove credentials file", "error", err)
	}
}

// Current returns the present credentials, or false when logged out.
func (s *Session) Current() (*tokenstore.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, false
	}
	c := *s.creds
	return &c, true
}

// Claims parses the current access token's claims.
func (s *Session) Claims() (*Claims, error) {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()

	if creds == nil {
		return nil, apierror.New(apierror.CodeUnauthorized, "not logged in")
	}
	return ParseClaims(creds.AccessToken)
}
