package sessions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// cacheKey is the query-cache key for the session list.
func cacheKey() querycache.Key {
	return querycache.NewKey("sessions", "list")
}

// Service exposes session listing and revocation.
type Service struct {
	client *api.Client
	cache  *querycache.Cache
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the session operations to the transport and cache.
func NewService(client *api.Client, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		client: client,
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns the account's sessions, current first, then by last
// activity. Results are cached; concurrent callers share one fetch.
func (s *Service) List(ctx context.Context) ([]Session, error) {
	return querycache.GetOrFetch(ctx, s.cache, cacheKey(), func(ctx context.Context) ([]Session, error) {
		return s.fetch(ctx)
	})
}

func (s *Service) fetch(ctx context.Context) ([]Session, error) {
	var raw json.RawMessage
	req := api.NewRequest("sessions.list", http.MethodGet, "/api/v1/auth/sessions")
	if err := s.client.Do(ctx, req, &raw); err != nil {
		return nil, err
	}
	sessions, _, err := decodeSessions(raw)
	return sessions, err
}

// Revoke terminates the session identified by jti. The cached list is
// updated optimistically: the entry disappears immediately and comes back
// if the server refuses. Revoking the current session is rejected before
// any network call; that is what Logout is for.
func (s *Service) Revoke(ctx context.Context, jti, reauthToken string) error {
	if jti == "" {
		return apierror.New(apierror.CodeValidation, "session jti is required")
	}
	if cached, ok := querycache.Lookup[[]Session](s.cache, cacheKey()); ok {
		for _, session := range cached {
			if session.JTI == jti && session.Current {
				return apierror.New(apierror.CodeInvalidInput, "refusing to revoke the current session, use logout")
			}
		}
	}

	key := api.NewIdempotencyKey()
	return querycache.RunMutation(ctx, s.cache, querycache.Mutation[[]Session]{
		Key: cacheKey(),
		Apply: func(current []Session) []Session {
			out := make([]Session, 0, len(current))
			for _, session := range current {
				if session.JTI != jti {
					out = append(out, session)
				}
			}
			return out
		},
		Call: func(ctx context.Context) error {
			req := api.NewRequest("sessions.revoke", http.MethodDelete,
				"/api/v1/auth/sessions/"+url.PathEscape(jti),
				api.WithIdempotencyKey(key),
				api.WithReauth(reauthToken),
			)
			return s.client.Do(ctx, req, nil)
		},
	})
}

// revokeOthersEnvelope tolerates the bulk-revocation response spellings.
type revokeOthersEnvelope struct {
	RevokedCount *int `json:"revoked_count"`
	Revoked      *int `json:"revoked"`
	Count        *int `json:"count"`
	FailedCount  *int `json:"failed_count"`
	Failed       *int `json:"failed"`
}

// RevokeOthers terminates every session except the current one. Partial
// failure is reported in the outcome, not as an error — unless nothing
// was revoked at all.
func (s *Service) RevokeOthers(ctx context.Context, reauthToken string) (*RevokeOutcome, error) {
	var env revokeOthersEnvelope
	req := api.NewRequest("sessions.revoke_others", http.MethodDelete, "/api/v1/auth/sessions",
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithReauth(reauthToken),
	)
	if err := s.client.Do(ctx, req, &env); err != nil {
		return nil, err
	}

	outcome := &RevokeOutcome{}
	switch {
	case env.RevokedCount != nil:
		outcome.RevokedCount = *env.RevokedCount
	case env.Revoked != nil:
		outcome.RevokedCount = *env.Revoked
	case env.Count != nil:
		outcome.RevokedCount = *env.Count
	}
	switch {
	case env.FailedCount != nil:
		outcome.FailedCount = *env.FailedCount
	case env.Failed != nil:
		outcome.FailedCount = *env.Failed
	}

	s.cache.Invalidate(cacheKey())
	if outcome.RevokedCount == 0 && outcome.FailedCount > 0 {
		return outcome, apierror.New(apierror.CodeUnavailable, "no session could be revoked")
	}
	if outcome.FailedCount > 0 {
		s.logger.WarnContext(ctx, "some sessions could not be revoked",
			"revoked", outcome.RevokedCount, "failed", outcome.FailedCount)
	}
	return outcome, nil
}
