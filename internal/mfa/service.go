package mfa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// cacheKey is the query-cache key for the recovery code set.
func cacheKey() querycache.Key {
	return querycache.NewKey("recovery-codes", "current")
}

// Service exposes the recovery-code operations.
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

// NewService wires the recovery-code operations to the transport and
// cache.
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

// Codes returns the account's recovery codes. Results are cached;
// concurrent callers share one fetch. Servers that redact codes yield a
// set with Masked true and the bullets kept verbatim.
func (s *Service) Codes(ctx context.Context) (*RecoveryCodes, error) {
	return querycache.GetOrFetch(ctx, s.cache, cacheKey(), func(ctx context.Context) (*RecoveryCodes, error) {
		var raw json.RawMessage
		req := api.NewRequest("mfa.recovery_codes", http.MethodGet, "/api/v1/auth/mfa/recovery-codes")
		if err := s.client.Do(ctx, req, &raw); err != nil {
			return nil, err
		}
		return decodeRecoveryCodes(raw)
	})
}

// Generate replaces the recovery code set. The operation invalidates
// every outstanding code, so it requires a step-up token; the idempotency
// key keeps a retried generate from burning two sets.
func (s *Service) Generate(ctx context.Context, reauthToken string) (*RecoveryCodes, error) {
	if reauthToken == "" {
		return nil, apierror.New(apierror.CodeValidation, "recovery code generation requires reauthentication")
	}

	var raw json.RawMessage
	req := api.NewRequest("mfa.recovery_codes_generate", http.MethodPost,
		"/api/v1/auth/mfa/recovery-codes/generate",
		api.WithIdempotencyKey(api.NewIdempotencyKey()),
		api.WithReauth(reauthToken),
	)
	err := s.client.Do(ctx, req, &raw)
	s.cache.Invalidate(cacheKey())
	if err != nil {
		return nil, err
	}

	codes, err := decodeRecoveryCodes(raw)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "recovery codes regenerated", "count", len(codes.Codes))
	return codes, nil
}

// Passcode computes the TOTP passcode for the shared secret at the given
// instant (30 second period, six digits). Automation that owns the
// enrolled secret uses it to answer MFA challenges without a prompt.
func Passcode(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", apierror.New(apierror.CodeValidation, "totp secret is required")
	}
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return "", apierror.Wrap(err, apierror.CodeValidation, "failed to compute TOTP passcode")
	}
	return code, nil
}
