package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	"moviesnow/internal/api"
	"moviesnow/internal/auth/tokenstore"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

// Service exposes the authentication operations.
type Service struct {
	client  *api.Client
	session *Session
	cache   *querycache.Cache
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the auth operations to the transport, the session and
// the query cache (cleared on logout).
func NewService(client *api.Client, session *Session, cache *querycache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		client:  client,
		session: session,
		cache:   cache,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// loginRequest is the credential submission body. The second factor
// fields are set only on the MFA retry.
type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Passcode     string `json:"passcode,omitempty"`
	RecoveryCode string `json:"recovery_code,omitempty"`
}

// LoginOption supplies a second factor for accounts with MFA enabled.
type LoginOption func(*loginOptions)

type loginOptions struct {
	passcode     string
	totpSecret   string
	recoveryCode string
}

// WithPasscode answers an MFA challenge with a user-supplied TOTP code.
func WithPasscode(code string) LoginOption {
	return func(o *loginOptions) { o.passcode = code }
}

// WithTOTPSecret answers an MFA challenge by computing the current TOTP
// passcode from the shared secret. Used by automation that owns the
// enrolled secret.
func WithTOTPSecret(secret string) LoginOption {
	return func(o *loginOptions) { o.totpSecret = secret }
}

// WithRecoveryCode answers an MFA challenge by consuming a recovery code.
func WithRecoveryCode(code string) LoginOption {
	return func(o *loginOptions) { o.recoveryCode = code }
}

// Login authenticates with email and password. When the account requires
// a second factor and one of the LoginOptions can provide it, the
// challenge is answered in a second call; otherwise the mfa_required
// error surfaces for the caller to prompt. Credential submissions are
// never retried on rate limiting.
func (s *Service) Login(ctx context.Context, email, password string, opts ...LoginOption) (*TokenPair, error) {
	if email == "" || password == "" {
		return nil, apierror.New(apierror.CodeValidation, "email and password are required")
	}
	var options loginOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	pair, err := s.submitLogin(ctx, loginRequest{Email: email, Password: password})
	if err == nil {
		return pair, nil
	}
	if !apierror.HasCode(err, apierror.CodeMFARequired) {
		return nil, err
	}

	second := loginRequest{Email: email, Password: password}
	switch {
	case options.recoveryCode != "":
		second.RecoveryCode = options.recoveryCode
	case options.passcode != "":
		second.Passcode = options.passcode
	case options.totpSecret != "":
		code, totpErr := totp.GenerateCode(options.totpSecret, s.now())
		if totpErr != nil {
			return nil, apierror.Wrap(totpErr, apierror.CodeValidation, "failed to compute TOTP passcode")
		}
		second.Passcode = code
	default:
		return nil, err
	}

	s.logger.DebugContext(ctx, "answering mfa challenge", "recovery_code", second.RecoveryCode != "")
	return s.submitLogin(ctx, second)
}

func (s *Service) submitLogin(ctx context.Context, body loginRequest) (*TokenPair, error) {
	var env tokenEnvelope
	req := api.NewRequest("auth.login", http.MethodPost, "/api/v1/auth/login",
		api.WithAnonymous(),
		api.WithNoRateLimitRetry(),
		api.WithJSON(body),
	)
	if err := s.client.Do(ctx, req, &env); err != nil {
		return nil, err
	}
	if env.AccessToken == "" {
		return nil, apierror.New(apierror.CodeInternal, "login response carried no access token")
	}

	pair := &TokenPair{
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		ExpiresAt:    env.expiry(s.now()),
		SessionJTI:   env.sessionJTI(),
	}
	s.session.Set(&tokenstore.Credentials{
		Email:        body.Email,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		SessionJTI:   pair.SessionJTI,
	})
	return pair, nil
}

// Logout revokes the current session server-side, then clears local
// credentials and cached data regardless of whether the server call
// succeeded: a dead server must not keep a client logged in.
func (s *Service) Logout(ctx context.Context) error {
	req := api.NewRequest("auth.logout", http.MethodPost, "/api/v1/auth/logout", api.WithNoRetry())
	err := s.client.Do(ctx, req, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "server-side logout failed, clearing local state anyway", "error", err)
	}

	s.session.Clear()
	if s.cache != nil {
		s.cache.Clear()
	}
	if err != nil && !apierror.HasCode(err, apierror.CodeUnauthorized) {
		return err
	}
	return nil
}

// Reauth exchanges the account password for a short-lived step-up token.
// Destructive operations (revoking sessions, regenerating recovery codes,
// deleting bundles or roles) attach it via api.WithReauth.
func (s *Service) Reauth(ctx context.Context, password string) (*ReauthToken, error) {
	if password == "" {
		return nil, apierror.New(apierror.CodeValidation, "password is required")
	}

	var env tokenEnvelope
	req := api.NewRequest("auth.reauth", http.MethodPost, "/api/v1/auth/reauth",
		api.WithNoRateLimitRetry(),
		api.WithJSON(map[string]string{"password": password}),
	)
	if err := s.client.Do(ctx, req, &env); err != nil {
		return nil, err
	}

	token := env.ReauthToken
	if token == "" {
		token = env.Token
	}
	if token == "" {
		return nil, apierror.New(apierror.CodeInternal, "reauth response carried no token")
	}
	return &ReauthToken{Token: token, ExpiresAt: env.expiry(s.now())}, nil
}

// WhoAmI returns the current token's claims without a network call.
func (s *Service) WhoAmI() (*Claims, error) {
	return s.session.Claims()
}
