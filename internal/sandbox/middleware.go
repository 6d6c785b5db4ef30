package sandbox

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"moviesnow/internal/platform/privacy"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "sandbox.request_id"
	ctxKeyClaims    contextKey = "sandbox.claims"
)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func claimsFrom(ctx context.Context) *sandboxClaims {
	claims, _ := ctx.Value(ctxKeyClaims).(*sandboxClaims)
	return claims
}

// recoverPanics converts handler panics into 500 responses so one bad
// request can't take the sandbox down.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// assignRequestID honors an inbound X-Request-ID or mints one, and
// echoes it on the response.
func (s *Server) assignRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests emits one structured line per request. Client IPs are
// anonymized before they reach the log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"ip", privacy.AnonymizeIP(clientIP(r)),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

// limitRate applies the per-client token bucket. Exhausted clients get
// 429 with a Retry-After hint, which the SDK honors.
func (s *Server) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if retryAfter, ok := s.limiter.allow(clientIP(r)); !ok {
			w.Header().Set("Retry-After", retryAfter)
			s.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// replayIdempotent serves recorded responses for repeated mutations that
// carry the same X-Idempotency-Key, so client retries are safe.
func (s *Server) replayIdempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Idempotency-Key")
		if key == "" || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		scoped := r.Method + " " + r.URL.Path + " " + key
		if cached, ok := s.idem.get(scoped); ok {
			for name, values := range cached.header {
				w.Header()[name] = values
			}
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}

		rec := newResponseRecorder(w)
		next.ServeHTTP(rec, r)
		if rec.status < http.StatusInternalServerError {
			s.idem.put(scoped, rec.snapshot())
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// requireAuth verifies the bearer access token and checks that its
// session is still live.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			s.writeUnauthorized(w, r, "missing bearer token")
			return
		}
		claims, err := s.tokens.verify(raw, tokenTypeAccess)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
			return
		}
		if !s.store.touchSession(claims.ID) {
			s.writeError(w, r, http.StatusUnauthorized, "token_expired", "session revoked or expired")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireReauth demands a fresh step-up token on top of the access
// token. Missing or stale tokens answer with reauth_required so the
// client surfaces a step-up prompt.
func (s *Server) requireReauth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Reauth-Token")
		if raw == "" {
			s.writeError(w, r, http.StatusUnauthorized, "reauth_required", "recent authentication required")
			return
		}
		reauth, err := s.tokens.verify(raw, tokenTypeReauth)
		if err != nil {
			s.writeError(w, r, http.StatusUnauthorized, "reauth_required", "re-authentication token is invalid or expired")
			return
		}
		if access := claimsFrom(r.Context()); access != nil && access.Subject != reauth.Subject {
			s.writeError(w, r, http.StatusForbidden, "forbidden", "re-authentication token belongs to a different account")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates the admin surface on the admin role.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil || !hasRole(claims.Roles, "admin") {
			s.writeError(w, r, http.StatusForbidden, "insufficient_permissions", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder buffers a handler's response so the idempotency store
// can keep a copy.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   []byte
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	rec.body = append(rec.body, p...)
	return rec.ResponseWriter.Write(p)
}

func (rec *responseRecorder) snapshot() recordedResponse {
	header := make(http.Header, len(rec.Header()))
	for name, values := range rec.Header() {
		header[name] = append([]string{}, values...)
	}
	return recordedResponse{
		status: rec.status,
		header: header,
		body:   append([]byte{}, rec.body...),
	}
}
