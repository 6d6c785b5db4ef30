package sandbox

import (
	"encoding/json"
	"net/http"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

type loginBody struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	Passcode     string `json:"passcode"`
	RecoveryCode string `json:"recovery_code"`
}

// handleLogin authenticates a password, runs the MFA challenge when the
// account is enrolled, opens a session and issues the token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	u, ok := s.store.userByEmail(body.Email)
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(body.Password)) != nil {
		if ok {
			s.store.recordActivity(u.ID, "login", clientIP(r), r.UserAgent(), false)
		}
		s.writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		return
	}

	if u.TOTPSecret != "" {
		switch {
		case body.RecoveryCode != "":
			if !s.store.consumeRecoveryCode(u.ID, body.RecoveryCode) {
				s.store.recordActivity(u.ID, "login", clientIP(r), r.UserAgent(), false)
				s.writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "recovery code is invalid or already used")
				return
			}
		case body.Passcode != "":
			if !totp.Validate(body.Passcode, u.TOTPSecret) {
				s.store.recordActivity(u.ID, "login", clientIP(r), r.UserAgent(), false)
				s.writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "passcode is incorrect")
				return
			}
		default:
			s.writeError(w, r, http.StatusUnauthorized, "mfa_required", "a second factor is required")
			return
		}
	}

	sess := s.store.createSession(u.ID, clientIP(r), r.UserAgent(), s.cfg.SessionTTL)
	s.store.recordActivity(u.ID, "login", clientIP(r), r.UserAgent(), true)

	access, err := s.tokens.issue(u, sess.JTI, tokenTypeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}
	refresh, err := s.tokens.issue(u, sess.JTI, tokenTypeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    s.cfg.AccessTokenTTL.Seconds(),
		"session_jti":   sess.JTI,
	})
}

// handleRefresh rotates the refresh token and issues a fresh access
// token bound to the same session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	claims, err := s.tokens.verify(body.RefreshToken, tokenTypeRefresh)
	if err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "invalid_token", "refresh token is invalid or expired")
		return
	}
	if !s.store.touchSession(claims.ID) {
		s.writeError(w, r, http.StatusUnauthorized, "token_expired", "session revoked or expired")
		return
	}
	u, ok := s.store.userByID(claims.Subject)
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, "invalid_token", "account no longer exists")
		return
	}

	access, err := s.tokens.issue(u, claims.ID, tokenTypeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}
	refresh, err := s.tokens.issue(u, claims.ID, tokenTypeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}
	s.store.recordActivity(u.ID, "refresh", clientIP(r), r.UserAgent(), true)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    s.cfg.AccessTokenTTL.Seconds(),
		"session_jti":   claims.ID,
	})
}

// handleLogout revokes the calling session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	s.store.revokeSession(claims.Subject, claims.ID)
	s.store.recordActivity(claims.Subject, "logout", clientIP(r), r.UserAgent(), true)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleReauth exchanges the password for a short-lived step-up token.
func (s *Server) handleReauth(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	u, ok := s.store.userByID(claims.Subject)
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(body.Password)) != nil {
		s.store.recordActivity(claims.Subject, "reauth", clientIP(r), r.UserAgent(), false)
		s.writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "password is incorrect")
		return
	}

	token, err := s.tokens.issue(u, claims.ID, tokenTypeReauth, s.cfg.ReauthTokenTTL)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign token")
		return
	}
	s.store.recordActivity(u.ID, "reauth", clientIP(r), r.UserAgent(), true)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"reauth_token": token,
		"expires_in":   s.cfg.ReauthTokenTTL.Seconds(),
	})
}

// handleActivity serves the account's security event feed.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	events := s.store.activityOf(claims.Subject)

	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]any{
			"id":         ev.ID,
			"kind":       ev.Kind,
			"ip_address": ev.IP,
			"user_agent": ev.UserAgent,
			"location":   ev.Location,
			"success":    ev.Success,
			"at":         ev.At,
		})
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("events", out, len(out)))
}
