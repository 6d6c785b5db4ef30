package sandbox

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleSessionsList serves the caller's live sessions, flagging the one
// behind the request.
func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	sessions := s.store.sessionsOf(claims.Subject)

	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"jti":          sess.JTI,
			"is_current":   sess.JTI == claims.ID,
			"created_at":   sess.CreatedAt,
			"last_seen_at": sess.LastSeenAt,
			"expires_at":   sess.ExpiresAt,
			"ip_address":   sess.IP,
			"user_agent":   sess.UserAgent,
			"location":     sess.Location,
		})
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("sessions", out, len(out)))
}

// handleSessionRevoke revokes one of the caller's sessions by JTI.
func (s *Server) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	jti := chi.URLParam(r, "jti")

	if !s.store.revokeSession(claims.Subject, jti) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such session")
		return
	}
	s.store.recordActivity(claims.Subject, "session_revoked", clientIP(r), r.UserAgent(), true)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleSessionsRevokeOthers signs out every session except the calling
// one.
func (s *Server) handleSessionsRevokeOthers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	revoked := s.store.revokeOtherSessions(claims.Subject, claims.ID)
	s.store.recordActivity(claims.Subject, "sessions_revoked", clientIP(r), r.UserAgent(), true)
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "revoked", "revoked": revoked})
}
