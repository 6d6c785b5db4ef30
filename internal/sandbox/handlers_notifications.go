package sandbox

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func notificationPayload(n *notification) map[string]any {
	out := map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"priority":   n.Priority,
		"title":      n.Title,
		"body":       n.Body,
		"read":       n.Read,
		"pinned":     n.Pinned,
		"created_at": n.CreatedAt,
	}
	if n.ActionURL != "" {
		out["action_url"] = n.ActionURL
	}
	if !n.ReadAt.IsZero() {
		out["read_at"] = n.ReadAt
	}
	return out
}

// handleNotificationsList serves the caller's feed, newest first.
func (s *Server) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	feed := s.store.notificationsOf(claims.Subject)

	out := make([]map[string]any, 0, len(feed))
	for _, n := range feed {
		out = append(out, notificationPayload(n))
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("notifications", out, len(out)))
}

// handleNotificationsReadAll marks the whole feed read.
func (s *Server) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	changed := s.store.markAllNotificationsRead(claims.Subject)
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": changed})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	s.mutateNotification(w, r, func(n *notification) {
		if !n.Read {
			n.Read = true
			n.ReadAt = s.now()
		}
	})
}

func (s *Server) handleNotificationPin(w http.ResponseWriter, r *http.Request) {
	s.mutateNotification(w, r, func(n *notification) { n.Pinned = true })
}

func (s *Server) handleNotificationUnpin(w http.ResponseWriter, r *http.Request) {
	s.mutateNotification(w, r, func(n *notification) { n.Pinned = false })
}

func (s *Server) mutateNotification(w http.ResponseWriter, r *http.Request, fn func(*notification)) {
	claims := claimsFrom(r.Context())
	id := chi.URLParam(r, "id")
	if !s.store.updateNotification(claims.Subject, id, fn) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no such notification")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
