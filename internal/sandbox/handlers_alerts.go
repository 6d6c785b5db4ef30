package sandbox

import (
	"encoding/json"
	"net/http"
)

type subscriptionPayload struct {
	Category string `json:"category"`
	Email    bool   `json:"email"`
	Push     bool   `json:"push"`
	InApp    bool   `json:"in_app"`
}

// handleSubscriptionsGet serves the caller's alert delivery preferences.
func (s *Server) handleSubscriptionsGet(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	subs := s.store.subscriptionsOf(claims.Subject)

	out := make([]subscriptionPayload, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionPayload{
			Category: sub.Category,
			Email:    sub.Email,
			Push:     sub.Push,
			InApp:    sub.InApp,
		})
	}
	s.writeJSON(w, http.StatusOK, s.shapes.wrap("subscriptions", out, len(out)))
}

// handleSubscriptionsUpdate overwrites the categories present in the
// request body, leaving the rest untouched.
func (s *Server) handleSubscriptionsUpdate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var body struct {
		Subscriptions []subscriptionPayload `json:"subscriptions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if len(body.Subscriptions) == 0 {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "subscriptions must not be empty")
		return
	}
	for _, sub := range body.Subscriptions {
		if sub.Category == "" {
			s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", "every subscription needs a category")
			return
		}
	}

	next := make([]subscription, 0, len(body.Subscriptions))
	for _, sub := range body.Subscriptions {
		next = append(next, subscription{
			Category: sub.Category,
			Email:    sub.Email,
			Push:     sub.Push,
			InApp:    sub.InApp,
		})
	}
	s.store.replaceSubscriptions(claims.Subject, next)

	s.handleSubscriptionsGet(w, r)
}
