package sandbox

import (
	"encoding/json"
	"net/http"
)

// writeJSON serializes v with the standard headers. Encoding failures on
// in-memory values don't happen; errors are ignored.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the nested error envelope production gateways use:
//
//	{"error": {"code": "...", "message": "..."}, "request_id": "..."}
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"request_id": requestIDFrom(r.Context()),
	})
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	s.writeError(w, r, http.StatusUnauthorized, "unauthorized", message)
}
