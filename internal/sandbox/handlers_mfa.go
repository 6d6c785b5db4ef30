package sandbox

import (
	"net/http"
)

// handleRecoveryCodes serves the caller's current recovery code set in
// the structured shape, which carries per-code usage.
func (s *Server) handleRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	codes := s.store.recoveryCodesOf(claims.Subject)
	s.writeJSON(w, http.StatusOK, recoveryCodesPayload(codes))
}

// handleRecoveryCodesGenerate replaces the caller's code set. The route
// sits behind requireReauth; by the time this runs the step-up token has
// been verified.
func (s *Server) handleRecoveryCodesGenerate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	codes := s.store.regenerateRecoveryCodes(claims.Subject)
	if codes == nil {
		s.writeError(w, r, http.StatusNotFound, "not_found", "account no longer exists")
		return
	}
	s.store.recordActivity(claims.Subject, "recovery_codes_regenerated", clientIP(r), r.UserAgent(), true)
	s.writeJSON(w, http.StatusOK, recoveryCodesPayload(codes))
}

func recoveryCodesPayload(codes []recoveryCode) map[string]any {
	out := make([]map[string]any, 0, len(codes))
	remaining := 0
	for _, c := range codes {
		out = append(out, map[string]any{"code": c.Code, "used": c.Used})
		if !c.Used {
			remaining++
		}
	}
	return map[string]any{"codes": out, "remaining": remaining}
}
