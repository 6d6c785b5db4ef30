package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"moviesnow/pkg/apierror"
)

// errorEnvelope covers the error shapes the API (and the gateways in
// front of it) emit. "error" is either a bare string or a nested object;
// the rest are flat fallbacks.
type errorEnvelope struct {
	Error       json.RawMessage `json:"error"`
	ErrorDesc   string          `json:"error_description"`
	Message     string          `json:"message"`
	Detail      string          `json:"detail"`
	Code        string          `json:"code"`
	RequestID   string          `json:"request_id"`
	MFARequired bool            `json:"mfa_required"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeError turns a non-2xx response into an *apierror.Error. It never
// fails: unparseable bodies fall back to a status-derived error.
func decodeError(resp *http.Response, raw []byte) error {
	code := apierror.FromStatus(resp.StatusCode)
	message := http.StatusText(resp.StatusCode)
	requestID := resp.Header.Get("X-Request-ID")

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		wireCode, wireMessage := env.flatten()
		if mapped := mapWireCode(wireCode); mapped != "" {
			code = mapped
		}
		if env.MFARequired {
			code = apierror.CodeMFARequired
		}
		if wireMessage != "" {
			message = wireMessage
		} else if wireCode != "" {
			message = wireCode
		}
		if env.RequestID != "" {
			requestID = env.RequestID
		}
	}

	return &apierror.Error{
		Code:      code,
		Message:   message,
		Status:    resp.StatusCode,
		RequestID: requestID,
	}
}

// flatten resolves the envelope variants into a (code, message) pair.
func (e *errorEnvelope) flatten() (code, message string) {
	if len(e.Error) > 0 {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil {
			code = s
		} else {
			var nested nestedError
			if err := json.Unmarshal(e.Error, &nested); err == nil {
				code = nested.Code
				message = nested.Message
			}
		}
	}
	if code == "" {
		code = e.Code
	}
	if message == "" {
		switch {
		case e.Message != "":
			message = e.Message
		case e.Detail != "":
			message = e.Detail
		case e.ErrorDesc != "":
			message = e.ErrorDesc
		}
	}
	return code, message
}

// mapWireCode translates well-known server code strings into the client
// taxonomy. Unknown strings keep the status-derived code.
func mapWireCode(wire string) apierror.Code {
	switch strings.ToLower(strings.TrimSpace(wire)) {
	case "mfa_required", "step_up_required", "reauth_required":
		return apierror.CodeMFARequired
	case "unauthorized", "invalid_token", "token_expired", "invalid_credentials":
		return apierror.CodeUnauthorized
	case "forbidden", "insufficient_permissions":
		return apierror.CodeForbidden
	case "not_found":
		return apierror.CodeNotFound
	case "conflict", "already_exists", "version_conflict":
		return apierror.CodeConflict
	case "validation_error", "invalid_input", "invalid_request", "bad_request":
		return apierror.CodeValidation
	case "rate_limited", "too_many_requests":
		return apierror.CodeRateLimited
	case "unavailable", "service_unavailable", "maintenance":
		return apierror.CodeUnavailable
	default:
		return ""
	}
}
