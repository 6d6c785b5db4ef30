package mfa

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"moviesnow/internal/api"
	"moviesnow/pkg/apierror"
)

// codeEntry tolerates the structured code spelling: an object carrying
// the code string plus a consumed flag.
type codeEntry struct {
	Code string `json:"code"`
	Used bool   `json:"used"`
}

// codesEnvelope collects every field spelling the recovery code
// endpoints have used across backend revisions.
type codesEnvelope struct {
	Codes         json.RawMessage `json:"codes"`
	RecoveryCodes json.RawMessage `json:"recovery_codes"`
	Remaining     *int            `json:"remaining"`
	RemainingCnt  *int            `json:"remaining_count"`
	Masked        *bool           `json:"masked"`
	ExpiresAt     api.Timestamp   `json:"expires_at"`
	Expires       api.Timestamp   `json:"expires"`

	Data json.RawMessage `json:"data"`
}

// decodeRecoveryCodes normalizes a recovery-codes response. Accepted
// shapes, in priority order: {"codes":[...]} (strings or {code,used}
// objects); {"recovery_codes":[...]}; a bare array; {"data":{...}}
// nesting either envelope. An empty or 204 body yields an empty set,
// never an error. Duplicate codes are dropped, preserving order; consumed
// entries of the structured shape are excluded and counted against
// Remaining when the server did not report one.
func decodeRecoveryCodes(data []byte) (*RecoveryCodes, error) {
	out := &RecoveryCodes{Codes: []string{}}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	if trimmed[0] == '[' {
		raw := json.RawMessage(trimmed)
		if err := out.fill(raw, nil); err != nil {
			return nil, err
		}
		return out, nil
	}

	var env codesEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized recovery codes response")
	}

	raw := env.Codes
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = env.RecoveryCodes
	}
	if len(bytes.TrimSpace(raw)) == 0 && len(bytes.TrimSpace(env.Data)) > 0 {
		// One level of nesting: {"data":{"codes":[...]}}.
		return decodeRecoveryCodes(env.Data)
	}
	if err := out.fill(raw, &env); err != nil {
		return nil, err
	}
	return out, nil
}

// fill decodes the code list itself and folds in the envelope metadata.
func (r *RecoveryCodes) fill(raw json.RawMessage, env *codesEnvelope) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return apierror.Wrap(err, apierror.CodeInternal, "unrecognized recovery code list")
		}

		seen := make(map[string]struct{}, len(entries))
		structured := false
		for _, item := range entries {
			code, wasUsed, ok := decodeCodeEntry(item)
			if !ok {
				continue
			}
			if wasUsed {
				structured = true
				continue
			}
			if _, dup := seen[code]; dup || code == "" {
				continue
			}
			seen[code] = struct{}{}
			r.Codes = append(r.Codes, code)
			if maskedCode(code) {
				r.Masked = true
			}
		}
		// The structured shape implies a remaining count even when the
		// envelope omits one: the unconsumed entries are what is left.
		if structured && (env == nil || (env.Remaining == nil && env.RemainingCnt == nil)) {
			remaining := len(r.Codes)
			r.Remaining = &remaining
		}
	}

	if env != nil {
		switch {
		case env.Remaining != nil:
			r.Remaining = env.Remaining
		case env.RemainingCnt != nil:
			r.Remaining = env.RemainingCnt
		}
		if env.Masked != nil {
			r.Masked = *env.Masked || r.Masked
		}
		if at := firstTime(env.ExpiresAt, env.Expires); !at.IsZero() {
			r.ExpiresAt = &at
		}
	}
	return nil
}

// decodeCodeEntry accepts a bare string or a {code, used} object.
func decodeCodeEntry(item json.RawMessage) (code string, used bool, ok bool) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return "", false, false
	}
	if item[0] == '"' {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return "", false, false
		}
		return s, false, s != ""
	}
	var entry codeEntry
	if err := json.Unmarshal(item, &entry); err != nil || entry.Code == "" {
		return "", false, false
	}
	return entry.Code, entry.Used, true
}

// maskedCode reports whether the server redacted the code, leaving only
// bullet or asterisk glyphs.
func maskedCode(code string) bool {
	if code == "" {
		return false
	}
	trimmed := strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(code, "•", ""), "*", ""), "-", "")
	return trimmed == ""
}

func firstTime(values ...api.Timestamp) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
