package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

// APIErrorSuite tests the error primitives every layer depends on.
//
// The retry layer and the optimistic-update rollback both branch on these
// codes, so "wrapping preserves the original code" and "retryability follows
// the category" are load-bearing invariants.
type APIErrorSuite struct {
	suite.Suite
}

func TestAPIErrorSuite(t *testing.T) {
	suite.Run(t, new(APIErrorSuite))
}

func (s *APIErrorSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "bundle not found"}
		s.Equal("bundle not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeRateLimited}
		s.Equal("rate_limited", err.Error())
	})
}

func (s *APIErrorSuite) TestWrapPreservesCode() {
	inner := New(CodeRateLimited, "throttled")
	wrapped := Wrap(inner, CodeInternal, "listing notifications")

	s.True(HasCode(wrapped, CodeRateLimited), "wrapping must not reclassify")
	s.Equal("listing notifications", wrapped.Error())
	s.True(errors.Is(errors.Unwrap(wrapped), inner))
}

func (s *APIErrorSuite) TestWrapForeignError() {
	inner := fmt.Errorf("read tcp: connection reset")
	wrapped := Wrap(inner, CodeNetwork, "request failed")

	s.True(HasCode(wrapped, CodeNetwork))
	s.ErrorIs(wrapped, inner)
}

func (s *APIErrorSuite) TestIsMatchesByCode() {
	a := &Error{Code: CodeForbidden, Message: "admin only"}
	b := &Error{Code: CodeForbidden, Message: "role is read-only"}
	s.True(a.Is(b))
	s.False(a.Is(&Error{Code: CodeNotFound}))
	s.False(a.Is(errors.New("forbidden")))
}

func (s *APIErrorSuite) TestRetryable() {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeRateLimited, true},
		{CodeUnavailable, true},
		{CodeNetwork, true},
		{CodeTimeout, true},
		{CodeUnauthorized, false},
		{CodeForbidden, false},
		{CodeNotFound, false},
		{CodeInvalidInput, false},
		{CodeValidation, false},
		{CodeMFARequired, false},
		{CodeInternal, false},
	}
	for _, tc := range cases {
		s.Equal(tc.want, Retryable(New(tc.code, "")), "code %s", tc.code)
	}
	s.False(Retryable(errors.New("plain")), "foreign errors default to non-retryable")
}

func (s *APIErrorSuite) TestFromStatus() {
	s.Equal(CodeUnauthorized, FromStatus(http.StatusUnauthorized))
	s.Equal(CodeForbidden, FromStatus(http.StatusForbidden))
	s.Equal(CodeNotFound, FromStatus(http.StatusNotFound))
	s.Equal(CodeConflict, FromStatus(http.StatusConflict))
	s.Equal(CodeRateLimited, FromStatus(http.StatusTooManyRequests))
	s.Equal(CodeUnavailable, FromStatus(http.StatusBadGateway))
	s.Equal(CodeUnavailable, FromStatus(http.StatusInternalServerError))
	s.Equal(CodeInvalidInput, FromStatus(http.StatusBadRequest))
	s.Equal(CodeInvalidInput, FromStatus(http.StatusUnprocessableEntity))
}

func (s *APIErrorSuite) TestStatusOf() {
	err := &Error{Code: CodeUnavailable, Status: 503}
	s.Equal(503, StatusOf(err))
	s.Equal(0, StatusOf(errors.New("no status")))

	wrapped := Wrap(err, CodeInternal, "outer")
	s.Equal(503, StatusOf(wrapped), "status survives wrapping")
}
