package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/internal/api"
	"moviesnow/internal/querycache"
	"moviesnow/pkg/apierror"
)

type sessionsFixture struct {
	service *Service
	cache   *querycache.Cache
	mux     *http.ServeMux
	lists   atomic.Int32
	deletes atomic.Int32
}

func newSessionsFixture(t *testing.T, listPayload string) *sessionsFixture {
	t.Helper()
	fx := &sessionsFixture{
		mux:   http.NewServeMux(),
		cache: querycache.New(),
	}

	fx.mux.HandleFunc("GET /api/v1/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
		fx.lists.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listPayload))
	})

	server := httptest.NewServer(fx.mux)
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL,
		api.WithTokenSource(api.StaticToken("token")),
		api.WithRetryPolicy(api.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
	fx.service = NewService(client, fx.cache)
	return fx
}

const twoSessions = `{"sessions":[
	{"jti":"current","is_current":true,"last_seen_at":"2024-05-01T10:00:00Z"},
	{"jti":"other","last_seen":1714550000,"user_agent":"curl/8.0"}
]}`

func TestListCachesAndSorts(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)

	list, err := fx.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "current", list[0].JTI)
	assert.True(t, list[0].Current)

	again, err := fx.service.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, list, again)
	assert.Equal(t, int32(1), fx.lists.Load(), "second read must come from the cache")
}

func TestRevokeRemovesOptimisticallyAndSettles(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)
	fx.mux.HandleFunc("DELETE /api/v1/auth/sessions/{jti}", func(w http.ResponseWriter, r *http.Request) {
		fx.deletes.Add(1)
		assert.Equal(t, "other", r.PathValue("jti"))
		assert.NotEmpty(t, r.Header.Get(api.HeaderIdempotencyKey))
		assert.Equal(t, "step-up", r.Header.Get(api.HeaderReauthToken))

		// While the request is in flight the cached list must already be
		// down to one entry.
		cached, ok := querycache.Lookup[[]Session](fx.cache, cacheKey())
		assert.True(t, ok)
		assert.Len(t, cached, 1)
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := fx.service.List(context.Background())
	require.NoError(t, err)

	err = fx.service.Revoke(context.Background(), "other", "step-up")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fx.deletes.Load())
}

func TestRevokeRollsBackOnServerRefusal(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)
	fx.mux.HandleFunc("DELETE /api/v1/auth/sessions/{jti}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	})

	_, err := fx.service.List(context.Background())
	require.NoError(t, err)

	err = fx.service.Revoke(context.Background(), "other", "")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeForbidden))

	cached, ok := querycache.Lookup[[]Session](fx.cache, cacheKey())
	require.True(t, ok)
	assert.Len(t, cached, 2, "refused revocation must restore the entry")
}

func TestRevokeCurrentSessionRejectedLocally(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)
	fx.mux.HandleFunc("DELETE /api/v1/auth/sessions/{jti}", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call may happen for the current session")
	})

	_, err := fx.service.List(context.Background())
	require.NoError(t, err)

	err = fx.service.Revoke(context.Background(), "current", "step-up")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeInvalidInput))
}

func TestRevokeValidatesJTI(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)

	err := fx.service.Revoke(context.Background(), "", "step-up")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))
}

func TestRevokeOthersReportsPartialFailure(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)
	fx.mux.HandleFunc("DELETE /api/v1/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"revoked_count":3,"failed_count":1}`))
	})

	outcome, err := fx.service.RevokeOthers(context.Background(), "step-up")
	require.NoError(t, err, "partial failure is an outcome, not an error")
	assert.Equal(t, 3, outcome.RevokedCount)
	assert.Equal(t, 1, outcome.FailedCount)
}

func TestRevokeOthersTotalFailureIsAnError(t *testing.T) {
	fx := newSessionsFixture(t, twoSessions)
	fx.mux.HandleFunc("DELETE /api/v1/auth/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"revoked":0,"failed":2}`))
	})

	outcome, err := fx.service.RevokeOthers(context.Background(), "step-up")
	require.Error(t, err)
	assert.Equal(t, 0, outcome.RevokedCount)
	assert.Equal(t, 2, outcome.FailedCount)
}
