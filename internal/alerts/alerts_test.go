package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/internal/api"
	"moviesnow/internal/notifications"
	"moviesnow/internal/querycache"
)

func TestDecodeSubscriptionsShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"subscriptions envelope", `{"subscriptions":[{"category":"security","email":true}]}`, 1},
		{"bare array", `[{"category":"security"},{"category":"billing"}]`, 2},
		{"data nesting", `{"data":{"subscriptions":[{"category":"security"}]}}`, 1},
		{"map by category", `{"security":{"email":true,"push":false},"billing":{"email":false}}`, 2},
		{"empty body", ``, 0},
		{"null", `null`, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := decodeSubscriptions([]byte(tt.payload))
			require.NoError(t, err)
			assert.Len(t, subs, tt.want)
		})
	}
}

func TestDecodeSubscriptionsFlagAliases(t *testing.T) {
	subs, err := decodeSubscriptions([]byte(`[{"type":"security","email_enabled":true,"push_enabled":true,"in_app_enabled":false}]`))
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, notifications.TypeSecurity, subs[0].Category)
	assert.True(t, subs[0].Email)
	assert.True(t, subs[0].Push)
	assert.False(t, subs[0].InApp)
}

func TestDecodeSubscriptionsDeduplicates(t *testing.T) {
	subs, err := decodeSubscriptions([]byte(`[
		{"category":"security","email":false},
		{"category":"security","email":true}
	]`))
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Email, "last spelling wins")
}

type alertsFixture struct {
	service *Service
	cache   *querycache.Cache
	gets    atomic.Int32
	patches atomic.Int32
	fail    atomic.Bool
	lastKey string
	lastReq map[string][]Subscription
}

func newAlertsFixture(t *testing.T, payload string) *alertsFixture {
	t.Helper()
	fx := &alertsFixture{cache: querycache.New()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/alerts/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		fx.gets.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	})
	mux.HandleFunc("PATCH /api/v1/alerts/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		fx.patches.Add(1)
		fx.lastKey = r.Header.Get("X-Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&fx.lastReq)
		if fx.fail.Load() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL,
		api.WithTokenSource(api.StaticToken("token")),
		api.WithRetryPolicy(api.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}))
	fx.service = NewService(client, fx.cache)
	return fx
}

const twoSubs = `{"subscriptions":[
	{"category":"security","email":true,"push":true,"in_app":true},
	{"category":"billing","email":true}
]}`

func TestGetCaches(t *testing.T) {
	fx := newAlertsFixture(t, twoSubs)

	subs, err := fx.service.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	_, err = fx.service.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fx.gets.Load())
}

func TestUpdateOptimisticApply(t *testing.T) {
	fx := newAlertsFixture(t, twoSubs)

	_, err := fx.service.Get(context.Background())
	require.NoError(t, err)

	next := []Subscription{{Category: notifications.TypeSecurity, Email: false, Push: true}}
	require.NoError(t, fx.service.Update(context.Background(), next))
	assert.NotEmpty(t, fx.lastKey)
	assert.Equal(t, next, fx.lastReq["subscriptions"])

	// Invalidated on settle: the next read refetches.
	_, err = fx.service.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fx.gets.Load())
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	fx := newAlertsFixture(t, twoSubs)

	before, err := fx.service.Get(context.Background())
	require.NoError(t, err)

	fx.fail.Store(true)
	err = fx.service.Update(context.Background(), []Subscription{{Category: notifications.TypeSecurity}})
	require.Error(t, err)

	cached, ok := querycache.Lookup[[]Subscription](fx.cache, cacheKey())
	require.True(t, ok)
	assert.Equal(t, before, cached, "rollback must restore the exact pre-mutation snapshot")
}

func TestUpdateRejectsMissingCategory(t *testing.T) {
	fx := newAlertsFixture(t, twoSubs)
	err := fx.service.Update(context.Background(), []Subscription{{Email: true}})
	require.Error(t, err)
	assert.Equal(t, int32(0), fx.patches.Load())
}
