package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/internal/api"
	"moviesnow/internal/auth/tokenstore"
	"moviesnow/internal/querycache"
)

func newActivityService(t *testing.T, payload string) *Service {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/activity", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	store := tokenstore.New(filepath.Join(t.TempDir(), "credentials.json"))
	client := api.NewClient(server.URL, api.WithTokenSource(api.StaticToken("token")))
	session, err := NewSession(client, store)
	require.NoError(t, err)
	return NewService(client, session, querycache.New())
}

func TestActivityNormalizesEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bare array", `[{"id":"e1","kind":"login","ip_address":"1.2.3.4","at":"2024-05-01T10:00:00Z"}]`},
		{"events envelope", `{"events":[{"id":"e1","type":"login","ip":"1.2.3.4","timestamp":1714557600}]}`},
		{"activity envelope", `{"activity":[{"event_id":"e1","event":"login","ip":"1.2.3.4","created_at":"2024-05-01T10:00:00Z"}]}`},
		{"items envelope", `{"items":[{"id":"e1","kind":"login","ip":"1.2.3.4","at":1714557600}]}`},
		{"nested data", `{"data":{"events":[{"id":"e1","kind":"login","ip":"1.2.3.4","at":1714557600}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newActivityService(t, tt.payload)

			events, _, err := svc.Activity(context.Background(), api.Page{})
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "e1", events[0].ID)
			assert.Equal(t, "login", events[0].Kind)
			assert.Equal(t, "1.2.3.4", events[0].IP)
			assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), events[0].At.UTC())
		})
	}
}

func TestActivityFieldAliases(t *testing.T) {
	svc := newActivityService(t, `{"events":[
		{"id":"e1","kind":"login","ua":"Mozilla/5.0","geo":"Berlin, DE","success":false,"at":1714557600},
		{"id":"e2","kind":"refresh","user_agent":"curl/8.0","location":"Paris, FR","at":1714557601}
	]}`)

	events, _, err := svc.Activity(context.Background(), api.Page{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Mozilla/5.0", events[0].UserAgent)
	assert.Equal(t, "Berlin, DE", events[0].Location)
	assert.False(t, events[0].Success)

	assert.Equal(t, "curl/8.0", events[1].UserAgent)
	assert.Equal(t, "Paris, FR", events[1].Location)
	assert.True(t, events[1].Success, "missing success flag defaults to true")
}

func TestActivitySkipsUnintelligibleEntries(t *testing.T) {
	svc := newActivityService(t, `{"events":[
		{"id":"e1","kind":"login","at":1714557600},
		{"unrelated":"junk"},
		42
	]}`)

	events, _, err := svc.Activity(context.Background(), api.Page{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestActivityEmptyBodyYieldsEmptyFeed(t *testing.T) {
	svc := newActivityService(t, ``)

	events, _, err := svc.Activity(context.Background(), api.Page{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
