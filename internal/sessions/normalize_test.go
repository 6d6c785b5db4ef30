package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSessionsEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"bare array", `[{"jti":"a"},{"jti":"b"}]`, 2},
		{"sessions envelope", `{"sessions":[{"jti":"a"},{"jti":"b"}]}`, 2},
		{"items envelope", `{"items":[{"jti":"a"}]}`, 1},
		{"data wrapping sessions", `{"data":{"sessions":[{"jti":"a"}]}}`, 1},
		{"data wrapping array", `{"data":[{"jti":"a"}]}`, 1},
		{"single object", `{"jti":"a","is_current":true}`, 1},
		{"empty body", ``, 0},
		{"null", `null`, 0},
		{"empty array", `[]`, 0},
		{"sessions null", `{"sessions":null}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, _, err := decodeSessions([]byte(tt.payload))
			require.NoError(t, err)
			assert.Len(t, sessions, tt.want)
		})
	}
}

// The canonical mixed-shape payload: one entry current with no
// timestamps, the other with an epoch-seconds last_seen alias.
func TestDecodeSessionsMixedShapes(t *testing.T) {
	payload := `{"sessions":[{"jti":"a","is_current":true},{"jti":"b","last_seen":1700000000}]}`

	sessions, info, err := decodeSessions([]byte(payload))
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 2, info.Total)

	// Current session sorts first.
	assert.Equal(t, "a", sessions[0].JTI)
	assert.True(t, sessions[0].Current)
	assert.True(t, sessions[0].LastSeenAt.IsZero())

	assert.Equal(t, "b", sessions[1].JTI)
	assert.False(t, sessions[1].Current)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), sessions[1].LastSeenAt.UTC())
}

func TestDecodeSessionsFieldAliases(t *testing.T) {
	payload := `[
		{"id":"s1","current":true,"created":"2024-01-01T00:00:00Z","ip":"10.0.0.1","ua":"curl/8.0","geo":"Berlin, DE","expires":1714557600},
		{"session_id":"s2","last_active_at":"2024-05-01T10:00:00Z","ip_address":"10.0.0.2","user_agent":"Mozilla/5.0","location":"Paris, FR"}
	]`

	sessions, _, err := decodeSessions([]byte(payload))
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	s1 := sessions[0]
	assert.Equal(t, "s1", s1.JTI)
	assert.True(t, s1.Current)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s1.CreatedAt.UTC())
	assert.Equal(t, "10.0.0.1", s1.IP)
	assert.Equal(t, "curl/8.0", s1.UserAgent)
	assert.Equal(t, "Berlin, DE", s1.Location)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), s1.ExpiresAt.UTC())

	s2 := sessions[1]
	assert.Equal(t, "s2", s2.JTI)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), s2.LastSeenAt.UTC())
	assert.Equal(t, "10.0.0.2", s2.IP)
	assert.Equal(t, "Paris, FR", s2.Location)
}

func TestDecodeSessionsCanonicalFieldWins(t *testing.T) {
	payload := `[{"jti":"canonical","id":"alias","ip_address":"1.1.1.1","ip":"2.2.2.2"}]`

	sessions, _, err := decodeSessions([]byte(payload))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "canonical", sessions[0].JTI)
	assert.Equal(t, "1.1.1.1", sessions[0].IP)
}

func TestDecodeSessionsDropsRecordsWithoutIdentifier(t *testing.T) {
	payload := `[{"jti":"a"},{"is_current":false},{"user_agent":"x"}]`

	sessions, _, err := decodeSessions([]byte(payload))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "a", sessions[0].JTI)
}

func TestDecodeSessionsIgnoresUnknownFields(t *testing.T) {
	payload := `[{"jti":"a","some_future_field":{"nested":true},"another":42}]`

	sessions, _, err := decodeSessions([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestDecodeSessionsUnrecognizedShape(t *testing.T) {
	_, _, err := decodeSessions([]byte(`"just a string"`))
	require.Error(t, err)
}

func TestSortSessionsOrdering(t *testing.T) {
	now := time.Now()
	sessions := []Session{
		{JTI: "old", LastSeenAt: now.Add(-2 * time.Hour)},
		{JTI: "current", Current: true, LastSeenAt: now.Add(-3 * time.Hour)},
		{JTI: "recent", LastSeenAt: now.Add(-time.Hour)},
	}

	sortSessions(sessions)

	assert.Equal(t, "current", sessions[0].JTI, "current session always leads")
	assert.Equal(t, "recent", sessions[1].JTI)
	assert.Equal(t, "old", sessions[2].JTI)
}
