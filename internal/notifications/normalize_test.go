package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotificationsEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"bare array", `[{"id":"1"},{"id":"2"}]`, 2},
		{"notifications envelope", `{"notifications":[{"id":"1"}]}`, 1},
		{"items envelope", `{"items":[{"id":"1"},{"id":"2"},{"id":"3"}]}`, 3},
		{"data nesting", `{"data":{"notifications":[{"id":"1"}]}}`, 1},
		{"empty body", ``, 0},
		{"null", `null`, 0},
		{"missing ids dropped", `[{"title":"no id"},{"id":"1"}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, _, err := decodeNotifications([]byte(tt.payload))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestDecodeNotificationsFieldAliases(t *testing.T) {
	payload := `[{
		"notification_id":"n1",
		"category":"security",
		"priority":"high",
		"subject":"New login",
		"message":"A new device signed in",
		"is_read":true,
		"is_pinned":true,
		"action_link":"/settings/sessions",
		"created":1700000000
	}]`

	items, _, err := decodeNotifications([]byte(payload))
	require.NoError(t, err)
	require.Len(t, items, 1)

	n := items[0]
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, TypeSecurity, n.Type)
	assert.Equal(t, PriorityHigh, n.Priority)
	assert.Equal(t, "New login", n.Title)
	assert.Equal(t, "A new device signed in", n.Body)
	assert.True(t, n.Read)
	assert.True(t, n.Pinned)
	assert.Equal(t, "/settings/sessions", n.ActionURL)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), n.CreatedAt.UTC())
}

func TestDecodeNotificationsUnknownEnumsFallBack(t *testing.T) {
	items, _, err := decodeNotifications([]byte(`[{"id":"1","type":"hologram","priority":"apocalyptic"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeSystem, items[0].Type)
	assert.Equal(t, PriorityMedium, items[0].Priority)
}

func TestDecodeNotificationsReadAtImpliesRead(t *testing.T) {
	items, _, err := decodeNotifications([]byte(`[{"id":"1","read_at":"2024-05-01T10:00:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Read)
}

func TestDecodeNotificationsOrdering(t *testing.T) {
	payload := `[
		{"id":"old-urgent","priority":"urgent","created_at":"2024-01-01T00:00:00Z"},
		{"id":"new-low","priority":"low","created_at":"2024-06-01T00:00:00Z"},
		{"id":"pinned-low","priority":"low","pinned":true,"created_at":"2023-01-01T00:00:00Z"},
		{"id":"new-urgent","priority":"urgent","created_at":"2024-03-01T00:00:00Z"}
	]`

	items, _, err := decodeNotifications([]byte(payload))
	require.NoError(t, err)
	require.Len(t, items, 4)

	got := []string{items[0].ID, items[1].ID, items[2].ID, items[3].ID}
	assert.Equal(t, []string{"pinned-low", "new-urgent", "old-urgent", "new-low"}, got)
}

func TestComputeStats(t *testing.T) {
	items := []Notification{
		{ID: "1", Type: TypeSecurity, Priority: PriorityHigh},
		{ID: "2", Type: TypeSecurity, Priority: PriorityLow, Read: true},
		{ID: "3", Type: TypeBilling, Priority: PriorityHigh, Pinned: true},
	}

	stats := ComputeStats(items)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unread)
	assert.Equal(t, 1, stats.Pinned)
	assert.Equal(t, 2, stats.ByType[TypeSecurity])
	assert.Equal(t, 1, stats.ByType[TypeBilling])
	assert.Equal(t, 2, stats.ByPriority[PriorityHigh])
}
