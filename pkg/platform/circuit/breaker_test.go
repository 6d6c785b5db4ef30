package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("api", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		fallback, change := b.RecordFailure()
		assert.False(t, fallback)
		assert.False(t, change.Opened)
	}

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New("api", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen(), "non-consecutive failures must not trip the circuit")

	fallback, _ := b.RecordFailure()
	assert.True(t, fallback)
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := New("api", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerAllowAdmitsOneProbePerInterval(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	b := New("api", WithFailureThreshold(1), WithProbeInterval(10*time.Second), WithClock(clock))

	assert.True(t, b.Allow(), "closed circuit always allows")

	b.RecordFailure()
	assert.False(t, b.Allow(), "freshly opened circuit holds calls back")

	now = now.Add(5 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(5 * time.Second)
	assert.True(t, b.Allow(), "probe due after the interval")
	assert.False(t, b.Allow(), "only one probe per interval")
}

func TestBreakerResetClearsState(t *testing.T) {
	b := New("api", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}
