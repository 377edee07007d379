package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolling_RefetchesEachInterval(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")
	require.Equal(t, 1, h.fetcher.callCount())

	h.tick(t, 2)
	h.tick(t, 3)
	assert.True(t, h.m.Snapshot().Authenticated)
}

func TestPolling_DoubleStartIsOneTimer(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")

	h.m.StartPolling()
	h.m.StartPolling()
	assert.Equal(t, 1, h.clock.tickerCount())

	h.tick(t, 2)
	assert.Never(t, func() bool { return h.fetcher.callCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPolling_RequiresToken(t *testing.T) {
	h := newHarness(t, "")
	h.m.StartPolling()

	assert.False(t, h.m.Polling())
	assert.Equal(t, 0, h.clock.tickerCount())
}

func TestPolling_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")

	h.m.StopPolling()
	h.m.StopPolling()
	assert.False(t, h.m.Polling())

	h.clock.Step(testInterval)
	assert.Never(t, func() bool { return h.fetcher.callCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	h.m.StartPolling()
	assert.True(t, h.m.Polling())
	assert.Equal(t, 2, h.clock.tickerCount())
}

func TestPolling_TickAfterLogoutIsNoop(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")

	h.m.Logout()
	h.clock.Step(testInterval)

	assert.Never(t, func() bool { return h.fetcher.callCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, h.m.Snapshot().Authenticated)
}

func TestPolling_TickObservesExpiry(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")

	h.fetcher.respond(nil, errExpired)
	h.tick(t, 2)

	assert.Empty(t, h.storedToken(t))
	assert.False(t, h.m.Snapshot().Authenticated)
	assert.False(t, h.m.Polling())
	assert.Equal(t, []string{"/login"}, h.sink.navigationsSeen())
	assert.Equal(t, []Notification{ExpiredNotification}, h.sink.notificationsSeen())

	h.clock.Step(testInterval)
	assert.Never(t, func() bool { return h.fetcher.callCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, h.sink.notificationsSeen(), 1)
}

func TestPolling_ApprovalChangeGatesSession(t *testing.T) {
	h := newHarness(t, "")
	h.authenticate(t, "abc")

	suspended := approvedUser()
	suspended.Institute.ApprovalStatus = "SUSPENDED"
	h.fetcher.respond(suspended, nil)
	h.tick(t, 2)

	snap := h.m.Snapshot()
	assert.True(t, snap.Gated)
	assert.True(t, snap.Authenticated)
}
