package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/felixgeelhaar/ckdreg/internal/graphql"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
)

const testInterval = 30 * time.Second

var (
	errExpired = &graphql.Error{Entries: []graphql.ErrorEntry{{
		Message:    "jwt expired",
		Extensions: map[string]any{"code": "UNAUTHENTICATED"},
	}}}
	errUnauthenticated = &graphql.Error{Entries: []graphql.ErrorEntry{{
		Message:    "Not authenticated",
		Extensions: map[string]any{"code": "UNAUTHENTICATED"},
	}}}
	errUnknownEnum = &registry.EnumError{Enum: "ApprovalStatus", Value: "ON_HOLD"}
	errNetwork     = &graphql.HTTPError{StatusCode: 503}
)

func approvedUser() *registry.User {
	return &registry.User{
		ID:    "u-1",
		Email: "admin@renal.org",
		Name:  "Ada",
		Role:  registry.RoleInstituteAdmin,
		Institute: &registry.Institute{
			ID:             "i-1",
			Name:           "Renal Unit",
			ApprovalStatus: registry.ApprovalApproved,
		},
	}
}

func pendingUser() *registry.User {
	u := approvedUser()
	u.Institute.ApprovalStatus = registry.ApprovalPending
	return u
}

// fakeFetcher returns a configurable result and counts calls. When gate is
// set each call blocks until the gate is closed.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	user  *registry.User
	err   error
	gate  chan struct{}
}

func (f *fakeFetcher) Me(ctx context.Context) (*registry.User, error) {
	f.mu.Lock()
	f.calls++
	user, err, gate := f.user, f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return user, err
}

func (f *fakeFetcher) respond(user *registry.User, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user, f.err = user, err
}

func (f *fakeFetcher) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeFetcher) release(gate chan struct{}) {
	f.mu.Lock()
	f.gate = nil
	f.mu.Unlock()
	close(gate)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// sink records notifications, navigations and hard redirects.
type sink struct {
	mu            sync.Mutex
	notifications []Notification
	navigations   []string
	hardRedirects []string
}

func (s *sink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *sink) navigate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, path)
}

func (s *sink) hardRedirect(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardRedirects = append(s.hardRedirects, path)
}

func (s *sink) notificationsSeen() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

func (s *sink) navigationsSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

func (s *sink) hardRedirectsSeen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hardRedirects...)
}

// countingClock counts tickers created on a fake clock.
type countingClock struct {
	*testingclock.FakeClock
	tickers int32
}

func (c *countingClock) NewTicker(d time.Duration) clock.Ticker {
	atomic.AddInt32(&c.tickers, 1)
	return c.FakeClock.NewTicker(d)
}

func (c *countingClock) tickerCount() int {
	return int(atomic.LoadInt32(&c.tickers))
}

type countingPurger struct {
	n int32
}

func (p *countingPurger) Purge() { atomic.AddInt32(&p.n, 1) }

func (p *countingPurger) count() int { return int(atomic.LoadInt32(&p.n)) }

type harness struct {
	m       *Manager
	store   *security.MemoryStore
	fetcher *fakeFetcher
	clock   *countingClock
	sink    *sink
	cache   *countingPurger
}

func newHarness(t *testing.T, storedToken string) *harness {
	t.Helper()

	h := &harness{
		store:   security.NewMemoryStore(storedToken),
		fetcher: &fakeFetcher{user: approvedUser()},
		clock:   &countingClock{FakeClock: testingclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		sink:    &sink{},
		cache:   &countingPurger{},
	}

	m, err := New(Options{
		Store:        h.store,
		Fetcher:      h.fetcher,
		Notifier:     h.sink,
		Cache:        h.cache,
		PollInterval: testInterval,
		HardRedirect: h.sink.hardRedirect,
		Clock:        h.clock,
	})
	require.NoError(t, err)
	m.SetNavigator(h.sink.navigate)
	t.Cleanup(m.Close)

	h.m = m
	return h
}

// authenticate logs in with token and waits for the identity.
func (h *harness) authenticate(t *testing.T, token string) {
	t.Helper()
	h.m.SetToken(token)
	h.m.Wait()
	require.True(t, h.m.Snapshot().Authenticated)
}

// tick advances the clock one interval and waits for the fetch it starts.
func (h *harness) tick(t *testing.T, wantCalls int) {
	t.Helper()
	h.clock.Step(testInterval)
	require.Eventually(t, func() bool { return h.fetcher.callCount() == wantCalls },
		time.Second, time.Millisecond)
	h.m.Wait()
}

func (h *harness) storedToken(t *testing.T) string {
	t.Helper()
	token, err := h.store.Get()
	require.NoError(t, err)
	return token
}
