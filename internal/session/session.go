// Package session owns the registry bearer token and the identity resolved
// from it. The Manager keeps the identity fresh with a polling loop, derives
// whether access is gated on institute approval, and tears the session down
// when the server reports the credential as expired or invalid.
package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/felixgeelhaar/ckdreg/internal/log"
	"github.com/felixgeelhaar/ckdreg/internal/metrics"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
)

const (
	// DefaultPollInterval is the identity refresh interval.
	DefaultPollInterval = 30 * time.Second
	// DefaultLoginPath is where expired sessions are redirected.
	DefaultLoginPath = "/login"
)

// IdentityFetcher resolves the user behind the current token.
// *registry.Client implements it.
type IdentityFetcher interface {
	Me(ctx context.Context) (*registry.User, error)
}

// CachePurger drops cached responses when the token changes.
type CachePurger interface {
	Purge()
}

// Options configures a Manager.
type Options struct {
	Store   security.TokenStore
	Fetcher IdentityFetcher

	// Notifier receives the session-expired notification. Defaults to a
	// line on stderr.
	Notifier Notifier
	// Cache is purged on every token change.
	Cache CachePurger

	PollInterval time.Duration
	LoginPath    string

	// HardRedirect is used when no navigator has been registered yet.
	// Defaults to a notice on stderr.
	HardRedirect HardRedirect

	Clock   clock.WithTicker
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Manager is the single source of truth for the session.
type Manager struct {
	store        security.TokenStore
	fetcher      IdentityFetcher
	notifier     Notifier
	cache        CachePurger
	interval     time.Duration
	loginPath    string
	hardRedirect HardRedirect
	clock        clock.WithTicker
	logger       *log.Logger
	metrics      *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	token     string
	epoch     uint64
	user      *registry.User
	pending   int
	requeue   bool
	poll      *poller
	navigate  func(path string)
	closed    bool
	state     State
	last      *Snapshot
	subs      map[int]chan Snapshot
	nextSubID int
}

// New creates a Manager. Call Initialize to load the stored token.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("session: token store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("session: identity fetcher is required")
	}

	m := &Manager{
		store:        opts.Store,
		fetcher:      opts.Fetcher,
		notifier:     opts.Notifier,
		cache:        opts.Cache,
		interval:     opts.PollInterval,
		loginPath:    opts.LoginPath,
		hardRedirect: opts.HardRedirect,
		clock:        opts.Clock,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		subs:         make(map[int]chan Snapshot),
	}
	if m.notifier == nil {
		m.notifier = WriterNotifier(os.Stderr)
	}
	if m.interval <= 0 {
		m.interval = DefaultPollInterval
	}
	if m.loginPath == "" {
		m.loginPath = DefaultLoginPath
	}
	if m.hardRedirect == nil {
		m.hardRedirect = WriterRedirect(os.Stderr)
	}
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.logger == nil {
		m.logger = log.Discard()
	}
	m.logger = m.logger.With("component", "session")
	m.ctx, m.cancel = context.WithCancel(context.Background())

	return m, nil
}

// Initialize reads the stored token and starts resolving it.
func (m *Manager) Initialize() {
	token, err := m.store.Get()
	if err != nil {
		m.logger.WithError(err).Warn("failed to read stored token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		m.publishLocked()
		return
	}
	m.token = token
	m.epoch++
	m.startFetchLocked("startup")
	m.publishLocked()
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// SetToken persists token and starts resolving it. An empty token logs the
// session out without a redirect.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		m.clearLocked()
		m.publishLocked()
		return
	}

	if err := m.store.Set(token); err != nil {
		m.logger.WithError(err).Warn("failed to persist token")
	}
	m.token = token
	m.epoch++
	m.user = nil
	m.pending = 0
	m.requeue = false
	m.purgeCache()
	m.startFetchLocked("token")
	m.publishLocked()
}

// Logout clears the session and redirects to the login surface.
func (m *Manager) Logout() {
	m.SetToken("")
	m.redirect(m.loginPath)
}

// RefetchIdentity re-runs the identity fetch. Without a token it does
// nothing. A call made while a fetch is in flight is queued and runs once
// that fetch completes, so data written after the in-flight request started
// is still picked up. Repeated calls coalesce into one follow-up fetch.
func (m *Manager) RefetchIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed && m.token != "" && m.pending > 0 {
		m.requeue = true
		return
	}
	m.refetchLocked("refetch")
}

func (m *Manager) refetchLocked(reason string) {
	if m.closed || m.token == "" || m.pending > 0 {
		return
	}
	m.startFetchLocked(reason)
	m.publishLocked()
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot and every
// change after it. The channel holds only the latest snapshot; a slow reader
// skips intermediate states. Call cancel to unsubscribe. After Close the
// channel holds the final snapshot and is already closed.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Snapshot, 1)
	ch <- m.snapshotLocked()
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// SetNavigator registers the router used for redirects. Passing nil
// restores the hard-redirect fallback.
func (m *Manager) SetNavigator(navigate func(path string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigate = navigate
}

// LoginPath returns the redirect target for ended sessions.
func (m *Manager) LoginPath() string {
	return m.loginPath
}

// Wait blocks until every in-flight identity fetch has completed.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops polling, cancels in-flight fetches and closes subscriptions.
// The stored token is left in place.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopPollingLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) startFetchLocked(reason string) {
	if m.closed {
		m.logger.Debug("manager closed, not fetching identity", "reason", reason)
		return
	}
	epoch := m.epoch
	m.pending++
	m.wg.Add(1)

	m.logger.Debug("fetching identity", "reason", reason)
	go func() {
		defer m.wg.Done()
		user, err := m.fetcher.Me(m.ctx)
		m.complete(epoch, user, err)
	}()
}

// complete applies a fetch result. Results for an older token are dropped.
func (m *Manager) complete(epoch uint64, user *registry.User, err error) {
	m.mu.Lock()

	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Debug("discarding identity result for a replaced token")
		return
	}
	m.pending--

	kind := Classify(err)
	m.metrics.RecordIdentityFetch(kind.String())

	switch kind {
	case KindNone:
		m.user = user
		m.startPollingLocked()
		m.publishLocked()
		m.drainRequeueLocked()
		m.mu.Unlock()

	case KindCredentialExpired:
		m.logger.WithError(err).Warn("credential expired", "error_kind", kind.String())
		m.clearLocked()
		m.publishLocked()
		m.mu.Unlock()

		m.metrics.RecordExpiration()
		m.notifier.Notify(ExpiredNotification)
		m.redirect(m.loginPath)

	case KindAuthentication:
		m.logger.WithError(err).Warn("identity rejected, clearing token", "error_kind", kind.String())
		m.clearLocked()
		m.publishLocked()
		m.mu.Unlock()

	default:
		if m.closed || m.ctx.Err() != nil {
			m.logger.WithError(err).Debug("identity fetch cancelled by shutdown")
			m.publishLocked()
			m.mu.Unlock()
			return
		}
		m.logger.WithError(err).Error("identity fetch failed", "error_kind", kind.String())
		// Keep polling so a transient failure resolves on a later tick.
		m.startPollingLocked()
		m.publishLocked()
		m.drainRequeueLocked()
		m.mu.Unlock()
	}
}

// drainRequeueLocked starts the fetch queued by RefetchIdentity while the
// previous one was in flight.
func (m *Manager) drainRequeueLocked() {
	if !m.requeue || m.token == "" || m.pending > 0 {
		return
	}
	m.requeue = false
	m.startFetchLocked("refetch")
	m.publishLocked()
}

// clearLocked stops polling, erases the stored token and drops the user.
func (m *Manager) clearLocked() {
	m.stopPollingLocked()
	if err := m.store.Delete(); err != nil {
		m.logger.WithError(err).Warn("failed to delete stored token")
	}
	if m.token != "" {
		m.purgeCache()
	}
	m.token = ""
	m.epoch++
	m.user = nil
	m.pending = 0
	m.requeue = false
}

func (m *Manager) purgeCache() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

func (m *Manager) redirect(path string) {
	m.mu.Lock()
	navigate := m.navigate
	m.mu.Unlock()

	if navigate != nil {
		navigate(path)
		return
	}
	m.logger.Debug("no navigator registered, using hard redirect", "path", path)
	m.hardRedirect(path)
}

func (m *Manager) snapshotLocked() Snapshot {
	return snapshotOf(m.token, m.user, m.pending)
}

// publishLocked delivers a changed snapshot to subscribers, replacing any
// snapshot they have not read yet.
func (m *Manager) publishLocked() {
	snap := m.snapshotLocked()
	if m.last != nil && m.last.Equal(snap) {
		return
	}
	m.last = &snap

	if snap.State != m.state {
		m.metrics.RecordTransition(m.state.String(), snap.State.String())
		m.logger.Info("session state changed", "from", m.state.String(), "to", snap.State.String())
		m.state = snap.State
	}

	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
