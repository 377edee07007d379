package session

import "k8s.io/utils/clock"

// poller is the handle of a running freshness loop.
type poller struct {
	ticker clock.Ticker
	done   chan struct{}
}

// StartPolling starts the identity refresh loop. It is a no-op when the
// loop is already running or no token is present.
func (m *Manager) StartPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startPollingLocked()
}

// StopPolling stops the refresh loop. A second call is a no-op.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopPollingLocked()
}

// Polling reports whether the refresh loop is running.
func (m *Manager) Polling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poll != nil
}

func (m *Manager) startPollingLocked() {
	if m.closed || m.poll != nil || m.token == "" {
		return
	}

	p := &poller{
		ticker: m.clock.NewTicker(m.interval),
		done:   make(chan struct{}),
	}
	m.poll = p
	m.logger.Debug("polling started", "interval", m.interval)

	go m.pollLoop(p)
}

func (m *Manager) stopPollingLocked() {
	if m.poll == nil {
		return
	}
	m.poll.ticker.Stop()
	close(m.poll.done)
	m.poll = nil
	m.logger.Debug("polling stopped")
}

func (m *Manager) pollLoop(p *poller) {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C():
			m.tick(p)
		}
	}
}

// tick refetches if p is still the active loop. The check and the fetch
// start happen under one lock so a tick racing a logout sees no token.
func (m *Manager) tick(p *poller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poll != p {
		return
	}
	m.refetchLocked("poll")
}
