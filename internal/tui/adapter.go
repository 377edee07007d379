package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/ckdreg/internal/session"
)

// Adapter bridges session callbacks into a running console program.
// Before Attach and after Detach it forwards to the fallbacks.
type Adapter struct {
	mu       sync.Mutex
	program  *tea.Program
	notifier session.Notifier
	redirect session.HardRedirect
}

// NewAdapter creates an Adapter with fallbacks for when no program runs.
func NewAdapter(notifier session.Notifier, redirect session.HardRedirect) *Adapter {
	return &Adapter{notifier: notifier, redirect: redirect}
}

// Attach routes callbacks to p.
func (a *Adapter) Attach(p *tea.Program) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.program = p
}

// Detach restores the fallbacks.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.program = nil
}

func (a *Adapter) current() *tea.Program {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.program
}

// Notify shows n as a toast. Send runs on its own goroutine because the
// session may call back from inside the program's Update.
func (a *Adapter) Notify(n session.Notification) {
	if p := a.current(); p != nil {
		go p.Send(NotifyMsg{Notification: n})
		return
	}
	if a.notifier != nil {
		a.notifier.Notify(n)
	}
}

// Navigate switches the console to path.
func (a *Adapter) Navigate(path string) {
	if p := a.current(); p != nil {
		go p.Send(NavigateMsg{Path: path})
		return
	}
	if a.redirect != nil {
		a.redirect(path)
	}
}

// Navigable accepts a late-bound navigator. *session.Manager implements it.
type Navigable interface {
	SetNavigator(navigate func(path string))
}

// Run starts the console and routes the session's redirects into it until
// the program exits.
func Run(ctx context.Context, c *Console, adapter *Adapter, nav Navigable, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(c, opts...)

	adapter.Attach(p)
	nav.SetNavigator(adapter.Navigate)
	defer func() {
		nav.SetNavigator(nil)
		adapter.Detach()
		c.Close()
	}()

	_, err := p.Run()
	return err
}
