package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/session"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

// Route is a console screen path.
type Route string

// Console routes.
const (
	RouteLogin     Route = "/login"
	RouteRegister  Route = "/register"
	RouteDashboard Route = "/dashboard"
	RoutePending   Route = "/pending"
)

// DefaultToastTTL is how long a notification stays on screen.
const DefaultToastTTL = 5 * time.Second

const patientPageSize = 50

// SnapshotMsg carries a session snapshot into the program.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// NavigateMsg switches the console to a route.
type NavigateMsg struct {
	Path string
}

// NotifyMsg shows a toast.
type NotifyMsg struct {
	Notification session.Notification
}

type toastExpiredMsg struct{ id int }

type subscriptionClosedMsg struct{}

type loginDoneMsg struct{ err error }

type registerDoneMsg struct{ err error }

type patientsMsg struct {
	page *registry.PatientPage
	err  error
}

type toast struct {
	id           int
	notification session.Notification
}

// Console is the full-screen registry console. Routing follows the session
// snapshot: unauthenticated sessions see the sign-in screens, gated ones the
// pending screen and everyone else the dashboard.
type Console struct {
	ctx         context.Context
	session     Session
	api         API
	updates     <-chan session.Snapshot
	unsubscribe func()

	route Route
	snap  session.Snapshot

	loginForm  *huh.Form
	login      *LoginAnswers
	signupForm *huh.Form
	signup     *RegisterAnswers
	submitting bool
	formErr    string

	patients        table.Model
	page            *registry.PatientPage
	patientsErr     string
	loadingPatients bool
	checking        bool

	spinner   spinner.Model
	toasts    []toast
	nextToast int
	toastTTL  time.Duration

	keys   keyMap
	styles Styles
	width  int
	height int
}

// NewConsole creates a console subscribed to s.
func NewConsole(ctx context.Context, s Session, api API) *Console {
	styles := DefaultStyles()

	columns := make([]table.Column, len(ux.PatientColumns))
	widths := []int{12, 24, 10, 4, 9, 11, 10}
	for i, title := range ux.PatientColumns {
		columns[i] = table.Column{Title: title, Width: widths[i]}
	}

	updates, unsubscribe := s.Subscribe()

	return &Console{
		ctx:         ctx,
		session:     s,
		api:         api,
		updates:     updates,
		unsubscribe: unsubscribe,
		snap:        s.Snapshot(),
		patients: table.New(
			table.WithColumns(columns),
			table.WithFocused(true),
			table.WithHeight(10),
		),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.Status),
		),
		toastTTL: DefaultToastTTL,
		keys:     defaultKeyMap(),
		styles:   styles,
	}
}

// Route returns the active route.
func (c *Console) Route() Route {
	return c.route
}

// Close releases the session subscription.
func (c *Console) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Init implements tea.Model.
func (c *Console) Init() tea.Cmd {
	return tea.Batch(c.spinner.Tick, c.waitForSnapshot(), c.follow(c.snap))
}

// Update implements tea.Model.
func (c *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		c.patients.SetHeight(max(5, msg.Height-14))
		return c, c.updateForm(msg)

	case tea.KeyMsg:
		if key.Matches(msg, c.keys.Quit) {
			c.Close()
			return c, tea.Quit
		}
		if cmd, ok := c.handleKey(msg); ok {
			return c, cmd
		}

	case SnapshotMsg:
		return c, tea.Batch(c.follow(msg.Snapshot), c.waitForSnapshot())

	case subscriptionClosedMsg:
		return c, nil

	case NavigateMsg:
		return c, c.navigate(Route(msg.Path))

	case NotifyMsg:
		return c, c.addToast(msg.Notification)

	case toastExpiredMsg:
		c.dropToast(msg.id)
		return c, nil

	case loginDoneMsg:
		c.submitting = false
		if msg.err != nil && c.route == RouteLogin {
			c.formErr = msg.err.Error()
			return c, c.resetLogin(c.login.Email)
		}
		return c, nil

	case registerDoneMsg:
		c.submitting = false
		if msg.err != nil && c.route == RouteRegister {
			c.formErr = msg.err.Error()
			if c.snap.Authenticated {
				return c, nil
			}
			return c, c.resetRegister()
		}
		return c, nil

	case patientsMsg:
		c.loadingPatients = false
		if msg.err != nil {
			c.patientsErr = msg.err.Error()
			return c, nil
		}
		c.patientsErr = ""
		c.page = msg.page
		rows := make([]table.Row, 0, len(msg.page.Items))
		for _, p := range msg.page.Items {
			rows = append(rows, table.Row(ux.PatientRow(p)))
		}
		c.patients.SetRows(rows)
		return c, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd
	}

	return c, c.updateActive(msg)
}

func (c *Console) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch c.route {
	case RouteLogin:
		if key.Matches(msg, c.keys.Register) && !c.submitting {
			return c.goTo(RouteRegister), true
		}
	case RouteRegister:
		if key.Matches(msg, c.keys.Back) && !c.submitting {
			return c.goTo(RouteLogin), true
		}
	case RouteDashboard:
		switch {
		case key.Matches(msg, c.keys.Exit):
			c.Close()
			return tea.Quit, true
		case key.Matches(msg, c.keys.Refresh):
			return c.loadPatients(), true
		case key.Matches(msg, c.keys.Logout):
			return c.logout(), true
		}
	case RoutePending:
		switch {
		case key.Matches(msg, c.keys.Exit):
			c.Close()
			return tea.Quit, true
		case key.Matches(msg, c.keys.Check):
			c.checking = true
			return c.refetch(), true
		case key.Matches(msg, c.keys.Logout):
			return c.logout(), true
		}
	}
	return nil, false
}

// follow routes according to snap. Resolving keeps the current screen.
func (c *Console) follow(snap session.Snapshot) tea.Cmd {
	c.snap = snap
	if !snap.Loading {
		c.checking = false
	}

	switch snap.State {
	case session.Unauthenticated:
		if c.route != RouteLogin && c.route != RouteRegister {
			return c.goTo(RouteLogin)
		}
		// A submitted form whose token was rejected starts over.
		if form := c.activeForm(); form != nil && form.State != huh.StateNormal && !c.submitting {
			if c.route == RouteLogin {
				return c.resetLogin(c.login.Email)
			}
			return c.resetRegister()
		}
	case session.Gated:
		return c.navigate(RoutePending)
	case session.Authenticated:
		return c.navigate(RouteDashboard)
	}
	return nil
}

func (c *Console) navigate(r Route) tea.Cmd {
	if r == c.route {
		return nil
	}
	switch r {
	case RouteLogin, RouteRegister, RouteDashboard, RoutePending:
		return c.goTo(r)
	}
	return nil
}

func (c *Console) goTo(r Route) tea.Cmd {
	c.route = r
	c.formErr = ""
	c.submitting = false

	switch r {
	case RouteLogin:
		return c.resetLogin("")
	case RouteRegister:
		return c.resetRegister()
	case RouteDashboard:
		return c.loadPatients()
	}
	return nil
}

func (c *Console) resetLogin(email string) tea.Cmd {
	c.login = &LoginAnswers{Email: email}
	c.loginForm = NewLoginForm(c.login)
	c.sizeForm(c.loginForm)
	return c.loginForm.Init()
}

func (c *Console) resetRegister() tea.Cmd {
	c.signup = &RegisterAnswers{}
	c.signupForm = NewRegisterForm(c.signup)
	c.sizeForm(c.signupForm)
	return c.signupForm.Init()
}

func (c *Console) sizeForm(f *huh.Form) {
	if c.width > 0 {
		f.WithWidth(min(c.width-4, 80))
	}
}

func (c *Console) activeForm() *huh.Form {
	switch c.route {
	case RouteLogin:
		return c.loginForm
	case RouteRegister:
		return c.signupForm
	}
	return nil
}

func (c *Console) updateForm(msg tea.Msg) tea.Cmd {
	form := c.activeForm()
	if form == nil || c.submitting || form.State != huh.StateNormal {
		return nil
	}
	model, cmd := form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		form = f
		if c.route == RouteLogin {
			c.loginForm = f
		} else {
			c.signupForm = f
		}
	}

	switch form.State {
	case huh.StateCompleted:
		c.submitting = true
		c.formErr = ""
		if c.route == RouteLogin {
			return tea.Batch(cmd, c.submitLogin(*c.login))
		}
		return tea.Batch(cmd, c.submitRegistration(*c.signup))
	case huh.StateAborted:
		if c.route == RouteRegister {
			return c.goTo(RouteLogin)
		}
		return c.resetLogin(c.login.Email)
	}
	return cmd
}

func (c *Console) updateActive(msg tea.Msg) tea.Cmd {
	switch c.route {
	case RouteLogin, RouteRegister:
		return c.updateForm(msg)
	case RouteDashboard:
		var cmd tea.Cmd
		c.patients, cmd = c.patients.Update(msg)
		return cmd
	}
	return nil
}

func (c *Console) waitForSnapshot() tea.Cmd {
	updates := c.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return subscriptionClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func (c *Console) submitLogin(answers LoginAnswers) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: SubmitLogin(c.ctx, c.api, c.session, answers)}
	}
}

func (c *Console) submitRegistration(answers RegisterAnswers) tea.Cmd {
	return func() tea.Msg {
		return registerDoneMsg{err: SubmitRegistration(c.ctx, c.api, c.session, answers)}
	}
}

func (c *Console) loadPatients() tea.Cmd {
	if c.loadingPatients {
		return nil
	}
	c.loadingPatients = true
	return func() tea.Msg {
		page, err := c.api.Patients(c.ctx, registry.PatientFilter{Limit: patientPageSize})
		return patientsMsg{page: page, err: err}
	}
}

func (c *Console) logout() tea.Cmd {
	return func() tea.Msg {
		c.session.Logout()
		return nil
	}
}

func (c *Console) refetch() tea.Cmd {
	return func() tea.Msg {
		c.session.RefetchIdentity()
		return nil
	}
}

func (c *Console) addToast(n session.Notification) tea.Cmd {
	c.nextToast++
	id := c.nextToast
	c.toasts = append(c.toasts, toast{id: id, notification: n})
	return tea.Tick(c.toastTTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (c *Console) dropToast(id int) {
	for i, t := range c.toasts {
		if t.id == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return
		}
	}
}
