package tui

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

type fakeSession struct {
	mu        sync.Mutex
	snap      session.Snapshot
	updates   chan session.Snapshot
	tokens    []string
	logouts   int
	refetches int
	closed    bool
}

func newFakeSession(snap session.Snapshot) *fakeSession {
	return &fakeSession{snap: snap, updates: make(chan session.Snapshot, 4)}
}

func (s *fakeSession) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSession) Subscribe() (<-chan session.Snapshot, func()) {
	return s.updates, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
	}
}

func (s *fakeSession) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
}

func (s *fakeSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
}

func (s *fakeSession) RefetchIdentity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refetches++
}

type fakeAPI struct {
	mu          sync.Mutex
	loginErr    error
	registerErr error
	instErr     error
	patientsErr error
	page        *registry.PatientPage
	logins      []string
	users       []registry.RegisterUserInput
	institutes  []registry.RegisterInstituteInput
	filters     []registry.PatientFilter
}

func (a *fakeAPI) Login(_ context.Context, email, _ string) (*registry.AuthPayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, email)
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return &registry.AuthPayload{Token: "login-token"}, nil
}

func (a *fakeAPI) RegisterUser(_ context.Context, in registry.RegisterUserInput) (*registry.AuthPayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = append(a.users, in)
	if a.registerErr != nil {
		return nil, a.registerErr
	}
	return &registry.AuthPayload{Token: "register-token"}, nil
}

func (a *fakeAPI) RegisterInstitute(_ context.Context, in registry.RegisterInstituteInput) (*registry.Institute, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.institutes = append(a.institutes, in)
	if a.instErr != nil {
		return nil, a.instErr
	}
	return &registry.Institute{ID: "i-1", Name: in.Name, ApprovalStatus: registry.ApprovalPending}, nil
}

func (a *fakeAPI) Patients(_ context.Context, filter registry.PatientFilter) (*registry.PatientPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters = append(a.filters, filter)
	if a.patientsErr != nil {
		return nil, a.patientsErr
	}
	if a.page == nil {
		return &registry.PatientPage{}, nil
	}
	return a.page, nil
}

// registryIdentity answers Me from the fakeAPI state at request time. Calls
// block until release is closed.
type registryIdentity struct {
	api     *fakeAPI
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (r *registryIdentity) Me(ctx context.Context) (*registry.User, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	r.api.mu.Lock()
	registered := len(r.api.institutes) > 0
	r.api.mu.Unlock()

	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	user := &registry.User{ID: "u-1", Email: "ana@renal.org", Role: registry.RoleInstituteAdmin}
	if registered {
		user.Institute = &registry.Institute{ID: "i-1", Name: "Renal Unit", ApprovalStatus: registry.ApprovalPending}
	}
	return user, nil
}

func (r *registryIdentity) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSubmitLogin(t *testing.T) {
	t.Run("stores token", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{}

		err := SubmitLogin(context.Background(), api, s, LoginAnswers{Email: " ana@renal.org ", Password: "secret"})
		require.NoError(t, err)

		assert.Equal(t, []string{"ana@renal.org"}, api.logins)
		assert.Equal(t, []string{"login-token"}, s.tokens)
	})

	t.Run("failure leaves session alone", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{loginErr: errors.New("invalid credentials")}

		err := SubmitLogin(context.Background(), api, s, LoginAnswers{Email: "ana@renal.org", Password: "bad"})
		require.Error(t, err)
		assert.Empty(t, s.tokens)
	})
}

func TestSubmitRegistration(t *testing.T) {
	t.Run("institute user", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{}

		answers := RegisterAnswers{Name: "Ana", Email: "ana@renal.org", Password: "longenough", Role: registry.RoleInstituteUser}
		require.NoError(t, SubmitRegistration(context.Background(), api, s, answers))

		assert.Equal(t, []string{"register-token"}, s.tokens)
		assert.Empty(t, api.institutes)
		assert.Zero(t, s.refetches)
	})

	t.Run("institute admin registers institute", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{}

		answers := RegisterAnswers{
			Name: "Ana", Email: "ana@renal.org", Password: "longenough", Role: registry.RoleInstituteAdmin,
			InstituteName: " Renal Unit ", City: "Porto", Country: "PT",
		}
		require.NoError(t, SubmitRegistration(context.Background(), api, s, answers))

		require.Len(t, api.institutes, 1)
		assert.Equal(t, "Renal Unit", api.institutes[0].Name)
		assert.Equal(t, "ana@renal.org", api.institutes[0].ContactEmail)
		assert.Equal(t, 1, s.refetches)
	})

	t.Run("institute failure keeps account token", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{instErr: errors.New("duplicate institute")}

		answers := RegisterAnswers{Name: "Ana", Email: "ana@renal.org", Password: "longenough", Role: registry.RoleInstituteAdmin, InstituteName: "Renal Unit"}
		err := SubmitRegistration(context.Background(), api, s, answers)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "account created")
		assert.Equal(t, []string{"register-token"}, s.tokens)
		assert.Zero(t, s.refetches)
	})

	t.Run("session sees institute registered during first fetch", func(t *testing.T) {
		api := &fakeAPI{}
		identity := &registryIdentity{api: api, release: make(chan struct{})}
		m, err := session.New(session.Options{
			Store:        security.NewMemoryStore(""),
			Fetcher:      identity,
			Notifier:     session.WriterNotifier(io.Discard),
			HardRedirect: session.WriterRedirect(io.Discard),
		})
		require.NoError(t, err)
		defer m.Close()

		answers := RegisterAnswers{
			Name: "Ana", Email: "ana@renal.org", Password: "longenough", Role: registry.RoleInstituteAdmin,
			InstituteName: "Renal Unit",
		}
		require.NoError(t, SubmitRegistration(context.Background(), api, m, answers))
		close(identity.release)
		m.Wait()

		snap := m.Snapshot()
		require.NotNil(t, snap.User)
		require.NotNil(t, snap.User.Institute)
		assert.Equal(t, session.Gated, snap.State)
		assert.Equal(t, 2, identity.callCount())
	})

	t.Run("user failure", func(t *testing.T) {
		s := newFakeSession(session.Snapshot{})
		api := &fakeAPI{registerErr: errors.New("email taken")}

		err := SubmitRegistration(context.Background(), api, s, RegisterAnswers{Email: "ana@renal.org", Role: registry.RoleInstituteAdmin})
		require.Error(t, err)
		assert.Empty(t, s.tokens)
		assert.Empty(t, api.institutes)
	})
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateEmail("ana@renal.org"))
	assert.Error(t, validateEmail(""))
	assert.Error(t, validateEmail("not-an-email"))

	assert.NoError(t, validatePassword("12345678"))
	assert.Error(t, validatePassword("short"))

	assert.Error(t, required("name")("   "))
	assert.NoError(t, required("name")("Ana"))
}

func TestNewRegisterFormDefaultsRole(t *testing.T) {
	answers := &RegisterAnswers{}
	form := NewRegisterForm(answers)

	assert.Equal(t, registry.RoleInstituteUser, answers.Role)
	assert.Equal(t, huh.StateNormal, form.State)
}

func TestInstituteInput(t *testing.T) {
	user := RegisterAnswers{Role: registry.RoleInstituteUser, InstituteName: "ignored"}
	_, ok := user.InstituteInput()
	assert.False(t, ok)

	admin := RegisterAnswers{Role: registry.RoleInstituteAdmin, Email: "a@b.org", ContactEmail: "desk@b.org"}
	in, ok := admin.InstituteInput()
	assert.True(t, ok)
	assert.Equal(t, "desk@b.org", in.ContactEmail)
}
