package tui

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

// MinPasswordLength is the shortest password the registry accepts.
const MinPasswordLength = 8

// Session is the part of the session manager the console drives.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	SetToken(token string)
	Logout()
	RefetchIdentity()
}

// API is the set of registry operations the console calls.
type API interface {
	Login(ctx context.Context, email, password string) (*registry.AuthPayload, error)
	RegisterUser(ctx context.Context, in registry.RegisterUserInput) (*registry.AuthPayload, error)
	RegisterInstitute(ctx context.Context, in registry.RegisterInstituteInput) (*registry.Institute, error)
	Patients(ctx context.Context, filter registry.PatientFilter) (*registry.PatientPage, error)
}

// LoginAnswers holds the values of the login form.
type LoginAnswers struct {
	Email    string
	Password string
}

// RegisterAnswers holds the values of the registration wizard.
type RegisterAnswers struct {
	Name     string
	Email    string
	Password string
	Confirm  string
	Role     registry.Role

	InstituteName string
	City          string
	Country       string
	ContactEmail  string
	ContactPhone  string
}

// UserInput returns the account step.
func (a *RegisterAnswers) UserInput() registry.RegisterUserInput {
	return registry.RegisterUserInput{
		Name:     strings.TrimSpace(a.Name),
		Email:    strings.TrimSpace(a.Email),
		Password: a.Password,
		Role:     a.Role,
	}
}

// InstituteInput returns the institute step and whether it applies.
func (a *RegisterAnswers) InstituteInput() (registry.RegisterInstituteInput, bool) {
	if a.Role != registry.RoleInstituteAdmin {
		return registry.RegisterInstituteInput{}, false
	}
	contact := strings.TrimSpace(a.ContactEmail)
	if contact == "" {
		contact = strings.TrimSpace(a.Email)
	}
	return registry.RegisterInstituteInput{
		Name:         strings.TrimSpace(a.InstituteName),
		City:         strings.TrimSpace(a.City),
		Country:      strings.TrimSpace(a.Country),
		ContactEmail: contact,
		ContactPhone: strings.TrimSpace(a.ContactPhone),
	}, true
}

// NewLoginForm builds the sign-in form bound to answers.
func NewLoginForm(answers *LoginAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("email").
				Title("Email").
				Value(&answers.Email).
				Validate(validateEmail),
			huh.NewInput().
				Key("password").
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&answers.Password).
				Validate(required("password")),
		).Title("Sign in").Description("ctrl+n creates a new account"),
	)
}

// NewRegisterForm builds the registration wizard bound to answers. The
// institute group is only shown to institute admins.
func NewRegisterForm(answers *RegisterAnswers) *huh.Form {
	if answers.Role == "" {
		answers.Role = registry.RoleInstituteUser
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Key("name").Title("Full name").Value(&answers.Name).Validate(required("name")),
			huh.NewInput().Key("email").Title("Email").Value(&answers.Email).Validate(validateEmail),
			huh.NewInput().
				Key("password").
				Title("Password").
				Description(fmt.Sprintf("At least %d characters", MinPasswordLength)).
				EchoMode(huh.EchoModePassword).
				Value(&answers.Password).
				Validate(validatePassword),
			huh.NewInput().
				Key("confirm").
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&answers.Confirm).
				Validate(func(s string) error {
					if s != answers.Password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		).Title("Create account"),
		huh.NewGroup(
			huh.NewSelect[registry.Role]().
				Key("role").
				Title("Role").
				Options(
					huh.NewOption("Institute staff", registry.RoleInstituteUser),
					huh.NewOption("Institute administrator (registers a new institute)", registry.RoleInstituteAdmin),
				).
				Value(&answers.Role),
		).Title("Role"),
		huh.NewGroup(
			huh.NewInput().Key("institute").Title("Institute name").Value(&answers.InstituteName).Validate(required("institute name")),
			huh.NewInput().Key("city").Title("City").Value(&answers.City).Validate(required("city")),
			huh.NewInput().Key("country").Title("Country").Value(&answers.Country).Validate(required("country")),
			huh.NewInput().Key("contact").Title("Contact email").Placeholder("defaults to your email").Value(&answers.ContactEmail),
			huh.NewInput().Key("phone").Title("Contact phone").Value(&answers.ContactPhone),
		).Title("Institute").
			Description("New institutes are reviewed before their admins get access").
			WithHideFunc(func() bool { return answers.Role != registry.RoleInstituteAdmin }),
	)
}

// SubmitLogin signs in and hands the token to the session.
func SubmitLogin(ctx context.Context, api API, s Session, answers LoginAnswers) error {
	payload, err := api.Login(ctx, strings.TrimSpace(answers.Email), answers.Password)
	if err != nil {
		return err
	}
	s.SetToken(payload.Token)
	return nil
}

// SubmitRegistration creates the account, stores its token and, for institute
// admins, registers the institute and refreshes the identity so the session
// sees it.
func SubmitRegistration(ctx context.Context, api API, s Session, answers RegisterAnswers) error {
	payload, err := api.RegisterUser(ctx, answers.UserInput())
	if err != nil {
		return err
	}
	s.SetToken(payload.Token)

	in, ok := answers.InstituteInput()
	if !ok {
		return nil
	}
	if _, err := api.RegisterInstitute(ctx, in); err != nil {
		return fmt.Errorf("account created but institute registration failed: %w", err)
	}
	s.RefetchIdentity()
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("%q is not a valid email address", s)
	}
	return nil
}

func validatePassword(s string) error {
	if len(s) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
