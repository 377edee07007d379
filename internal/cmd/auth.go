package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
	"github.com/felixgeelhaar/ckdreg/internal/tui"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your registry session",
	Long: `Manage your registry session.

The session token is stored encrypted in the token store (store.path).
Set CKDREG_STORE_PASSPHRASE to choose the passphrase protecting it.

Subcommands:
  login     Sign in with email and password
  register  Create an account (and an institute, for institute admins)
  logout    Sign out and remove the stored token
  status    Show the current session
  check     Re-check the session and exit with its state

Examples:
  ckdreg auth login --email ana@renal.org
  ckdreg auth register
  ckdreg auth status --output json
  ckdreg auth status --wait 10m
  ckdreg auth check && ckdreg patients list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the registry",
	Long: `Sign in to the registry with your email and password.

Missing values are prompted for when running in a terminal.

Examples:
  ckdreg auth login
  ckdreg auth login --email ana@renal.org --password "$CKDREG_PASSWORD"`,
	RunE: runAuthLogin,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a registry account",
	Long: `Create a registry account.

Institute administrators also register their institute. New institutes are
reviewed by a registry administrator; until then the session is gated.

Without flags an interactive wizard is shown.

Examples:
  ckdreg auth register
  ckdreg auth register --name "Ana Lima" --email ana@renal.org --password ... \
    --role institute_admin --institute "Renal Unit" --city Porto --country PT`,
	RunE: runAuthRegister,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored token",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Long: `Show the current session: identity, institute approval and token expiry.

With --wait, a gated session is kept open until the institute is approved
or the duration elapses.`,
	RunE: runAuthStatus,
}

var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Re-check the session and exit with its state",
	Long: `Resolve the session against the registry and exit with its state:

  0  access granted
  3  not logged in, or the session expired
  4  institute approval pending
  5  the registry could not be reached`,
	RunE: runAuthCheck,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authCheckCmd)

	authLoginCmd.Flags().String("email", "", "email address")
	authLoginCmd.Flags().String("password", "", "password")

	authRegisterCmd.Flags().String("name", "", "full name")
	authRegisterCmd.Flags().String("email", "", "email address")
	authRegisterCmd.Flags().String("password", "", "password")
	authRegisterCmd.Flags().String("role", "institute_user", "institute_user or institute_admin")
	authRegisterCmd.Flags().String("institute", "", "institute name (institute admins)")
	authRegisterCmd.Flags().String("city", "", "institute city")
	authRegisterCmd.Flags().String("country", "", "institute country")
	authRegisterCmd.Flags().String("contact-email", "", "institute contact email (defaults to --email)")
	authRegisterCmd.Flags().String("contact-phone", "", "institute contact phone")

	authLogoutCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	authStatusCmd.Flags().StringP("output", "o", "text", "output format: text, json, yaml")
	authStatusCmd.Flags().Duration("wait", 0, "wait up to this long for institute approval")

	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	answers := tui.LoginAnswers{Email: email, Password: password}

	if answers.Email == "" || answers.Password == "" {
		if !tui.ShouldPrompt() {
			return fmt.Errorf("required flag --email and --password must be set when prompts are disabled")
		}
		var err error
		if answers.Email == "" {
			err = tui.PromptLogin(&answers)
		} else {
			answers.Password, err = tui.PromptForPassword("Password for " + answers.Email)
		}
		if err != nil {
			return err
		}
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	return login(cmd.Context(), a, answers, cmd.OutOrStdout())
}

func login(ctx context.Context, a *app, answers tui.LoginAnswers, w io.Writer) error {
	if err := tui.SubmitLogin(ctx, a.api, a.session, answers); err != nil {
		return ux.FormatError(err, "")
	}
	a.session.Wait()
	return reportSignIn(w, a.session.Snapshot())
}

func runAuthRegister(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	email, _ := flags.GetString("email")
	password, _ := flags.GetString("password")
	roleName, _ := flags.GetString("role")
	institute, _ := flags.GetString("institute")
	city, _ := flags.GetString("city")
	country, _ := flags.GetString("country")
	contactEmail, _ := flags.GetString("contact-email")
	contactPhone, _ := flags.GetString("contact-phone")

	role, err := registry.ParseRole(strings.ToUpper(roleName))
	if err != nil || role == registry.RoleSuperAdmin {
		return fmt.Errorf("invalid flag --role %q: use institute_user or institute_admin", roleName)
	}

	answers := tui.RegisterAnswers{
		Name:          name,
		Email:         email,
		Password:      password,
		Confirm:       password,
		Role:          role,
		InstituteName: institute,
		City:          city,
		Country:       country,
		ContactEmail:  contactEmail,
		ContactPhone:  contactPhone,
	}

	if name == "" || email == "" || password == "" {
		if !tui.ShouldPrompt() {
			return fmt.Errorf("required flag --name, --email and --password must be set when prompts are disabled")
		}
		if err := tui.PromptRegistration(&answers); err != nil {
			return err
		}
	} else if err := validateRegistration(answers); err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	return register(cmd.Context(), a, answers, cmd.OutOrStdout())
}

func validateRegistration(answers tui.RegisterAnswers) error {
	if len(answers.Password) < tui.MinPasswordLength {
		return fmt.Errorf("invalid flag --password: must be at least %d characters", tui.MinPasswordLength)
	}
	if answers.Role != registry.RoleInstituteAdmin {
		return nil
	}
	var missing []string
	if answers.InstituteName == "" {
		missing = append(missing, "--institute")
	}
	if answers.City == "" {
		missing = append(missing, "--city")
	}
	if answers.Country == "" {
		missing = append(missing, "--country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required flag %s must be set for institute admins", strings.Join(missing, ", "))
	}
	return nil
}

func register(ctx context.Context, a *app, answers tui.RegisterAnswers, w io.Writer) error {
	if err := tui.SubmitRegistration(ctx, a.api, a.session, answers); err != nil {
		return ux.FormatError(err, "")
	}
	a.session.Wait()
	fmt.Fprintf(w, "✓ Account created for %s\n", answers.Email)
	return reportSignIn(w, a.session.Snapshot())
}

// reportSignIn describes the session right after a token was stored.
func reportSignIn(w io.Writer, snap session.Snapshot) error {
	switch snap.State {
	case session.Authenticated:
		u := snap.User
		fmt.Fprintf(w, "✓ Signed in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
	case session.Gated:
		u := snap.User
		fmt.Fprintf(w, "✓ Signed in as %s <%s> (%s)\n", u.Name, u.Email, u.Role)
		if u.Institute != nil {
			fmt.Fprintf(w, "! Institute %q is awaiting approval (%s)\n", u.Institute.Name, u.Institute.ApprovalStatus)
		} else {
			fmt.Fprintln(w, "! No institute is registered for this account")
		}
		fmt.Fprintln(w, "  Run 'ckdreg auth status --wait 10m' to wait for approval.")
	case session.Resolving:
		fmt.Fprintln(w, "✓ Signed in; the identity could not be resolved yet.")
		fmt.Fprintln(w, "  Run 'ckdreg auth check' once the registry is reachable.")
	default:
		return regerrors.New(regerrors.ErrCodeAuthLoginFailed, "the registry did not accept the new session").
			WithSuggestion("Try signing in again with 'ckdreg auth login'")
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

	a, err := newApp(cmd, appOptions{HardRedirect: func(string) {}})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	token, err := a.store.Get()
	if err != nil {
		return ux.FormatError(err, "")
	}
	if token == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}

	if !yes && tui.ShouldPrompt() {
		ok, err := tui.PromptForConfirmation(fmt.Sprintf("Sign out of %s?", a.cfg.API.URL), true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return logout(a, cmd.OutOrStdout())
}

func logout(a *app, w io.Writer) error {
	a.session.Logout()
	token, err := a.store.Get()
	if err != nil {
		return ux.FormatError(err, "")
	}
	if token != "" {
		return regerrors.New(regerrors.ErrCodeStoreWrite, "the stored token could not be removed").
			WithSuggestion("Delete the file at store.path ('ckdreg config get store.path')")
	}
	fmt.Fprintf(w, "✓ Signed out of %s\n", a.cfg.API.URL)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	wait, _ := cmd.Flags().GetDuration("wait")

	formatter, err := ux.NewFormatter(output, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return ux.FormatError(err, "")
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	return status(cmd.Context(), a, formatter, wait)
}

func status(ctx context.Context, a *app, formatter ux.Formatter, wait time.Duration) error {
	snap := a.resolve()

	var waitErr error
	if wait > 0 && snap.Gated {
		snap, waitErr = waitForApproval(ctx, a.session, wait)
	}

	var info *security.TokenInfo
	if token := a.session.Token(); token != "" {
		if ti, err := security.InspectToken(token); err == nil {
			info = &ti
		} else {
			a.logger.Debug("stored token is not a JWT", "error", err)
		}
	}

	if err := formatter.Format(ux.NewStatusView(a.cfg.API.URL, snap, info)); err != nil {
		return err
	}
	return waitErr
}

// waitForApproval blocks until the session is approved, the session ends,
// the timeout elapses or ctx is cancelled. The poller keeps the identity
// fresh in the meantime. Only an approved session returns a nil error.
func waitForApproval(ctx context.Context, s *session.Manager, timeout time.Duration) (session.Snapshot, error) {
	updates, cancel := s.Subscribe()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	last := s.Snapshot()
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return last, approvalOutcome(last)
			}
			last = snap
			switch snap.State {
			case session.Authenticated, session.Unauthenticated:
				return snap, approvalOutcome(snap)
			}
		case <-timer.C:
			return last, approvalOutcome(last)
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

// approvalOutcome maps the snapshot a wait ended on to its error.
func approvalOutcome(snap session.Snapshot) error {
	switch snap.State {
	case session.Authenticated:
		return nil
	case session.Unauthenticated:
		return regerrors.NewSessionExpiredError()
	default:
		return gatedError(snap)
	}
}

func gatedError(snap session.Snapshot) error {
	if snap.User == nil || snap.User.Institute == nil {
		return regerrors.NewGatedError("(none registered)", "MISSING")
	}
	inst := snap.User.Institute
	return regerrors.NewGatedError(inst.Name, string(inst.ApprovalStatus))
}

func runAuthCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{HardRedirect: func(string) {}})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	return check(a, cmd.OutOrStdout())
}

// check resolves the stored token and maps the resulting state to an error
// carrying the matching exit code.
func check(a *app, w io.Writer) error {
	stored, err := a.store.Get()
	if err != nil {
		return ux.FormatError(err, "")
	}

	snap := a.resolve()
	switch snap.State {
	case session.Authenticated:
		fmt.Fprintf(w, "✓ Access granted for %s\n", snap.User.Email)
		return nil
	case session.Gated:
		return gatedError(snap)
	case session.Resolving:
		return regerrors.NewTransportError(a.cfg.API.URL, fmt.Errorf("identity could not be resolved"))
	default:
		if stored != "" {
			return regerrors.NewSessionExpiredError()
		}
		return regerrors.NewNotLoggedInError()
	}
}

// requireAccess resolves the session and fails unless it grants access.
func requireAccess(a *app) (session.Snapshot, error) {
	snap := a.resolve()
	switch snap.State {
	case session.Authenticated:
		return snap, nil
	case session.Gated:
		return snap, gatedError(snap)
	case session.Resolving:
		return snap, regerrors.NewTransportError(a.cfg.API.URL, fmt.Errorf("identity could not be resolved"))
	default:
		return snap, regerrors.NewNotLoggedInError()
	}
}
