package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

// View implements tea.Model.
func (c *Console) View() string {
	var b strings.Builder

	b.WriteString(c.styles.Title.Render("CKD Registry"))
	b.WriteString("\n")
	if u := c.snap.User; u != nil {
		b.WriteString(c.styles.Subtitle.Render(fmt.Sprintf("%s <%s> · %s", u.Name, u.Email, u.Role)))
		b.WriteString("\n")
	}

	switch c.route {
	case RouteLogin:
		b.WriteString(c.formView(c.loginForm))
	case RouteRegister:
		b.WriteString(c.formView(c.signupForm))
	case RouteDashboard:
		b.WriteString(c.dashboardView())
	case RoutePending:
		b.WriteString(c.pendingView())
	default:
		b.WriteString(c.spinner.View() + " Connecting to the registry...")
	}

	if c.snap.State == session.Resolving {
		b.WriteString("\n")
		b.WriteString(c.spinner.View() + c.styles.Muted.Render(" Resolving identity..."))
	}

	for _, t := range c.toasts {
		b.WriteString("\n")
		b.WriteString(c.styles.Toast.Render(
			c.styles.Warning.Render(t.notification.Title) + "\n" + t.notification.Description,
		))
	}

	b.WriteString("\n")
	b.WriteString(c.helpView())
	return b.String()
}

func (c *Console) formView(form *huh.Form) string {
	var b strings.Builder
	if c.submitting {
		b.WriteString(c.spinner.View() + " Submitting...")
	} else if form != nil {
		b.WriteString(form.View())
	}
	if c.formErr != "" {
		b.WriteString("\n")
		b.WriteString(c.styles.Error.Render("✗ " + firstLine(c.formErr)))
	}
	return b.String()
}

func (c *Console) dashboardView() string {
	var b strings.Builder

	if u := c.snap.User; u != nil && u.Institute != nil {
		b.WriteString(c.styles.Border.Render(fmt.Sprintf("%s\n%s",
			c.styles.Status.Render(u.Institute.Name),
			approvalStyle(c.styles, string(u.Institute.ApprovalStatus)).Render(string(u.Institute.ApprovalStatus)),
		)))
		b.WriteString("\n")
	}

	switch {
	case c.loadingPatients && c.page == nil:
		b.WriteString(c.spinner.View() + " Loading patients...")
	case c.patientsErr != "":
		b.WriteString(c.styles.Error.Render("✗ Could not load patients: " + firstLine(c.patientsErr)))
	case c.page != nil && len(c.page.Items) == 0:
		b.WriteString(c.styles.Muted.Render("No patients enrolled yet."))
	default:
		b.WriteString(c.patients.View())
		if c.page != nil {
			b.WriteString("\n")
			b.WriteString(c.styles.Muted.Render(fmt.Sprintf("%d of %d patients", len(c.page.Items), c.page.Total)))
		}
	}
	return b.String()
}

func (c *Console) pendingView() string {
	var lines []string
	lines = append(lines, c.styles.Warning.Render("Institute awaiting approval"))

	u := c.snap.User
	if u == nil || u.Institute == nil {
		lines = append(lines, "Your account has no registered institute yet.")
	} else {
		inst := u.Institute
		lines = append(lines, fmt.Sprintf("Institute: %s", inst.Name))
		lines = append(lines, "Status:    "+approvalStyle(c.styles, string(inst.ApprovalStatus)).Render(string(inst.ApprovalStatus)))
		if inst.ApprovalStatus == registry.ApprovalRejected && inst.RejectionReason != "" {
			lines = append(lines, fmt.Sprintf("Reason:    %s", inst.RejectionReason))
		}
	}
	lines = append(lines, "")
	if c.checking {
		lines = append(lines, c.spinner.View()+" Checking approval status...")
	} else {
		lines = append(lines, c.styles.Muted.Render("Access is granted once a registry administrator approves the institute."))
	}

	return c.styles.Border.Render(strings.Join(lines, "\n"))
}

func (c *Console) helpView() string {
	bindings := c.keys.forRoute(c.route)
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, c.styles.Key.Render(h.Key)+" "+c.styles.KeyDesc.Render(h.Desc))
	}
	return c.styles.Help.Render(strings.Join(parts, "  "))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

