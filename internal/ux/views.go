package ux

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/felixgeelhaar/ckdreg/internal/registry"
	"github.com/felixgeelhaar/ckdreg/internal/security"
	"github.com/felixgeelhaar/ckdreg/internal/session"
)

// PatientList renders a page of patients as a table in text mode and as the
// raw page in JSON and YAML.
type PatientList struct {
	Page *registry.PatientPage
}

// PatientColumns are the column headers of the patient table.
var PatientColumns = []string{"Registry #", "Name", "DOB", "Sex", "CKD stage", "Status", "Enrolled"}

// PatientRow returns the table cells for p.
func PatientRow(p registry.Patient) []string {
	enrolled := ""
	if !p.EnrolledAt.IsZero() {
		enrolled = p.EnrolledAt.Format("2006-01-02")
	}
	stage := ""
	if p.CKDStage > 0 {
		stage = strconv.Itoa(p.CKDStage)
	}
	return []string{p.RegistryNumber, p.Name, p.DateOfBirth, p.Sex, stage, string(p.Status), enrolled}
}

func (l PatientList) String() string {
	if l.Page == nil || len(l.Page.Items) == 0 {
		return "No patients found."
	}

	rows := make([][]string, 0, len(l.Page.Items))
	for _, p := range l.Page.Items {
		rows = append(rows, PatientRow(p))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(PatientColumns...).
		Rows(rows...)

	return fmt.Sprintf("%s\n%d of %d patients", t.String(), len(l.Page.Items), l.Page.Total)
}

func (l PatientList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.page())
}

func (l PatientList) MarshalYAML() (interface{}, error) {
	return l.page(), nil
}

func (l PatientList) page() *registry.PatientPage {
	if l.Page == nil {
		return &registry.PatientPage{Items: []registry.Patient{}}
	}
	return l.Page
}

// StatusView describes the session for 'auth status'.
type StatusView struct {
	Endpoint      string              `json:"endpoint" yaml:"endpoint"`
	State         string              `json:"state" yaml:"state"`
	Authenticated bool                `json:"authenticated" yaml:"authenticated"`
	Approved      bool                `json:"approved" yaml:"approved"`
	Gated         bool                `json:"gated" yaml:"gated"`
	User          *registry.User      `json:"user,omitempty" yaml:"user,omitempty"`
	Token         *security.TokenInfo `json:"token,omitempty" yaml:"token,omitempty"`

	now time.Time
}

// NewStatusView builds a StatusView from a session snapshot. token may be
// nil when the stored token is not a JWT.
func NewStatusView(endpoint string, snap session.Snapshot, token *security.TokenInfo) StatusView {
	return StatusView{
		Endpoint:      endpoint,
		State:         snap.State.String(),
		Authenticated: snap.Authenticated,
		Approved:      snap.Approved,
		Gated:         snap.Gated,
		User:          snap.User,
		Token:         token,
		now:           time.Now(),
	}
}

func (v StatusView) String() string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-11s %s\n", label+":", value)
	}

	line("Endpoint", v.Endpoint)
	line("Status", v.State)

	if u := v.User; u != nil {
		line("User", fmt.Sprintf("%s <%s> (%s)", u.Name, u.Email, u.Role))
		if inst := u.Institute; inst != nil {
			line("Institute", fmt.Sprintf("%s (%s)", inst.Name, inst.ApprovalStatus))
			if inst.ApprovedAt != nil {
				line("Approved", inst.ApprovedAt.Format(time.RFC3339))
			}
			if inst.RejectionReason != "" {
				line("Reason", inst.RejectionReason)
			}
		}
	}

	if v.Gated {
		line("Access", "pending institute approval")
	}

	if t := v.Token; t != nil && !t.ExpiresAt.IsZero() {
		expiry := t.ExpiresAt.Format(time.RFC3339)
		if t.Expired(v.now) {
			expiry += " (expired)"
		}
		line("Expires", expiry)
	}

	return strings.TrimRight(b.String(), "\n")
}
