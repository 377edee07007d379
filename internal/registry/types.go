package registry

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnumError reports a server value outside a known enum.
type EnumError struct {
	Enum  string
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("Enum %q cannot represent value: %q", e.Enum, e.Value)
}

// decodeEnum unmarshals a JSON string and checks it against valid. JSON
// null decodes to "".
func decodeEnum(data []byte, enum string, valid map[string]bool) (string, error) {
	if string(data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", &EnumError{Enum: enum, Value: string(data)}
	}
	if !valid[s] {
		return "", &EnumError{Enum: enum, Value: s}
	}
	return s, nil
}

// Role is a user's registry role.
type Role string

const (
	RoleSuperAdmin     Role = "SUPER_ADMIN"
	RoleInstituteAdmin Role = "INSTITUTE_ADMIN"
	RoleInstituteUser  Role = "INSTITUTE_USER"
)

var validRoles = map[string]bool{
	string(RoleSuperAdmin):     true,
	string(RoleInstituteAdmin): true,
	string(RoleInstituteUser):  true,
}

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, error) {
	if !validRoles[s] {
		return "", &EnumError{Enum: "Role", Value: s}
	}
	return Role(s), nil
}

func (r *Role) UnmarshalJSON(data []byte) error {
	s, err := decodeEnum(data, "Role", validRoles)
	if err != nil {
		return err
	}
	*r = Role(s)
	return nil
}

// ApprovalStatus is an institute's review state.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING_APPROVAL"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalSuspended ApprovalStatus = "SUSPENDED"
)

var validApprovalStatuses = map[string]bool{
	string(ApprovalPending):   true,
	string(ApprovalApproved):  true,
	string(ApprovalRejected):  true,
	string(ApprovalSuspended): true,
}

func (a *ApprovalStatus) UnmarshalJSON(data []byte) error {
	s, err := decodeEnum(data, "ApprovalStatus", validApprovalStatuses)
	if err != nil {
		return err
	}
	*a = ApprovalStatus(s)
	return nil
}

// PatientStatus is a patient's enrolment state.
type PatientStatus string

const (
	PatientActive      PatientStatus = "ACTIVE"
	PatientTransferred PatientStatus = "TRANSFERRED"
	PatientExited      PatientStatus = "EXITED"
	PatientDeceased    PatientStatus = "DECEASED"
)

var validPatientStatuses = map[string]bool{
	string(PatientActive):      true,
	string(PatientTransferred): true,
	string(PatientExited):      true,
	string(PatientDeceased):    true,
}

// ParsePatientStatus returns the PatientStatus named by s.
func ParsePatientStatus(s string) (PatientStatus, error) {
	if !validPatientStatuses[s] {
		return "", &EnumError{Enum: "PatientStatus", Value: s}
	}
	return PatientStatus(s), nil
}

func (p *PatientStatus) UnmarshalJSON(data []byte) error {
	s, err := decodeEnum(data, "PatientStatus", validPatientStatuses)
	if err != nil {
		return err
	}
	*p = PatientStatus(s)
	return nil
}

// Institute is the organisation a user belongs to.
type Institute struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	ApprovalStatus  ApprovalStatus `json:"approvalStatus" yaml:"approvalStatus"`
	ApprovedAt      *time.Time     `json:"approvedAt,omitempty" yaml:"approvedAt,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty" yaml:"rejectionReason,omitempty"`
}

// User is the identity returned by the me query.
type User struct {
	ID        string     `json:"id" yaml:"id"`
	Email     string     `json:"email" yaml:"email"`
	Name      string     `json:"name" yaml:"name"`
	Role      Role       `json:"role" yaml:"role"`
	Institute *Institute `json:"institute,omitempty" yaml:"institute,omitempty"`
}

// Gated reports whether the user is an institute admin whose institute is
// not approved. An institute admin without an institute is gated.
func (u *User) Gated() bool {
	if u == nil || u.Role != RoleInstituteAdmin {
		return false
	}
	return u.Institute == nil || u.Institute.ApprovalStatus != ApprovalApproved
}

// AuthPayload is returned by login and registration mutations.
type AuthPayload struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// RegisterUserInput is the account step of the registration wizard.
type RegisterUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// RegisterInstituteInput is the institute step of the registration wizard.
type RegisterInstituteInput struct {
	Name         string `json:"name"`
	City         string `json:"city"`
	Country      string `json:"country"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone,omitempty"`
}

// Patient is a row of the dashboard patient list.
type Patient struct {
	ID             string        `json:"id" yaml:"id"`
	RegistryNumber string        `json:"registryNumber" yaml:"registryNumber"`
	Name           string        `json:"name" yaml:"name"`
	DateOfBirth    string        `json:"dateOfBirth" yaml:"dateOfBirth"`
	Sex            string        `json:"sex" yaml:"sex"`
	CKDStage       int           `json:"ckdStage" yaml:"ckdStage"`
	Status         PatientStatus `json:"status" yaml:"status"`
	EnrolledAt     time.Time     `json:"enrolledAt" yaml:"enrolledAt"`
}

// PatientFilter narrows the patient list.
type PatientFilter struct {
	Search string
	Status PatientStatus
	Limit  int
	Offset int
}

// PatientPage is one page of patients.
type PatientPage struct {
	Items []Patient `json:"items" yaml:"items"`
	Total int       `json:"total" yaml:"total"`
}
