package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserDecode(t *testing.T) {
	data := `{"id":"u-1","email":"admin@renal.org","name":"Ada","role":"INSTITUTE_ADMIN",
		"institute":{"id":"i-1","name":"Renal Unit","approvalStatus":"APPROVED","approvedAt":"2024-03-01T10:00:00Z"}}`

	var u User
	require.NoError(t, json.Unmarshal([]byte(data), &u))
	assert.Equal(t, RoleInstituteAdmin, u.Role)
	require.NotNil(t, u.Institute)
	assert.Equal(t, ApprovalApproved, u.Institute.ApprovalStatus)
	require.NotNil(t, u.Institute.ApprovedAt)
	assert.Equal(t, 2024, u.Institute.ApprovedAt.Year())
}

func TestEnumDecode_Unknown(t *testing.T) {
	tests := []struct {
		name string
		data string
		out  any
		enum string
	}{
		{"role", `{"role":"JANITOR"}`, &struct{ Role Role }{}, "Role"},
		{"approval", `{"s":"ON_HOLD"}`, &struct {
			S ApprovalStatus `json:"s"`
		}{}, "ApprovalStatus"},
		{"patient", `{"s":"ARCHIVED"}`, &struct {
			S PatientStatus `json:"s"`
		}{}, "PatientStatus"},
		{"non-string", `{"role":7}`, &struct{ Role Role }{}, "Role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := json.Unmarshal([]byte(tt.data), tt.out)
			require.Error(t, err)

			var enumErr *EnumError
			require.True(t, errors.As(err, &enumErr))
			assert.Equal(t, tt.enum, enumErr.Enum)
			assert.Contains(t, err.Error(), "cannot represent value")
		})
	}
}

func TestEnumDecode_Null(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u-1","role":null}`), &u))
	assert.Equal(t, Role(""), u.Role)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("SUPER_ADMIN")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)

	_, err = ParseRole("super_admin")
	assert.Error(t, err)
}

func TestParsePatientStatus(t *testing.T) {
	s, err := ParsePatientStatus("ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, PatientActive, s)

	_, err = ParsePatientStatus("GONE")
	assert.Error(t, err)
}

func TestUserGated(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil user", nil, false},
		{"super admin", &User{Role: RoleSuperAdmin}, false},
		{"institute user pending", &User{Role: RoleInstituteUser, Institute: &Institute{ApprovalStatus: ApprovalPending}}, false},
		{"admin pending", &User{Role: RoleInstituteAdmin, Institute: &Institute{ApprovalStatus: ApprovalPending}}, true},
		{"admin rejected", &User{Role: RoleInstituteAdmin, Institute: &Institute{ApprovalStatus: ApprovalRejected}}, true},
		{"admin suspended", &User{Role: RoleInstituteAdmin, Institute: &Institute{ApprovalStatus: ApprovalSuspended}}, true},
		{"admin approved", &User{Role: RoleInstituteAdmin, Institute: &Institute{ApprovalStatus: ApprovalApproved}}, false},
		{"admin without institute", &User{Role: RoleInstituteAdmin}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Gated())
		})
	}
}
