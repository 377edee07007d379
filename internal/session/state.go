package session

import "github.com/felixgeelhaar/ckdreg/internal/registry"

// State is the session lifecycle state.
type State int

const (
	// Unauthenticated means no token is present.
	Unauthenticated State = iota
	// Resolving means a token is present but no user has been resolved.
	Resolving
	// Authenticated means the token resolved to a user with full access.
	Authenticated
	// Gated means the user is an institute admin awaiting approval.
	Gated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Gated:
		return "gated"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State         State
	User          *registry.User
	Authenticated bool
	Approved      bool
	Gated         bool
	// Loading is true while the first identity fetch for the current token
	// is in flight.
	Loading bool
}

// Equal reports whether two snapshots describe the same session. Users are
// compared by value.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.State != o.State || s.Authenticated != o.Authenticated ||
		s.Approved != o.Approved || s.Gated != o.Gated || s.Loading != o.Loading {
		return false
	}
	if s.User == nil || o.User == nil {
		return s.User == o.User
	}
	return usersEqual(s.User, o.User)
}

func usersEqual(a, b *registry.User) bool {
	if a.ID != b.ID || a.Email != b.Email || a.Name != b.Name || a.Role != b.Role {
		return false
	}
	if a.Institute == nil || b.Institute == nil {
		return a.Institute == b.Institute
	}
	ai, bi := a.Institute, b.Institute
	if ai.ID != bi.ID || ai.Name != bi.Name || ai.ApprovalStatus != bi.ApprovalStatus ||
		ai.RejectionReason != bi.RejectionReason {
		return false
	}
	if ai.ApprovedAt == nil || bi.ApprovedAt == nil {
		return ai.ApprovedAt == bi.ApprovedAt
	}
	return ai.ApprovedAt.Equal(*bi.ApprovedAt)
}

func snapshotOf(token string, user *registry.User, pending int) Snapshot {
	switch {
	case token == "":
		return Snapshot{State: Unauthenticated}
	case user == nil:
		return Snapshot{State: Resolving, Loading: pending > 0}
	case user.Gated():
		return Snapshot{State: Gated, User: user, Authenticated: true, Gated: true}
	default:
		return Snapshot{State: Authenticated, User: user, Authenticated: true, Approved: true}
	}
}
