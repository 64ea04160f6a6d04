package models

import "strings"

// Role decides what an authenticated account may do. Viewers read state,
// stats and the event log; operators may also feed frames, reset the session
// and drive the simulator.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
)

// ParseRole is case-insensitive; unknown names are rejected.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleViewer, RoleOperator:
		return r, true
	}
	return "", false
}

func (r Role) CanOperate() bool { return r == RoleOperator }

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// Identity is what a verified access token says about its bearer.
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}
