package models

import (
	"slices"
	"time"
)

// DefaultRole is assigned to users registered without any role
const DefaultRole = "USER"

// authorityPrefix is prepended to role names when they are exposed as authorities
const authorityPrefix = "ROLE_"

// Authenticatable is the capability set the authentication layer relies on
type Authenticatable interface {
	IsAuthenticatable() bool
	RoleNames() []string
	SubjectID() string
}

// User represents a principal that can log in and receive tokens
type User struct {
	ID                    int64     `json:"id" db:"id"`
	Username              string    `json:"username" db:"username"`
	PasswordHash          string    `json:"-" db:"password_hash"` // Never serialized
	Email                 string    `json:"email" db:"email"`
	Roles                 []string  `json:"roles" db:"-"`
	Enabled               bool      `json:"enabled" db:"enabled"`
	AccountNonExpired     bool      `json:"account_non_expired" db:"account_non_expired"`
	AccountNonLocked      bool      `json:"account_non_locked" db:"account_non_locked"`
	CredentialsNonExpired bool      `json:"credentials_non_expired" db:"credentials_non_expired"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the view of a user that is safe to return to clients
type PublicUser struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// NewUser creates a new User with every account gate open.
// The roles slice is copied and repeated roles are dropped, keeping the
// first occurrence.
func NewUser(username, email string, roles []string) *User {
	return &User{
		Username:              username,
		Email:                 email,
		Roles:                 uniqueRoles(roles),
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		CreatedAt:             time.Now().UTC(),
	}
}

func uniqueRoles(roles []string) []string {
	if roles == nil {
		return nil
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}

// IsAuthenticatable reports whether all four account gates are open
func (u *User) IsAuthenticatable() bool {
	return u.Enabled && u.AccountNonExpired && u.AccountNonLocked && u.CredentialsNonExpired
}

// SubjectID returns the identifier carried as the token subject
func (u *User) SubjectID() string {
	return u.Username
}

// RoleNames returns a copy of the user's roles
func (u *User) RoleNames() []string {
	return slices.Clone(u.Roles)
}

// Authorities returns the roles in their prefixed authority form (e.g. ROLE_ADMIN)
func (u *User) Authorities() []string {
	authorities := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		authorities = append(authorities, authorityPrefix+role)
	}
	return authorities
}

// HasRole returns true if the user holds the given role
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// EnsureDefaultRole assigns DefaultRole when no role is set
func (u *User) EnsureDefaultRole() {
	if len(u.Roles) == 0 {
		u.Roles = []string{DefaultRole}
	}
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Roles = slices.Clone(u.Roles)
	return &clone
}

// Public returns the client-facing view of the user
func (u *User) Public() PublicUser {
	roles := u.RoleNames()
	if roles == nil {
		roles = []string{}
	}
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    roles,
	}
}
