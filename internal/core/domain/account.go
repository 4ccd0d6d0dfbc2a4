package domain

import "time"

// Seeded role names. The roles table is populated once at bootstrap and is
// read-only afterwards.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// Seeded role ids, matching the bootstrap migration.
const (
	RoleIDAdmin int64 = 1
	RoleIDUser  int64 = 2
)

// MaxUsernameLength bounds the username column.
const MaxUsernameLength = 64

// Account is a registered login identity.
type Account struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	// CredentialDigest is never rendered to callers.
	CredentialDigest string `json:"-"`
}

// Role is one of the seeded authorization roles.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AccountRole links an account to a role it holds.
type AccountRole struct {
	ID        int64 `json:"id"`
	AccountID int64 `json:"account_id"`
	RoleID    int64 `json:"role_id"`
}

// Profile holds the personal details owned by exactly one account.
type Profile struct {
	ID         int64  `json:"id"`
	AccountID  int64  `json:"account_id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name"`
	Age        int    `json:"age"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Province   string `json:"province,omitempty"`
}

// Identity is the caller as asserted by a verified session token.
type Identity struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`

	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// HasRole reports whether the identity carries the named role claim.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
