package domain

import "time"

// Role grants access levels and determines approval eligibility.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleUser     Role = "USER"
	RoleCustomer Role = "CUSTOMER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleCustomer:
		return true
	}
	return false
}

// User represents an authenticated identity in the platform.
// Password is kept in plaintext; the store is a demo.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanApprove reports whether the user may act as a purchase approver.
func (u *User) CanApprove() bool {
	return u != nil && u.Active && (u.Role == RoleAdmin || u.Role == RoleUser)
}

// Ref returns the lightweight reference embedded in events and purchases.
func (u *User) Ref() UserRef {
	if u == nil {
		return UserRef{}
	}
	return UserRef{ID: u.ID, Name: u.Name}
}

// UserRef identifies a user without carrying credentials.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether the reference points at no user.
func (r UserRef) IsZero() bool {
	return r.ID == 0 && r.Name == ""
}
