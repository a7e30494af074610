package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}

// User is an account. Role is fixed at registration.
type User struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller of a core operation. DriverID is set
// only for drivers.
type Identity struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	DriverID string `json:"driver_id,omitempty"`
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}
