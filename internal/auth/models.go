package auth

import (
	"fmt"
	"strings"
	"time"

	"clinicaudit/pkg/platform/sentinel"
)

// Roles understood by the HTTP layer.
const (
	RoleClinician = "clinician"
	RoleAuditor   = "auditor"
	RoleAdmin     = "admin"
)

// User is a clinic staff account. PasswordHash is a bcrypt hash.
type User struct {
	ID           string `json:"id" validate:"required"`
	Username     string `json:"username" validate:"required"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=clinician auditor admin"`
	Disabled     bool   `json:"disabled,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
}

// Validate normalizes the username and rejects empty credentials.
func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || r.Password == "" {
		return fmt.Errorf("%w: username and password are required", sentinel.ErrBadRequest)
	}
	return nil
}
