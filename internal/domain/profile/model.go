package profile

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrInvalid  = errors.New("invalid profile")
)

// Profile is the application-side record of an identity-provider user.
// ID equals the auth user id.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	IsDoctor  bool      `json:"is_doctor"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is what other users see: full name, falling back to email.
func (p *Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

// UpdateRequest carries the editable fields; nil fields are left unchanged.
type UpdateRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	UserName *string `json:"user_name" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Avatar   *string `json:"avatar" validate:"omitempty,url"`
}

type EnsureRequest struct {
	FullName string `json:"full_name" validate:"max=200"`
}
