package domain

import (
	"time"

	"github.com/diagnosis/tourbook/internal/utils"
)

const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

const DefaultPhoto = "default.jpg"

// User is an account. The password hash and reset fields never leave the
// server.
type User struct {
	ID                   int64      `json:"id" db:"id"`
	Name                 string     `json:"name" db:"name" validate:"required,min=3,max=30"`
	Email                string     `json:"email" db:"email" validate:"required,email"`
	Photo                string     `json:"photo" db:"photo"`
	Role                 string     `json:"role" db:"role" validate:"required,oneof=user guide lead-guide admin"`
	PasswordHash         string     `json:"-" db:"password_hash"`
	PasswordChangedAt    *time.Time `json:"-" db:"password_changed_at"`
	PasswordResetToken   *string    `json:"-" db:"password_reset_token"`
	PasswordResetExpires *time.Time `json:"-" db:"password_reset_expires"`
	Active               bool       `json:"-" db:"active"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
}

func (u *User) Normalize() {
	u.Name = utils.NormalizeString(u.Name)
	u.Email = utils.NormalizeEmail(u.Email)
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
}

func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// UserSummary is the populated view of a user inside another record.
type UserSummary struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email,omitempty" db:"email"`
	Photo string `json:"photo" db:"photo"`
	Role  string `json:"role,omitempty" db:"role"`
}

type SignupRequest struct {
	Name            string `json:"name" validate:"required,min=3,max=30"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (r *SignupRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.Email = utils.NormalizeEmail(r.Email)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// UpdateMeRequest carries the only fields a user may change on their own
// profile. Password fields are decoded so the handler can refuse them.
type UpdateMeRequest struct {
	Name            *string `json:"name,omitempty"`
	Email           *string `json:"email,omitempty"`
	Password        *string `json:"password,omitempty"`
	PasswordConfirm *string `json:"passwordConfirm,omitempty"`
}

func (r *UpdateMeRequest) TouchesPassword() bool {
	return r.Password != nil || r.PasswordConfirm != nil
}
