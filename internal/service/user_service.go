package service

import (
	"context"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/query"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
)

// NewUserEntity describes accounts to the admin CRUD endpoints. Deactivated
// accounts are invisible, and the users table store never reads the
// password hash.
func NewUserEntity() crud.Entity[domain.User] {
	return crud.Entity[domain.User]{
		Name:     "user",
		Schema:   postgres.UserSchema,
		Validate: func(u *domain.User) error { return domain.Validate(u) },
		Prepare: func(_ context.Context, u, prev *domain.User) error {
			if prev != nil {
				u.ID = prev.ID
				u.Active = prev.Active
				u.CreatedAt = prev.CreatedAt
			}
			u.Normalize()
			return nil
		},
		Scope: query.Filter{query.Equals("active", true)},
	}
}
