package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/tourbook/internal/domain"
)

// UsersRepo holds the credential-aware queries. Generic CRUD goes through
// the users Table, which never selects the password hash.
type UsersRepo interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindActiveByID(ctx context.Context, id int64) (*domain.User, error)
	FindByResetToken(ctx context.Context, hashed string, now time.Time) (*domain.User, error)
	SetResetToken(ctx context.Context, id int64, hashed *string, expires *time.Time) error
	SetPassword(ctx context.Context, id int64, hash string, changedAt time.Time) error
	UpdateProfile(ctx context.Context, id int64, name, email string) (*domain.User, error)
	Deactivate(ctx context.Context, id int64) error
	Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type UsersRepoImpl struct{ db DB }

func NewUsersRepo(db DB) *UsersRepoImpl { return &UsersRepoImpl{db: db} }

const userCols = `id, name, email, photo, role, password_hash, password_changed_at,
password_reset_token, password_reset_expires, active, created_at`

func (r *UsersRepoImpl) one(ctx context.Context, q string, args ...any) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[domain.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *UsersRepoImpl) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `
INSERT INTO users (name, email, photo, role, password_hash)
VALUES ($1,$2,$3,$4,$5)
RETURNING ` + userCols
	out, err := r.one(ctx, q, u.Name, u.Email, u.Photo, u.Role, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("insert user returned no row")
	}
	return out, nil
}

// FindByEmail only sees active accounts.
func (r *UsersRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email=$1 AND active`
	return r.one(ctx, q, email)
}

func (r *UsersRepoImpl) FindActiveByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1 AND active`
	return r.one(ctx, q, id)
}

func (r *UsersRepoImpl) FindByResetToken(ctx context.Context, hashed string, now time.Time) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users
WHERE password_reset_token=$1 AND password_reset_expires > $2 AND active`
	return r.one(ctx, q, hashed, now)
}

// SetResetToken stores or (with nils) clears the reset token.
func (r *UsersRepoImpl) SetResetToken(ctx context.Context, id int64, hashed *string, expires *time.Time) error {
	const q = `UPDATE users SET password_reset_token=$2, password_reset_expires=$3 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.Exec(ctx, q, id, hashed, expires)
	return mapError(err)
}

// SetPassword also burns any outstanding reset token.
func (r *UsersRepoImpl) SetPassword(ctx context.Context, id int64, hash string, changedAt time.Time) error {
	const q = `
UPDATE users
SET password_hash=$2, password_changed_at=$3, password_reset_token=NULL, password_reset_expires=NULL
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.Exec(ctx, q, id, hash, changedAt)
	return mapError(err)
}

func (r *UsersRepoImpl) UpdateProfile(ctx context.Context, id int64, name, email string) (*domain.User, error) {
	const q = `UPDATE users SET name=$2, email=$3 WHERE id=$1 AND active RETURNING ` + userCols
	return r.one(ctx, q, id, name, email)
}

func (r *UsersRepoImpl) Deactivate(ctx context.Context, id int64) error {
	const q = `UPDATE users SET active=false WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.Exec(ctx, q, id)
	return mapError(err)
}

// Summaries loads the public face of the given users, inactive ones
// included so old reviews keep their author.
func (r *UsersRepoImpl) Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error) {
	out := make(map[int64]domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT id, name, email, photo, role FROM users WHERE id = ANY($1)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.UserSummary])
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}

func (r *UsersRepoImpl) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE users SET password_reset_token=NULL, password_reset_expires=NULL
WHERE password_reset_token IS NOT NULL AND password_reset_expires <= $1`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tag, err := r.db.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ UsersRepo = (*UsersRepoImpl)(nil)
