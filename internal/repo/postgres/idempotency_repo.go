package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/tourbook/pkg/middleware"
)

// IdempotencyRepo stores replayable responses keyed by a hashed
// Idempotency-Key header.
type IdempotencyRepo interface {
	middleware.IdempotencyStore
	CleanupExpired(ctx context.Context) (int64, error)
}

type IdempotencyRepoImpl struct {
	db DB
}

func NewIdempotencyRepo(db DB) *IdempotencyRepoImpl {
	return &IdempotencyRepoImpl{db: db}
}

// Get returns nil when the key is unknown or expired.
func (r *IdempotencyRepoImpl) Get(ctx context.Context, keyHash string) (*middleware.CachedResponse, error) {
	const q = `SELECT status_code, response FROM idempotency_keys WHERE key_hash=$1 AND expires_at > now()`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out middleware.CachedResponse
	err := r.db.QueryRow(ctx, q, keyHash).Scan(&out.Status, &out.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Set keeps the first response stored for a key.
func (r *IdempotencyRepoImpl) Set(ctx context.Context, keyHash string, resp middleware.CachedResponse, ttl time.Duration) error {
	const q = `
INSERT INTO idempotency_keys (key_hash, status_code, response, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key_hash) DO NOTHING`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, q, keyHash, resp.Status, resp.Body, time.Now().Add(ttl))
	return err
}

func (r *IdempotencyRepoImpl) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ IdempotencyRepo = (*IdempotencyRepoImpl)(nil)
