// Package password hashes and verifies credentials with argon2id and mints
// password-reset tokens.
package password

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	"github.com/alexedwards/argon2id"
	"golang.org/x/sync/semaphore"
)

type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// Hasher bounds concurrent hashing to GOMAXPROCS so a login burst queues
// instead of starving every request goroutine of CPU.
type Hasher struct {
	params *argon2id.Params
	sem    *semaphore.Weighted
}

func NewHasher(p Params) *Hasher {
	params := *argon2id.DefaultParams
	if p.Memory > 0 {
		params.Memory = p.Memory
	}
	if p.Iterations > 0 {
		params.Iterations = p.Iterations
	}
	if p.Parallelism > 0 {
		params.Parallelism = p.Parallelism
	}
	return &Hasher{
		params: &params,
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hash, err := argon2id.CreateHash(plain, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether plain matches digest. A malformed digest is an
// error, a mismatch is not.
func (h *Hasher) Verify(ctx context.Context, plain, digest string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	ok, err := argon2id.ComparePasswordAndHash(plain, digest)
	if err != nil {
		return false, fmt.Errorf("compare password: %w", err)
	}
	return ok, nil
}

// ResetToken is a password-reset secret. Only Hashed is stored; Plain goes
// out by email.
type ResetToken struct {
	Plain     string
	Hashed    string
	ExpiresAt time.Time
}

func NewResetToken(ttl time.Duration) (ResetToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ResetToken{}, fmt.Errorf("generate reset token: %w", err)
	}
	plain := hex.EncodeToString(buf)
	return ResetToken{
		Plain:     plain,
		Hashed:    HashResetToken(plain),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
