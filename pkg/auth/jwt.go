package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// Identity is what a verified token tells us about its bearer.
type Identity struct {
	UserID   int64
	IssuedAt time.Time
}

// Tokens issues and verifies HS256 identity tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock swaps the time source; tests use it to mint tokens in the past.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	cp := *t
	cp.now = now
	return &cp
}

func (t *Tokens) TTL() time.Duration { return t.ttl }

func (t *Tokens) Issue(userID int64) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Verify(tokenString string) (*Identity, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || claims.UserID == 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, IssuedAt: claims.IssuedAt.Time}, nil
}

// WasPasswordChangedAfter reports whether a password change happened at or
// after the token was issued. Timestamps compare at second resolution, the
// resolution of the iat claim, and equal seconds count as changed.
func WasPasswordChangedAfter(changedAt *time.Time, issuedAt time.Time) bool {
	if changedAt == nil || changedAt.IsZero() {
		return false
	}
	return issuedAt.Unix() <= changedAt.Unix()
}

// PasswordChangedStamp is the value to persist as password_changed_at when a
// password changes at now. It is backdated one second so a token issued right
// after the save still postdates it.
func PasswordChangedStamp(now time.Time) time.Time {
	return now.Add(-time.Second)
}
