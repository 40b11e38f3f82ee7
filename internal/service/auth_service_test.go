package service_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/platform/password"
	"github.com/diagnosis/tourbook/internal/service"
	"github.com/diagnosis/tourbook/pkg/auth"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/events"
)

type authFixture struct {
	svc    service.AuthService
	users  *fakeUsers
	mail   *fakeMailer
	bus    *recordingBus
	tokens *auth.Tokens
}

func newAuthFixture() *authFixture {
	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: "http://tours.test"},
		Auth:   config.AuthConfig{ResetTokenTTL: 10 * time.Minute},
	}
	f := &authFixture{
		users:  newFakeUsers(),
		mail:   &fakeMailer{},
		bus:    &recordingBus{},
		tokens: auth.NewTokens("test-secret", time.Hour),
	}
	f.svc = service.NewAuthService(f.users, fakeHasher{}, f.tokens, f.mail, f.bus, cfg)
	return f
}

func (f *authFixture) seed(email, plain string) *domain.User {
	return f.users.add(domain.User{Name: "Jonas Schmedtmann", Email: email, PasswordHash: "hashed:" + plain})
}

func message(t *testing.T, err error) string {
	t.Helper()
	rich, ok := apperr.From(err)
	require.True(t, ok, "expected a taxonomy error, got %v", err)
	return rich.Message
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	rich, ok := apperr.From(err)
	require.True(t, ok, "expected a taxonomy error, got %v", err)
	return rich.TextCode
}

func TestSignup_CreatesPlainUserAndAnnounces(t *testing.T) {
	f := newAuthFixture()

	user, token, err := f.svc.Signup(context.Background(), domain.SignupRequest{
		Name:            "  Laura   Wilson ",
		Email:           "Laura@Example.COM",
		Password:        "pass1234",
		PasswordConfirm: "pass1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "Laura Wilson", user.Name)
	assert.Equal(t, "laura@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, "hashed:pass1234", f.users.get(user.ID).PasswordHash)

	id, err := f.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.UserID)

	require.Equal(t, []string{events.UserSignedUp}, f.bus.subjects())
	ev := f.bus.events[0].data.(events.UserSignedUpEvent)
	assert.Equal(t, "laura@example.com", ev.Email)
}

func TestSignup_ListsEveryViolation(t *testing.T) {
	f := newAuthFixture()

	_, _, err := f.svc.Signup(context.Background(), domain.SignupRequest{
		Name:            "Al",
		Email:           "not-an-email",
		Password:        "short",
		PasswordConfirm: "different",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, goerrors.CategoryValidation))
	rich, _ := apperr.From(err)
	assert.Len(t, rich.ValidationErrors, 4)
	assert.Empty(t, f.bus.subjects())
}

func TestLogin(t *testing.T) {
	f := newAuthFixture()
	f.seed("jonas@example.com", "pass1234")
	ctx := context.Background()

	_, _, err := f.svc.Login(ctx, domain.LoginRequest{Email: "jonas@example.com"})
	assert.Equal(t, "Please provide email and password!", message(t, err))
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))

	_, _, err = f.svc.Login(ctx, domain.LoginRequest{Email: "jonas@example.com", Password: "wrong-pass"})
	assert.Equal(t, "Incorrect email or password", message(t, err))
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))

	_, _, err = f.svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "pass1234"})
	assert.Equal(t, "Incorrect email or password", message(t, err))

	user, token, err := f.svc.Login(ctx, domain.LoginRequest{Email: " JONAS@example.com", Password: "pass1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "jonas@example.com", user.Email)
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")
	ctx := context.Background()

	token, err := f.tokens.Issue(u.ID)
	require.NoError(t, err)
	got, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, "")
	assert.Equal(t, "You're not logged in! Please log in to get access", message(t, err))

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.Equal(t, "Invalid token, please log in again!", message(t, err))
	assert.Equal(t, apperr.CodeInvalidToken, textCode(t, err))

	expired, err := f.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).Issue(u.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, expired)
	assert.Equal(t, "Your session has expired! Please log in again", message(t, err))
	assert.Equal(t, apperr.CodeExpiredToken, textCode(t, err))
	assert.Equal(t, 401, apperr.Status(err))

	ghost, err := f.tokens.Issue(999)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, ghost)
	assert.Equal(t, "The user belonging to this token no longer exists", message(t, err))
}

func TestAuthenticate_RejectsTokenOlderThanPasswordChange(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")
	ctx := context.Background()

	old, err := f.tokens.WithClock(func() time.Time { return time.Now().Add(-30 * time.Minute) }).Issue(u.ID)
	require.NoError(t, err)

	_, fresh, err := f.svc.UpdatePassword(ctx, f.users.get(u.ID), domain.UpdatePasswordRequest{
		PasswordCurrent: "pass1234",
		Password:        "newpass123",
		PasswordConfirm: "newpass123",
	})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, old)
	assert.Equal(t, "User recently changed password! Please log in again!", message(t, err))

	_, err = f.svc.Authenticate(ctx, fresh)
	assert.NoError(t, err)
}

func TestUpdatePassword_WrongCurrent(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")

	_, _, err := f.svc.UpdatePassword(context.Background(), u, domain.UpdatePasswordRequest{
		PasswordCurrent: "nope",
		Password:        "newpass123",
		PasswordConfirm: "newpass123",
	})
	assert.Equal(t, "Your current password is wrong!", message(t, err))
	assert.Equal(t, "hashed:pass1234", f.users.get(u.ID).PasswordHash)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")
	ctx := context.Background()

	err := f.svc.ForgotPassword(ctx, "missing@example.com")
	assert.Equal(t, "There is no user with that email address", message(t, err))
	assert.Equal(t, http.StatusNotFound, apperr.Status(err))

	require.NoError(t, f.svc.ForgotPassword(ctx, "jonas@example.com"))
	assert.Equal(t, "jonas@example.com", f.mail.resetTo)
	require.True(t, strings.HasPrefix(f.mail.resetURL, "http://tours.test/api/v1/users/resetPassword/"))
	plain := strings.TrimPrefix(f.mail.resetURL, "http://tours.test/api/v1/users/resetPassword/")

	stored := f.users.get(u.ID)
	require.NotNil(t, stored.PasswordResetToken)
	assert.Equal(t, password.HashResetToken(plain), *stored.PasswordResetToken)
	assert.NotEqual(t, plain, *stored.PasswordResetToken)

	_, _, err = f.svc.ResetPassword(ctx, "wrong-token", domain.ResetPasswordRequest{Password: "newpass123", PasswordConfirm: "newpass123"})
	assert.Equal(t, "The token is invalid or it has expired!", message(t, err))

	user, token, err := f.svc.ResetPassword(ctx, plain, domain.ResetPasswordRequest{Password: "newpass123", PasswordConfirm: "newpass123"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, u.ID, user.ID)

	after := f.users.get(u.ID)
	assert.Equal(t, "hashed:newpass123", after.PasswordHash)
	assert.Nil(t, after.PasswordResetToken)
	assert.Nil(t, after.PasswordResetExpires)
	require.NotNil(t, after.PasswordChangedAt)

	// the token is single use
	_, _, err = f.svc.ResetPassword(ctx, plain, domain.ResetPasswordRequest{Password: "again1234", PasswordConfirm: "again1234"})
	assert.True(t, apperr.Is(err, goerrors.CategoryNotFound))
}

func TestForgotPassword_MailFailureClearsToken(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")
	f.mail.err = errors.New("smtp down")

	err := f.svc.ForgotPassword(context.Background(), "jonas@example.com")
	assert.Equal(t, "There was an error sending the email, try again later!", message(t, err))
	assert.Equal(t, http.StatusInternalServerError, apperr.Status(err))
	assert.True(t, apperr.IsOperational(err))

	stored := f.users.get(u.ID)
	assert.Nil(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
}

func TestUpdateMe(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")
	ctx := context.Background()

	pw := "sneaky123"
	_, err := f.svc.UpdateMe(ctx, u, domain.UpdateMeRequest{Password: &pw})
	assert.Equal(t, "This route is not for password updates. Please use /updateMyPassword", message(t, err))

	bad := "x"
	_, err = f.svc.UpdateMe(ctx, u, domain.UpdateMeRequest{Name: &bad})
	assert.True(t, apperr.Is(err, goerrors.CategoryValidation))

	name, email := "Jonas S", "NEW@example.com"
	updated, err := f.svc.UpdateMe(ctx, u, domain.UpdateMeRequest{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Jonas S", updated.Name)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, domain.RoleUser, updated.Role)
}

func TestDeleteMe_Deactivates(t *testing.T) {
	f := newAuthFixture()
	u := f.seed("jonas@example.com", "pass1234")

	require.NoError(t, f.svc.DeleteMe(context.Background(), u.ID))
	assert.False(t, f.users.get(u.ID).Active)

	_, _, err := f.svc.Login(context.Background(), domain.LoginRequest{Email: "jonas@example.com", Password: "pass1234"})
	assert.Equal(t, "Incorrect email or password", message(t, err))
}
