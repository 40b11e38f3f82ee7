package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/platform/mailer"
	"github.com/diagnosis/tourbook/internal/platform/password"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
	"github.com/diagnosis/tourbook/internal/utils"
	"github.com/diagnosis/tourbook/pkg/auth"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
)

const (
	msgNotLoggedIn      = "You're not logged in! Please log in to get access"
	msgInvalidToken     = "Invalid token, please log in again!"
	msgExpiredToken     = "Your session has expired! Please log in again"
	msgUserGone         = "The user belonging to this token no longer exists"
	msgPasswordChanged  = "User recently changed password! Please log in again!"
	msgMissingCreds     = "Please provide email and password!"
	msgBadCreds         = "Incorrect email or password"
	msgNoSuchEmail      = "There is no user with that email address"
	msgResetMailFailed  = "There was an error sending the email, try again later!"
	msgBadResetToken    = "The token is invalid or it has expired!"
	msgWrongCurrent     = "Your current password is wrong!"
	msgNotPasswordRoute = "This route is not for password updates. Please use /updateMyPassword"
)

// Hasher is the credential store the auth flows hash and verify through.
type Hasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, digest string) (bool, error)
}

type AuthService interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, string, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.User, string, error)
	// Authenticate resolves a bearer token to its active user.
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, req domain.ResetPasswordRequest) (*domain.User, string, error)
	UpdatePassword(ctx context.Context, user *domain.User, req domain.UpdatePasswordRequest) (*domain.User, string, error)
	UpdateMe(ctx context.Context, user *domain.User, req domain.UpdateMeRequest) (*domain.User, error)
	DeleteMe(ctx context.Context, userID int64) error
	TokenTTL() time.Duration
}

type authService struct {
	users    postgres.UsersRepo
	hasher   Hasher
	tokens   *auth.Tokens
	mailer   mailer.Service
	eventBus events.Publisher
	config   *config.Config
	now      func() time.Time
}

func NewAuthService(
	users postgres.UsersRepo,
	hasher Hasher,
	tokens *auth.Tokens,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		mailer:   mailer,
		eventBus: eventBus,
		config:   config,
		now:      time.Now,
	}
}

func (s *authService) TokenTTL() time.Duration { return s.tokens.TTL() }

func (s *authService) issue(u *domain.User) (*domain.User, string, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

func (s *authService) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, string, error) {
	req.Normalize()
	if err := domain.Validate(&req); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	// Signup never grants a role; admins promote through the users API.
	user, err := s.users.Create(ctx, &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		Photo:        domain.DefaultPhoto,
		Role:         domain.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.eventBus.Publish(ctx, events.UserSignedUp, events.UserSignedUpEvent{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish signup event", "error", err, "user_id", user.ID)
	}

	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, string, error) {
	email := utils.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, "", apperr.BadInput(msgMissingCreds)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, "", apperr.Unauthenticated(msgBadCreds)
	}

	ok, err := s.hasher.Verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, "", apperr.Unauthenticated(msgBadCreds)
	}

	return s.issue(user)
}

func (s *authService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperr.Unauthenticated(msgNotLoggedIn)
	}

	id, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, apperr.Unauthenticated(msgExpiredToken).WithTextCode(apperr.CodeExpiredToken)
		}
		return nil, apperr.Unauthenticated(msgInvalidToken).WithTextCode(apperr.CodeInvalidToken)
	}

	user, err := s.users.FindActiveByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, apperr.Unauthenticated(msgUserGone)
	}
	if auth.WasPasswordChangedAfter(user.PasswordChangedAt, id.IssuedAt) {
		return nil, apperr.Unauthenticated(msgPasswordChanged)
	}
	return user, nil
}

func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return apperr.NotFound(msgNoSuchEmail)
	}

	token, err := password.NewResetToken(s.config.Auth.ResetTokenTTL)
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, &token.Hashed, &token.ExpiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := s.config.Server.BaseURL + "/api/v1/users/resetPassword/" + token.Plain
	to := mailer.Recipient{Email: user.Email, Name: user.Name}
	if err := s.mailer.SendPasswordReset(ctx, to, resetURL); err != nil {
		logger.ErrorContext(ctx, "Failed to send password reset email", "error", err, "user_id", user.ID)
		if clearErr := s.users.SetResetToken(ctx, user.ID, nil, nil); clearErr != nil {
			logger.ErrorContext(ctx, "Failed to clear reset token", "error", clearErr, "user_id", user.ID)
		}
		return apperr.Operational(err, msgResetMailFailed)
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token string, req domain.ResetPasswordRequest) (*domain.User, string, error) {
	user, err := s.users.FindByResetToken(ctx, password.HashResetToken(token), s.now())
	if err != nil {
		return nil, "", fmt.Errorf("failed to find reset token: %w", err)
	}
	if user == nil {
		return nil, "", apperr.NotFound(msgBadResetToken)
	}
	if err := domain.Validate(&req); err != nil {
		return nil, "", err
	}
	if err := s.setPassword(ctx, user, req.Password); err != nil {
		return nil, "", err
	}
	return s.issue(user)
}

func (s *authService) UpdatePassword(ctx context.Context, user *domain.User, req domain.UpdatePasswordRequest) (*domain.User, string, error) {
	ok, err := s.hasher.Verify(ctx, req.PasswordCurrent, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, "", apperr.Unauthenticated(msgWrongCurrent)
	}
	if err := domain.Validate(&req); err != nil {
		return nil, "", err
	}
	if err := s.setPassword(ctx, user, req.Password); err != nil {
		return nil, "", err
	}
	return s.issue(user)
}

func (s *authService) setPassword(ctx context.Context, user *domain.User, plain string) error {
	hash, err := s.hasher.Hash(ctx, plain)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	changedAt := auth.PasswordChangedStamp(s.now())
	if err := s.users.SetPassword(ctx, user.ID, hash, changedAt); err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = &changedAt
	user.PasswordResetToken = nil
	user.PasswordResetExpires = nil
	return nil
}

func (s *authService) UpdateMe(ctx context.Context, user *domain.User, req domain.UpdateMeRequest) (*domain.User, error) {
	if req.TouchesPassword() {
		return nil, apperr.BadInput(msgNotPasswordRoute)
	}

	next := *user
	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.Email != nil {
		next.Email = *req.Email
	}
	next.Normalize()
	if err := domain.Validate(&next); err != nil {
		return nil, err
	}

	updated, err := s.users.UpdateProfile(ctx, user.ID, next.Name, next.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if updated == nil {
		return nil, apperr.Unauthenticated(msgUserGone)
	}
	return updated, nil
}

func (s *authService) DeleteMe(ctx context.Context, userID int64) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}
