package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nabilkencana/eportofolio-auth/config"
	repo "github.com/nabilkencana/eportofolio-auth/internal/adapters/postgres"
	"github.com/nabilkencana/eportofolio-auth/internal/domain"
	"github.com/nabilkencana/eportofolio-auth/internal/retry"
	pkglog "github.com/nabilkencana/eportofolio-auth/pkg/log"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// errInvalidCredentials is deliberately the same for unknown email and
// wrong password so login responses cannot be used to enumerate accounts.
var errInvalidCredentials = domain.AuthenticationError("invalid_credentials", "invalid email or password")

type RegisterInput struct {
	Email           string
	Name            string
	Password        string
	ConfirmPassword string
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

type AuthResult struct {
	User   *domain.SanitizedUser `json:"user"`
	Tokens *TokenPair            `json:"tokens"`
}

// EventPublisher broadcasts account lifecycle events to sibling services.
// A nil publisher disables broadcasting.
type EventPublisher interface {
	UserRegistered(ctx context.Context, userID, email string) error
}

type AuthService interface {
	Register(ctx context.Context, traceID string, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, traceID, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, traceID, userID, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, traceID, userID string) error
	ChangePassword(ctx context.Context, traceID, userID string, in ChangePasswordInput) error
	GetProfile(ctx context.Context, traceID, userID string) (*domain.SanitizedUser, error)
}

type authService struct {
	cfg    *config.Config
	logger pkglog.Logger
	users  repo.UserRepository
	issuer TokenIssuer
	exec   *retry.Executor
	events EventPublisher
}

func NewAuthService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, issuer TokenIssuer, exec *retry.Executor, events EventPublisher) AuthService {
	return &authService{cfg: cfg, logger: logger, users: users, issuer: issuer, exec: exec, events: events}
}

func (s *authService) Register(ctx context.Context, traceID string, in RegisterInput) (*AuthResult, error) {
	if in.Password != in.ConfirmPassword {
		return nil, domain.ValidationError("password_mismatch", "passwords do not match")
	}
	email := normalizeEmail(in.Email)
	if !emailPattern.MatchString(email) {
		return nil, domain.ValidationError("invalid_email", "email format is invalid")
	}
	name := strings.TrimSpace(in.Name)
	if len(name) < 2 {
		return nil, domain.ValidationError("invalid_name", "name must be at least 2 characters")
	}
	if err := validatePasswordStrength(in.Password); err != nil {
		return nil, err
	}

	var existing *domain.User
	err := s.exec.Do(ctx, "findUserByEmail", func(ctx context.Context) error {
		u, ferr := s.users.FindByEmail(ctx, email)
		if ferr != nil {
			return ferr
		}
		existing = u
		return nil
	})
	if err == nil && existing != nil {
		return nil, domain.ConflictError("email_taken", "email is already registered")
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.InternalError("register_failed", "failed to register user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, domain.InternalError("register_failed", "failed to register user", err)
	}

	user := &domain.User{
		Email:         email,
		Name:          name,
		PasswordHash:  string(hash),
		Role:          domain.RoleUser,
		EmailVerified: true,
	}
	if err := s.users.CreateWithProfile(ctx, user); err != nil {
		return nil, domain.InternalError("register_failed", "failed to register user", err)
	}

	tokens, err := s.issueAndPersist(ctx, "updateRefreshTokenRegister", user)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		_ = s.events.UserRegistered(ctx, user.ID, user.Email)
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return &AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

func (s *authService) Login(ctx context.Context, traceID, email, password string) (*AuthResult, error) {
	norm := normalizeEmail(email)
	if norm == "" || password == "" {
		return nil, domain.ValidationError("missing_credentials", "email and password are required")
	}

	var user *domain.User
	err := s.exec.Do(ctx, "findUserByEmailLogin", func(ctx context.Context) error {
		u, ferr := s.users.FindByEmail(ctx, norm)
		if ferr != nil {
			return ferr
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Str("trace_id", traceID).Msg("login attempt for unknown email")
			return nil, errInvalidCredentials
		}
		return nil, domain.InternalError("login_failed", "failed to log in", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", user.ID).Msg("login attempt with wrong password")
		return nil, errInvalidCredentials
	}

	tokens, err := s.issueAndPersist(ctx, "updateRefreshTokenLogin", user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("user logged in")
	return &AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

// Refresh rotates the persisted refresh token. The presented token must
// exactly match the stored value and be within its stored expiry; the
// match-and-replace happens in one conditional update so two concurrent
// refreshes with the same stale token produce exactly one winner.
func (s *authService) Refresh(ctx context.Context, traceID, userID, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.AuthenticationError("invalid_refresh_token", "refresh token is invalid")
	}

	var user *domain.User
	err := s.exec.Do(ctx, "findUserByIDRefresh", func(ctx context.Context) error {
		u, ferr := s.users.FindByID(ctx, userID)
		if ferr != nil {
			return ferr
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.AuthenticationError("invalid_refresh_token", "refresh token is invalid")
		}
		return nil, domain.InternalError("refresh_failed", "failed to refresh session", err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return nil, domain.AuthenticationError("invalid_refresh_token", "refresh token is invalid")
	}
	if user.RefreshTokenExpiresAt == nil || user.RefreshTokenExpiresAt.Before(time.Now()) {
		return nil, domain.AuthenticationError("refresh_token_expired", "refresh token has expired")
	}

	tokens, err := s.issuer.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	var rotated bool
	err = s.exec.Do(ctx, "rotateRefreshToken", func(ctx context.Context) error {
		ok, rerr := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, tokens.RefreshToken, time.Now().Add(s.issuer.RefreshTTL()))
		if rerr != nil {
			return rerr
		}
		rotated = ok
		return nil
	})
	if err != nil {
		return nil, domain.InternalError("refresh_failed", "failed to refresh session", err)
	}
	if !rotated {
		// A concurrent refresh already superseded the presented token.
		return nil, domain.AuthenticationError("invalid_refresh_token", "refresh token is invalid")
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("session refreshed")
	return tokens, nil
}

// Logout clears the stored refresh token. Calling it for an already
// logged-out user is not an error.
func (s *authService) Logout(ctx context.Context, traceID, userID string) error {
	err := s.exec.Do(ctx, "clearRefreshToken", func(ctx context.Context) error {
		return s.users.ClearRefreshToken(ctx, userID)
	})
	if err != nil {
		return domain.InternalError("logout_failed", "failed to log out", err)
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("user logged out")
	return nil
}

// ChangePassword verifies the current password before storing the new
// hash. The stored refresh token is left untouched, so existing sessions
// survive a password change.
func (s *authService) ChangePassword(ctx context.Context, traceID, userID string, in ChangePasswordInput) error {
	var user *domain.User
	err := s.exec.Do(ctx, "findUserByIDChangePassword", func(ctx context.Context) error {
		u, ferr := s.users.FindByID(ctx, userID)
		if ferr != nil {
			return ferr
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuthenticationError("user_not_found", "user not found")
		}
		return domain.InternalError("password_change_failed", "failed to change password", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return domain.AuthenticationError("wrong_password", "current password is incorrect")
	}
	if in.NewPassword != in.ConfirmPassword {
		return domain.ValidationError("password_mismatch", "passwords do not match")
	}
	if err := validatePasswordStrength(in.NewPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return domain.InternalError("password_change_failed", "failed to change password", err)
	}
	err = s.exec.Do(ctx, "updatePassword", func(ctx context.Context) error {
		return s.users.UpdatePassword(ctx, userID, string(hash))
	})
	if err != nil {
		return domain.InternalError("password_change_failed", "failed to change password", err)
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg("password changed")
	return nil
}

func (s *authService) GetProfile(ctx context.Context, traceID, userID string) (*domain.SanitizedUser, error) {
	var user *domain.User
	err := s.exec.Do(ctx, "findUserByIDProfile", func(ctx context.Context) error {
		u, ferr := s.users.FindByIDWithProfile(ctx, userID)
		if ferr != nil {
			return ferr
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFoundError("user_not_found", "user not found")
		}
		return nil, domain.InternalError("profile_failed", "failed to load profile", err)
	}
	return user.Sanitize(), nil
}

func (s *authService) issueAndPersist(ctx context.Context, opName string, user *domain.User) (*TokenPair, error) {
	tokens, err := s.issuer.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	err = s.exec.Do(ctx, opName, func(ctx context.Context) error {
		return s.users.SetRefreshToken(ctx, user.ID, tokens.RefreshToken, time.Now().Add(s.issuer.RefreshTTL()))
	})
	if err != nil {
		return nil, domain.InternalError("session_persist_failed", "failed to persist session", err)
	}
	return tokens, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// validatePasswordStrength enforces length >= 6 with at least one upper,
// one lower and one digit.
func validatePasswordStrength(password string) error {
	if len(password) < 6 {
		return domain.ValidationError("weak_password", "password must be at least 6 characters with upper, lower and digit")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return domain.ValidationError("weak_password", "password must be at least 6 characters with upper, lower and digit")
	}
	return nil
}
