package unit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/nabilkencana/eportofolio-auth/config"
	"github.com/nabilkencana/eportofolio-auth/internal/domain"
	"github.com/nabilkencana/eportofolio-auth/internal/retry"
	"github.com/nabilkencana/eportofolio-auth/internal/usecase"
)

type mockUserRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	profiles map[string]*domain.Profile
	next     int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*domain.User{}, profiles: map[string]*domain.Profile{}}
}

func (r *mockUserRepo) CreateWithProfile(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		r.next++
		user.ID = fmt.Sprintf("user-%d", r.next)
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	cp := *user
	r.users[user.ID] = &cp
	r.profiles[user.ID] = &domain.Profile{ID: fmt.Sprintf("profile-%d", r.next), UserID: user.ID}
	return nil
}

func (r *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByIDWithProfile(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := cloneUser(u)
	cp.Profile = r.profiles[id]
	return cp, nil
}

func (r *mockUserRepo) SetRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.RefreshToken = &token
	u.RefreshTokenExpiresAt = &expiresAt
	return nil
}

func (r *mockUserRepo) RotateRefreshToken(_ context.Context, userID, presented, next string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != presented {
		return false, nil
	}
	u.RefreshToken = &next
	u.RefreshTokenExpiresAt = &expiresAt
	return true, nil
}

func (r *mockUserRepo) ClearRefreshToken(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.RefreshToken = nil
		u.RefreshTokenExpiresAt = nil
	}
	return nil
}

func (r *mockUserRepo) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *mockUserRepo) setRefreshExpiry(userID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.RefreshTokenExpiresAt = &at
	}
}

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	if u.RefreshToken != nil {
		tok := *u.RefreshToken
		cp.RefreshToken = &tok
	}
	if u.RefreshTokenExpiresAt != nil {
		exp := *u.RefreshTokenExpiresAt
		cp.RefreshTokenExpiresAt = &exp
	}
	return &cp
}

type testDeps struct {
	cfg    *config.Config
	users  *mockUserRepo
	issuer usecase.TokenIssuer
}

func newTestService(t *testing.T) (usecase.AuthService, *testDeps) {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "access-secret",
		JWTRefreshSecret: "refresh-secret",
		JWTIssuer:        "eportofolio-auth",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       168 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
		DBRetryMax:       3,
		DBRetryDelay:     time.Millisecond,
	}
	issuer, err := usecase.NewTokenIssuer(cfg)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	users := newMockUserRepo()
	exec := retry.NewExecutor(cfg.DBRetryMax, cfg.DBRetryDelay, nil, zerolog.Nop())
	svc := usecase.NewAuthService(cfg, zerolog.Nop(), users, issuer, exec, nil)
	return svc, &testDeps{cfg: cfg, users: users, issuer: issuer}
}

func register(t *testing.T, svc usecase.AuthService, email, name, password string) *usecase.AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), "trace", usecase.RegisterInput{
		Email:           email,
		Name:            name,
		Password:        password,
		ConfirmPassword: password,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return result
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	if reg.User.Role != domain.RoleUser {
		t.Fatalf("expected default role USER, got %s", reg.User.Role)
	}
	if reg.User.Email != "a@x.com" || reg.User.Name != "Ana" {
		t.Fatalf("unexpected user: %+v", reg.User)
	}
	if reg.Tokens.AccessToken == "" || reg.Tokens.RefreshToken == "" {
		t.Fatalf("tokens missing")
	}

	login, err := svc.Login(context.Background(), "trace", "a@x.com", "Abcd12")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.Email != "a@x.com" {
		t.Fatalf("unexpected login user: %+v", login.User)
	}
	if login.Tokens.RefreshToken == reg.Tokens.RefreshToken {
		t.Fatalf("login must mint a new refresh token")
	}
}

func TestRegisterNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "User@Example.com", "Ana", "Abcd12")

	_, err := svc.Register(context.Background(), "trace", usecase.RegisterInput{
		Email:           "  user@example.com ",
		Name:            "Other",
		Password:        "Abcd12",
		ConfirmPassword: "Abcd12",
	})
	if err == nil {
		t.Fatalf("expected conflict for duplicate email")
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict kind, got %v", err)
	}

	if _, lerr := svc.Login(context.Background(), "trace", "USER@EXAMPLE.COM", "Abcd12"); lerr != nil {
		t.Fatalf("login with case-variant email: %v", lerr)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name  string
		input usecase.RegisterInput
	}{
		{"password mismatch", usecase.RegisterInput{Email: "a@x.com", Name: "Ana", Password: "Abcd12", ConfirmPassword: "Abcd13"}},
		{"bad email", usecase.RegisterInput{Email: "not-an-email", Name: "Ana", Password: "Abcd12", ConfirmPassword: "Abcd12"}},
		{"short name", usecase.RegisterInput{Email: "a@x.com", Name: " A ", Password: "Abcd12", ConfirmPassword: "Abcd12"}},
		{"no uppercase", usecase.RegisterInput{Email: "a@x.com", Name: "Ana", Password: "abc123", ConfirmPassword: "abc123"}},
		{"no lowercase", usecase.RegisterInput{Email: "a@x.com", Name: "Ana", Password: "ABC123", ConfirmPassword: "ABC123"}},
		{"no digit", usecase.RegisterInput{Email: "a@x.com", Name: "Ana", Password: "Abcdef", ConfirmPassword: "Abcdef"}},
		{"too short", usecase.RegisterInput{Email: "a@x.com", Name: "Ana", Password: "Ab1", ConfirmPassword: "Ab1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), "trace", tc.input)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation kind, got %v", err)
			}
		})
	}

	if _, err := svc.Register(context.Background(), "trace", usecase.RegisterInput{
		Email: "ok@x.com", Name: "Ana", Password: "Abc123", ConfirmPassword: "Abc123",
	}); err != nil {
		t.Fatalf("boundary password should pass: %v", err)
	}
}

func TestLoginGenericErrorForUnknownAndWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "a@x.com", "Ana", "Abcd12")

	_, unknownErr := svc.Login(context.Background(), "trace", "nobody@x.com", "Abcd12")
	_, wrongErr := svc.Login(context.Background(), "trace", "a@x.com", "wrong")
	if unknownErr == nil || wrongErr == nil {
		t.Fatalf("expected both logins to fail")
	}
	de1, _ := domain.AsError(unknownErr)
	de2, _ := domain.AsError(wrongErr)
	if de1 == nil || de2 == nil {
		t.Fatalf("expected coded errors")
	}
	if de1.Message != de2.Message || de1.Code != de2.Code {
		t.Fatalf("login errors must be indistinguishable: %q vs %q", de1.Message, de2.Message)
	}
	if domain.KindOf(unknownErr) != domain.KindAuthentication {
		t.Fatalf("expected authentication kind")
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	svc, _ := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	userID := reg.User.ID
	r1 := reg.Tokens.RefreshToken

	tokens, err := svc.Refresh(context.Background(), "trace", userID, r1)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.RefreshToken == r1 {
		t.Fatalf("rotation must mint a new refresh token")
	}

	if _, err := svc.Refresh(context.Background(), "trace", userID, r1); err == nil {
		t.Fatalf("stale token must be rejected after rotation")
	} else if domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("expected authentication kind, got %v", err)
	}
}

func TestRefreshRejectsExpiredStoredToken(t *testing.T) {
	svc, deps := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	deps.users.setRefreshExpiry(reg.User.ID, time.Now().Add(-time.Minute))

	// The token's own exp claim is still far in the future; the stored
	// expiry alone must reject it.
	_, err := svc.Refresh(context.Background(), "trace", reg.User.ID, reg.Tokens.RefreshToken)
	if err == nil {
		t.Fatalf("expected expiry rejection")
	}
	if domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("expected authentication kind, got %v", err)
	}
}

func TestConcurrentRefreshHasExactlyOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	userID := reg.User.ID
	stale := reg.Tokens.RefreshToken

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(context.Background(), "trace", userID, stale)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if domain.KindOf(err) != domain.KindAuthentication {
			t.Fatalf("loser must fail with authentication error, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}
}

func TestLogoutIsIdempotentAndRevokesRefresh(t *testing.T) {
	svc, _ := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")

	if err := svc.Logout(context.Background(), "trace", reg.User.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(context.Background(), "trace", reg.User.ID); err != nil {
		t.Fatalf("second logout must not fail: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), "trace", reg.User.ID, reg.Tokens.RefreshToken); err == nil {
		t.Fatalf("refresh after logout must fail")
	}
}

func TestChangePassword(t *testing.T) {
	svc, deps := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	userID := reg.User.ID

	err := svc.ChangePassword(context.Background(), "trace", userID, usecase.ChangePasswordInput{
		CurrentPassword: "wrong", NewPassword: "Efgh34", ConfirmPassword: "Efgh34",
	})
	if domain.KindOf(err) != domain.KindAuthentication {
		t.Fatalf("wrong current password must be an authentication error, got %v", err)
	}

	err = svc.ChangePassword(context.Background(), "trace", userID, usecase.ChangePasswordInput{
		CurrentPassword: "Abcd12", NewPassword: "Efgh34", ConfirmPassword: "Other99",
	})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("mismatched confirmation must be a validation error, got %v", err)
	}

	err = svc.ChangePassword(context.Background(), "trace", userID, usecase.ChangePasswordInput{
		CurrentPassword: "Abcd12", NewPassword: "abc123", ConfirmPassword: "abc123",
	})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("weak new password must be a validation error, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), "trace", userID, usecase.ChangePasswordInput{
		CurrentPassword: "Abcd12", NewPassword: "Efgh34", ConfirmPassword: "Efgh34",
	}); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Login(context.Background(), "trace", "a@x.com", "Efgh34"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	// Existing session survives a password change.
	stored, _ := deps.users.FindByID(context.Background(), userID)
	if stored.RefreshToken == nil {
		t.Fatalf("refresh token must not be revoked by password change")
	}
}

func TestGetProfileRedactsSecrets(t *testing.T) {
	svc, _ := newTestService(t)
	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")

	profile, err := svc.GetProfile(context.Background(), "trace", reg.User.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Profile == nil {
		t.Fatalf("linked profile must be created at registration")
	}
	if profile.Email != "a@x.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if _, err := svc.GetProfile(context.Background(), "trace", "missing"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("missing user must be not found, got %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	svc, _ := newTestService(t)

	reg := register(t, svc, "a@x.com", "Ana", "Abcd12")
	if reg.User.Role != domain.RoleUser {
		t.Fatalf("role must default to USER")
	}

	login, err := svc.Login(context.Background(), "trace", "a@x.com", "Abcd12")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Tokens.RefreshToken == reg.Tokens.RefreshToken {
		t.Fatalf("login must rotate the refresh token")
	}

	if _, err := svc.Login(context.Background(), "trace", "a@x.com", "wrong"); err == nil {
		t.Fatalf("wrong password must fail")
	} else if de, _ := domain.AsError(err); de == nil || !strings.Contains(de.Message, "invalid email or password") {
		t.Fatalf("expected generic credentials message, got %v", err)
	}

	// The registration-time token was superseded by the login.
	if _, err := svc.Refresh(context.Background(), "trace", reg.User.ID, reg.Tokens.RefreshToken); err == nil {
		t.Fatalf("stale registration token must be rejected")
	}
}
