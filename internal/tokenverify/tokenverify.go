package tokenverify

import (
	"errors"
	"time"

	"github.com/nabilkencana/eportofolio-auth/internal/domain"
	"github.com/nabilkencana/eportofolio-auth/internal/usecase"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrSubjectMissing = errors.New("subject_missing")
)

type Parser interface {
	ParseAccess(token string) (*usecase.Claims, error)
}

type Result struct {
	UserID string
	Email  string
	Role   domain.Role
}

// Verify parses and validates an access token, returning the principal it
// identifies.
func Verify(parser Parser, token string, nowFn func() time.Time) (*Result, error) {
	if parser == nil {
		return nil, ErrInvalidToken
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	claims, err := parser.ParseAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || nowFn().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, ErrSubjectMissing
	}
	return &Result{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}
