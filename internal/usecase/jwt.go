package usecase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nabilkencana/eportofolio-auth/config"
	"github.com/nabilkencana/eportofolio-auth/internal/domain"
)

// Claims is the closed record carried by both token classes.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenIssuer mints access/refresh pairs. Access and refresh tokens are
// signed with independent secrets and TTLs, so neither class can stand in
// for the other.
type TokenIssuer interface {
	Issue(userID, email string, role domain.Role) (*TokenPair, error)
	ParseAccess(token string) (*Claims, error)
	ParseRefresh(token string) (*Claims, error)
	RefreshTTL() time.Duration
}

type tokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewTokenIssuer fails fast when either secret is unconfigured; a missing
// secret is a deployment fault, not a runtime condition.
func NewTokenIssuer(cfg *config.Config) (TokenIssuer, error) {
	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, domain.InternalError("token_signing_unconfigured", "jwt signing secrets are not configured", nil)
	}
	return &tokenIssuer{
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.JWTIssuer,
	}, nil
}

func (t *tokenIssuer) Issue(userID, email string, role domain.Role) (*TokenPair, error) {
	access, err := t.sign(userID, email, role, "", t.accessSecret, t.accessTTL)
	if err != nil {
		return nil, domain.InternalError("token_signing_failed", "failed to sign access token", err)
	}
	// The jti makes every refresh token unique even when two are minted
	// within the same second, so rotation always produces a new value.
	refresh, err := t.sign(userID, email, role, uuid.NewString(), t.refreshSecret, t.refreshTTL)
	if err != nil {
		return nil, domain.InternalError("token_signing_failed", "failed to sign refresh token", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(t.accessTTL.Seconds()),
	}, nil
}

func (t *tokenIssuer) ParseAccess(token string) (*Claims, error) {
	return t.parse(token, t.accessSecret)
}

func (t *tokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return t.parse(token, t.refreshSecret)
}

func (t *tokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

func (t *tokenIssuer) sign(userID, email string, role domain.Role, jti string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *tokenIssuer) parse(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithIssuer(t.issuer), jwt.WithLeeway(30*time.Second))
	tok, err := parser.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return nil, domain.AuthenticationError("invalid_token", "token is invalid")
	}
	if claims.Subject == "" {
		return nil, domain.AuthenticationError("invalid_token", "token subject missing")
	}
	return claims, nil
}
