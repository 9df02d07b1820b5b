package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nabilkencana/eportofolio-auth/internal/tokenverify"
	res "github.com/nabilkencana/eportofolio-auth/pkg/http"
)

type AuthMiddleware struct {
	parser tokenverify.Parser
}

func NewAuthMiddleware(parser tokenverify.Parser) *AuthMiddleware {
	return &AuthMiddleware{parser: parser}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get(echo.HeaderAuthorization)
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing token", requestIDFromCtx(c), nil)
		}
		result, err := tokenverify.Verify(m.parser, parts[1], time.Now)
		if err != nil {
			if errors.Is(err, tokenverify.ErrTokenExpired) {
				return res.ErrorJSON(c, http.StatusUnauthorized, "token_expired", "token has expired", requestIDFromCtx(c), nil)
			}
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "invalid token", requestIDFromCtx(c), nil)
		}
		c.Set("user_id", result.UserID)
		c.Set("email", result.Email)
		c.Set("role", string(result.Role))
		return next(c)
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
