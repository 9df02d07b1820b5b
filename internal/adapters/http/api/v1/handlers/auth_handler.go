package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nabilkencana/eportofolio-auth/internal/domain"
	"github.com/nabilkencana/eportofolio-auth/internal/usecase"
	res "github.com/nabilkencana/eportofolio-auth/pkg/http"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	service usecase.AuthService
	issuer  usecase.TokenIssuer
}

func NewAuthHandler(s usecase.AuthService, issuer usecase.TokenIssuer) *AuthHandler {
	return &AuthHandler{service: s, issuer: issuer}
}

type registerRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type authResponse struct {
	User        *domain.SanitizedUser `json:"user"`
	AccessToken string                `json:"access_token"`
	ExpiresIn   int64                 `json:"expires_in"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	req := new(registerRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	result, err := h.service.Register(c.Request().Context(), requestIDFromCtx(c), usecase.RegisterInput{
		Email:           req.Email,
		Name:            req.Name,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return writeDomainError(c, err)
	}
	setRefreshCookie(c, result.Tokens.RefreshToken, h.issuer.RefreshTTL())
	return c.JSON(http.StatusCreated, authResponse{
		User:        result.User,
		AccessToken: result.Tokens.AccessToken,
		ExpiresIn:   result.Tokens.ExpiresIn,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	result, err := h.service.Login(c.Request().Context(), requestIDFromCtx(c), req.Email, req.Password)
	if err != nil {
		return writeDomainError(c, err)
	}
	setRefreshCookie(c, result.Tokens.RefreshToken, h.issuer.RefreshTTL())
	return c.JSON(http.StatusOK, authResponse{
		User:        result.User,
		AccessToken: result.Tokens.AccessToken,
		ExpiresIn:   result.Tokens.ExpiresIn,
	})
}

// Refresh accepts the refresh token from the body or the HTTP-only cookie.
// The token's own signature identifies the user; the stored row decides
// whether it is still valid.
func (h *AuthHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	_ = c.Bind(req)
	raw := req.RefreshToken
	if raw == "" {
		if cookie, err := c.Cookie(refreshCookieName); err == nil {
			raw = cookie.Value
		}
	}
	if raw == "" {
		return res.ErrorJSON(c, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is required", requestIDFromCtx(c), nil)
	}
	claims, err := h.issuer.ParseRefresh(raw)
	if err != nil {
		return writeDomainError(c, err)
	}
	tokens, err := h.service.Refresh(c.Request().Context(), requestIDFromCtx(c), claims.Subject, raw)
	if err != nil {
		return writeDomainError(c, err)
	}
	setRefreshCookie(c, tokens.RefreshToken, h.issuer.RefreshTTL())
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.service.Logout(c.Request().Context(), requestIDFromCtx(c), userID); err != nil {
		return writeDomainError(c, err)
	}
	clearRefreshCookie(c)
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	req := new(changePasswordRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	userID := c.Get("user_id").(string)
	err := h.service.ChangePassword(c.Request().Context(), requestIDFromCtx(c), userID, usecase.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID := c.Get("user_id").(string)
	user, err := h.service.GetProfile(c.Request().Context(), requestIDFromCtx(c), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, user)
}

func setRefreshCookie(c echo.Context, token string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Internal
// causes never reach the response body.
func writeDomainError(c echo.Context, err error) error {
	traceID := requestIDFromCtx(c)
	de, ok := domain.AsError(err)
	if !ok {
		return res.ErrorJSON(c, http.StatusInternalServerError, "internal_error", "internal server error", traceID, nil)
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindAuthentication:
		status = http.StatusUnauthorized
	case domain.KindAuthorization:
		status = http.StatusForbidden
	case domain.KindNotFound:
		status = http.StatusNotFound
	}
	return res.ErrorJSON(c, status, de.Code, de.Message, traceID, nil)
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
