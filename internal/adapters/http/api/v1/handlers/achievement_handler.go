package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nabilkencana/eportofolio-auth/internal/usecase"
	res "github.com/nabilkencana/eportofolio-auth/pkg/http"
)

const maxCertificateBytes = 5 << 20

type AchievementHandler struct {
	service usecase.AchievementService
}

func NewAchievementHandler(s usecase.AchievementService) *AchievementHandler {
	return &AchievementHandler{service: s}
}

type achievementRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Issuer      string    `json:"issuer"`
	AchievedAt  time.Time `json:"achieved_at"`
}

func (r *achievementRequest) toInput() usecase.AchievementInput {
	return usecase.AchievementInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Issuer:      r.Issuer,
		AchievedAt:  r.AchievedAt,
	}
}

func (h *AchievementHandler) Create(c echo.Context) error {
	req := new(achievementRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	userID := c.Get("user_id").(string)
	achievement, err := h.service.Create(c.Request().Context(), requestIDFromCtx(c), userID, req.toInput())
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusCreated, achievement)
}

func (h *AchievementHandler) List(c echo.Context) error {
	userID := c.Get("user_id").(string)
	achievements, err := h.service.List(c.Request().Context(), requestIDFromCtx(c), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, achievements)
}

func (h *AchievementHandler) Get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	achievement, err := h.service.Get(c.Request().Context(), requestIDFromCtx(c), userID, c.Param("id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, achievement)
}

func (h *AchievementHandler) Update(c echo.Context) error {
	req := new(achievementRequest)
	if err := c.Bind(req); err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
	}
	userID := c.Get("user_id").(string)
	achievement, err := h.service.Update(c.Request().Context(), requestIDFromCtx(c), userID, c.Param("id"), req.toInput())
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, achievement)
}

func (h *AchievementHandler) Delete(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.service.Delete(c.Request().Context(), requestIDFromCtx(c), userID, c.Param("id")); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AchievementHandler) AttachCertificate(c echo.Context) error {
	file, err := c.FormFile("certificate")
	if err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "certificate file is required", requestIDFromCtx(c), nil)
	}
	if file.Size > maxCertificateBytes {
		return res.ErrorJSON(c, http.StatusBadRequest, "file_too_large", "certificate file exceeds 5MB", requestIDFromCtx(c), nil)
	}
	src, err := file.Open()
	if err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "certificate file is unreadable", requestIDFromCtx(c), nil)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "certificate file is unreadable", requestIDFromCtx(c), nil)
	}

	userID := c.Get("user_id").(string)
	achievement, err := h.service.AttachCertificate(c.Request().Context(), requestIDFromCtx(c), userID, c.Param("id"), file.Filename, data)
	if err != nil {
		return writeDomainError(c, err)
	}
	return res.JSON(c, http.StatusOK, achievement)
}
