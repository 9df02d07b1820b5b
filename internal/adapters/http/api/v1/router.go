package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/nabilkencana/eportofolio-auth/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	auth         *handlers.AuthHandler
	achievements *handlers.AchievementHandler
	authMW       echo.MiddlewareFunc
}

func NewRouter(auth *handlers.AuthHandler, achievements *handlers.AchievementHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{auth: auth, achievements: achievements, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/register", r.auth.Register)
	auth.POST("/login", r.auth.Login)
	auth.POST("/refresh", r.auth.Refresh)

	protected := auth.Group("", r.authMW)
	protected.POST("/logout", r.auth.Logout)
	protected.POST("/password/change", r.auth.ChangePassword)
	protected.GET("/me", r.auth.Me)

	achievements := g.Group("/achievements", r.authMW)
	achievements.POST("", r.achievements.Create)
	achievements.GET("", r.achievements.List)
	achievements.GET("/:id", r.achievements.Get)
	achievements.PATCH("/:id", r.achievements.Update)
	achievements.DELETE("/:id", r.achievements.Delete)
	achievements.POST("/:id/certificate", r.achievements.AttachCertificate)
}
