package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kodbank/kodbank/internal/middleware"
	"github.com/kodbank/kodbank/internal/models"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Auth        *middleware.SessionAuth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	api := e.Group("/api")

	api.POST("/register", d.AuthHandler.Register)
	api.POST("/login", d.AuthHandler.Login)

	// Logout stays outside the auth gate: revoking a session whose row is
	// already gone must still clear the cookie and succeed.
	api.POST("/logout", d.AuthHandler.LogOut)

	private := api.Group("")
	private.Use(d.Auth.RequireAuth)

	private.GET("/balance", d.AuthHandler.Balance)
	private.GET("/user", d.AuthHandler.UserInfo)

	admin := private.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", d.AuthHandler.ListUsers)
}
