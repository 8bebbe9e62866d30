package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kodbank/kodbank/internal/logging"
	"github.com/kodbank/kodbank/internal/middleware"
	"github.com/kodbank/kodbank/internal/repo"
	"github.com/kodbank/kodbank/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService

	// SecureCookies marks the token cookie Secure; on in production only.
	SecureCookies bool
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		UID      uint   `json:"uid"`
		Username string `json:"uname"`
		Password string `json:"password"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return fail(c, http.StatusBadRequest, "All fields are required")
	}

	err := h.Svc.Register(ctx, service.RegisterInput{
		UID:      req.UID,
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			return fail(c, http.StatusBadRequest, "Invalid email format")
		case errors.Is(err, service.ErrValidation):
			return fail(c, http.StatusBadRequest, "All fields are required")
		case errors.Is(err, repo.ErrDuplicateUser):
			return fail(c, http.StatusConflict, "Username or email already exists")
		default:
			return fail(c, http.StatusInternalServerError, "Registration failed. Please try again.")
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":  true,
		"message":  "Registration successful! Please login.",
		"redirect": "/login.html",
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return fail(c, http.StatusBadRequest, "Username and password are required")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return fail(c, http.StatusBadRequest, "Username and password are required")
		case errors.Is(err, service.ErrInvalidCredentials):
			return fail(c, http.StatusUnauthorized, "Invalid username or password")
		default:
			return fail(c, http.StatusInternalServerError, "Login failed. Please try again.")
		}
	}

	c.SetCookie(TokenCookie(res.Token, res.ExpiresAt, h.SecureCookies))

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "Login successful!",
		"redirect": "/dashboard.html",
		"username": res.Username,
		"role":     res.Role,
	})
}

// LogOut is not gated: a stale-but-signed token, or no token at all, still
// gets its cookie cleared and a 200.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()

	token := middleware.ExtractToken(c)
	if err := h.Svc.LogOut(ctx, token); err != nil {
		return fail(c, http.StatusInternalServerError, "Logout failed. Please try again.")
	}

	c.SetCookie(ClearTokenCookie(h.SecureCookies))

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"message":  "Logout successful!",
		"redirect": "/login.html",
	})
}

func (h *AuthHTTP) Balance(c echo.Context) error {
	ctx := c.Request().Context()

	username, _ := c.Get(middleware.CtxUsername).(string)
	balance, err := h.Svc.Balance(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to fetch balance")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"balance": balance,
	})
}

func (h *AuthHTTP) UserInfo(c echo.Context) error {
	ctx := c.Request().Context()

	username, _ := c.Get(middleware.CtxUsername).(string)
	user, err := h.Svc.UserInfo(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return fail(c, http.StatusNotFound, "User not found")
		}
		return fail(c, http.StatusInternalServerError, "Failed to fetch user info")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user": echo.Map{
			"uid":      user.UID,
			"username": user.Username,
			"email":    user.Email,
			"phone":    user.Phone,
			"role":     user.Role,
		},
	})
}

func (h *AuthHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()

	users, err := h.Svc.ListUsers(ctx)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "Failed to fetch users")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"users":   users,
	})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{
		"success": false,
		"message": message,
	})
}
