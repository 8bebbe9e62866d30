package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kodbank/kodbank/internal/logging"
	"github.com/kodbank/kodbank/internal/repo"
	"github.com/kodbank/kodbank/internal/tokens"
)

// Context keys under which RequireAuth stores the resolved identity.
const (
	CtxUsername = "username"
	CtxRole     = "role"
	CtxToken    = "token"
)

type SessionAuth struct {
	Issuer *tokens.Issuer
	Repo   *repo.GormRepo
}

func NewSessionAuth(issuer *tokens.Issuer, r *repo.GormRepo) *SessionAuth {
	return &SessionAuth{Issuer: issuer, Repo: r}
}

// RequireAuth is the single point deciding authenticated vs not. It verifies
// the token's signature and expiry, then requires a live session row, so a
// logged-out token is rejected before its natural expiry. Store outages are
// a 500, never an authentication failure.
func (m *SessionAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := ExtractToken(c)
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false,
				"message": "Authentication required. Please login.",
			})
		}

		claims, err := m.Issuer.Parse(tokenStr)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, tokens.ErrTokenExpired) {
				msg = "Token expired"
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false,
				"message": msg,
			})
		}

		if _, err := m.Repo.FindSessionByToken(c.Request().Context(), tokenStr); err != nil {
			if errors.Is(err, repo.ErrSessionNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "Invalid token",
				})
			}
			logging.FromContext(c.Request().Context()).Error("session lookup failed", "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"success": false,
				"message": "Internal server error during authentication",
			})
		}

		c.Set(CtxUsername, claims.Subject)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxToken, tokenStr)

		return next(c)
	}
}

// RequireRoles restricts a route to the given roles. It runs after
// RequireAuth; a request with no attached identity fails the same way an
// unauthenticated one does.
func RequireRoles(allowed ...string) echo.MiddlewareFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"message": "Authentication required",
				})
			}
			if _, permitted := allowedSet[role]; !permitted {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false,
					"message": "You do not have permission to access this resource",
				})
			}
			return next(c)
		}
	}
}

// ExtractToken pulls the session token from the token cookie, falling back
// to an Authorization bearer header.
func ExtractToken(c echo.Context) string {
	if cookie, err := c.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}
