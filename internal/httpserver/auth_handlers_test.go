package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kodbank/kodbank/internal/config"
	"github.com/kodbank/kodbank/internal/hash"
	"github.com/kodbank/kodbank/internal/middleware"
	"github.com/kodbank/kodbank/internal/models"
	"github.com/kodbank/kodbank/internal/repo"
	"github.com/kodbank/kodbank/internal/service"
	"github.com/kodbank/kodbank/internal/tokens"
)

type testEnv struct {
	T   *testing.T
	E   *echo.Echo
	Svc *service.AuthService
	DB  *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig())
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	gormRepo := repo.New(db)
	issuer := tokens.NewIssuer([]byte("test-jwt-secret"), 24*time.Hour)
	svc := &service.AuthService{
		Repo:   gormRepo,
		Hasher: hash.NewHasher(4),
		Issuer: issuer,
	}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler: &AuthHTTP{Svc: svc},
		Auth:        middleware.NewSessionAuth(issuer, gormRepo),
	})

	return &testEnv{T: t, E: e, Svc: svc, DB: db}
}

func (env *testEnv) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	env.T.Helper()
	var body map[string]interface{}
	require.NoError(env.T, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func registerPayload() map[string]interface{} {
	return map[string]interface{}{
		"uid":      1,
		"uname":    "alice",
		"password": "secret1",
		"email":    "a@b.com",
		"phone":    "1234567890",
	}
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "token" {
			return ck
		}
	}
	t.Fatal("token cookie not set")
	return nil
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := env.decode(rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Registration successful! Please login.", body["message"])
	assert.Equal(t, "/login.html", body["redirect"])
}

func TestRegisterEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	missing := registerPayload()
	delete(missing, "phone")
	rec := env.do(http.MethodPost, "/api/register", missing)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "All fields are required", env.decode(rec)["message"])

	badEmail := registerPayload()
	badEmail["email"] = "not-an-email"
	rec = env.do(http.MethodPost, "/api/register", badEmail)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email format", env.decode(rec)["message"])
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	dup := registerPayload()
	dup["uid"] = 2
	rec = env.do(http.MethodPost, "/api/register", dup)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := env.decode(rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Username or email already exists", body["message"])
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := env.decode(rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Login successful!", body["message"])
	assert.Equal(t, "/dashboard.html", body["redirect"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, models.RoleCustomer, body["role"])

	ck := tokenCookie(t, rec)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.NotEmpty(t, ck.Value)
	assert.Greater(t, ck.MaxAge, 0)
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	// Unknown user and wrong password get the same generic message.
	for _, creds := range []map[string]string{
		{"username": "mallory", "password": "secret1"},
		{"username": "alice", "password": "wrong"},
	} {
		rec = env.do(http.MethodPost, "/api/login", creds)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid username or password", env.decode(rec)["message"])
	}
}

func TestProtectedWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required. Please login.", env.decode(rec)["message"])
}

func TestEndToEndFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPost, "/api/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := tokenCookie(t, rec)

	rec = env.do(http.MethodGet, "/api/balance", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DefaultBalance, env.decode(rec)["balance"])

	rec = env.do(http.MethodGet, "/api/user", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	user := env.decode(rec)["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, models.RoleCustomer, user["role"])

	rec = env.do(http.MethodPost, "/api/logout", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logout successful!", env.decode(rec)["message"])
	cleared := tokenCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// The old token is still within its signed validity window, but the
	// session row is gone, so the gate rejects it.
	rec = env.do(http.MethodGet, "/api/balance", nil, ck)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", env.decode(rec)["message"])
}

func TestLogoutWithoutSessionStillSucceeds(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(http.MethodPost, "/api/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := tokenCookie(t, rec)

	rec = env.do(http.MethodPost, "/api/logout", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second logout carries a stale-but-signed token whose session row is
	// already deleted; it still clears the cookie and succeeds.
	rec = env.do(http.MethodPost, "/api/logout", nil, ck)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logout successful!", env.decode(rec)["message"])
	cleared := tokenCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogoutWithoutAnyToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := env.decode(rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Logout successful!", body["message"])
	cleared := tokenCookie(t, rec)
	assert.Empty(t, cleared.Value)
}

func TestAdminRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	admin := registerPayload()
	admin["uid"] = 2
	admin["uname"] = "root"
	admin["email"] = "root@b.com"
	admin["role"] = models.RoleAdmin
	rec = env.do(http.MethodPost, "/api/register", admin)
	require.Equal(t, http.StatusCreated, rec.Code)

	login := func(username string) *http.Cookie {
		rec := env.do(http.MethodPost, "/api/login", map[string]string{
			"username": username,
			"password": "secret1",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		return tokenCookie(t, rec)
	}

	rec = env.do(http.MethodGet, "/api/admin/users", nil, login("alice"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to access this resource", env.decode(rec)["message"])

	rec = env.do(http.MethodGet, "/api/admin/users", nil, login("root"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := env.decode(rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["users"], 2)
}

func TestUserNotFoundAfterAccountRemoval(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/register", registerPayload())
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(http.MethodPost, "/api/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	ck := tokenCookie(t, rec)

	// Identity resolves but the backing account is gone.
	require.NoError(t, env.DB.Where("username = ?", "alice").Delete(&models.User{}).Error)

	rec = env.do(http.MethodGet, "/api/balance", nil, ck)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", env.decode(rec)["message"])
}
