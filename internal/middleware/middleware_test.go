package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/auth"
)

const testJWTSecret = "test-secret"

type fakeVerifier struct {
	tokens map[string]*auth.Claims
}

func (f *fakeVerifier) Validate(tokenString string) (*auth.Claims, error) {
	if c, ok := f.tokens[tokenString]; ok {
		return c, nil
	}
	return nil, errors.New("unknown token")
}

func (f *fakeVerifier) Close() error { return nil }

func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c) + "|" + GetUserEmail(c))
}

func doGet(t *testing.T, app *fiber.App, header string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestAuthenticate(t *testing.T) {
	verifier := &fakeVerifier{tokens: map[string]*auth.Claims{
		"oidc-token": {UserID: "oidc-user", Email: "o@example.com"},
	}}
	legacy, err := auth.SignLegacyToken(testJWTSecret, "legacy-user", "l@example.com", time.Hour)
	require.NoError(t, err)

	m := NewAuthMiddleware(verifier, testJWTSecret)
	app := fiber.New()
	app.Get("/me", m.Authenticate(), whoami)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"jwks token", "Bearer oidc-token", http.StatusOK, "oidc-user|o@example.com"},
		{"legacy fallback", "bearer " + legacy, http.StatusOK, "legacy-user|l@example.com"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doGet(t, app, tt.header)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, body)
			} else {
				assert.Contains(t, body, `"UNAUTHORIZED"`)
			}
		})
	}
}

func TestAuthenticate_NotConfigured(t *testing.T) {
	m := NewAuthMiddleware(nil, "")
	assert.False(t, m.Configured())

	app := fiber.New()
	app.Get("/me", m.Authenticate(), whoami)

	resp, body := doGet(t, app, "Bearer x")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "not configured")
}

func setupLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRateLimiter(rdb, zerolog.Nop()), mr
}

func TestRateLimiter_Limit(t *testing.T) {
	rl, mr := setupLimiter(t)

	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		if u := c.Get("X-Test-User"); u != "" {
			c.Locals("userId", u)
		}
		return c.Next()
	}, rl.Limit("submit", 2, time.Minute), whoami)

	call := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	first := call("alice")
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, call("alice").StatusCode)

	limited := call("alice")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "60", limited.Header.Get("Retry-After"))

	// other callers have their own window
	assert.Equal(t, http.StatusOK, call("bob").StatusCode)
	assert.Equal(t, http.StatusOK, call("").StatusCode)
	var ipKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "ratelimit:submit:ip:") {
			ipKeys++
		}
	}
	assert.Equal(t, 1, ipKeys)

	mr.FastForward(time.Minute)
	assert.Equal(t, http.StatusOK, call("alice").StatusCode)
}

func TestRateLimiter_RedisDownAllows(t *testing.T) {
	rl, mr := setupLimiter(t)
	mr.Close()

	app := fiber.New()
	app.Get("/me", rl.SubmitLimit(1), whoami)

	for i := 0; i < 3; i++ {
		resp, _ := doGet(t, app, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, mr := setupLimiter(t)

	app := fiber.New()
	app.Get("/me", rl.SubmitLimit(0), whoami)

	resp, _ := doGet(t, app, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, mr.Keys())
}
