package csrf

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSecureKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newTestApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(New(cfg))
	RegisterRoutes(app)
	app.Post("/submit", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func fetchToken(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/csrf", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store, max-age=0", resp.Header.Get(fiber.HeaderCacheControl))

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, DefaultFormFieldName, payload["field_name"])
	assert.Equal(t, DefaultHeaderName, payload["header_name"])
	require.NotEmpty(t, payload["token"])
	return payload["token"]
}

func postForm(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	form := url.Values{}
	if token != "" {
		form.Set(DefaultFormFieldName, token)
	}
	req := httptest.NewRequest(fiber.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestStatelessTokenValidation(t *testing.T) {
	app := newTestApp(Config{SecureKey: newTestSecureKey()})
	token := fetchToken(t, app)

	t.Run("form field", func(t *testing.T) {
		assert.Equal(t, fiber.StatusOK, postForm(t, app, token))
	})

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(fiber.MethodPost, "/submit", nil)
		req.Header.Set(DefaultHeaderName, token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, fiber.StatusBadRequest, postForm(t, app, ""))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Equal(t, fiber.StatusForbidden, postForm(t, app, "not-a-token"))
	})

	t.Run("tampered", func(t *testing.T) {
		decoded, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		parts := strings.SplitN(string(decoded), ":", 2)
		forged := "1:" + parts[1]
		raw := base64.RawURLEncoding.EncodeToString([]byte(forged))
		assert.Equal(t, fiber.StatusForbidden, postForm(t, app, raw))
	})
}

func TestTokenFromAnotherKeyRejected(t *testing.T) {
	other := newTestApp(Config{SecureKey: []byte("ffffffffffffffffffffffffffffffff")})
	token := fetchToken(t, other)

	app := newTestApp(Config{SecureKey: newTestSecureKey()})
	assert.Equal(t, fiber.StatusForbidden, postForm(t, app, token))
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	app := newTestApp(Config{
		SecureKey:  newTestSecureKey(),
		Expiration: time.Hour,
		Now:        clock,
	})
	token := fetchToken(t, app)

	now = now.Add(30 * time.Minute)
	assert.Equal(t, fiber.StatusOK, postForm(t, app, token))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, fiber.StatusForbidden, postForm(t, app, token))
}

func TestSkip(t *testing.T) {
	app := newTestApp(Config{
		SecureKey: newTestSecureKey(),
		Skip:      func(c *fiber.Ctx) bool { return c.Path() == "/submit" },
	})
	assert.Equal(t, fiber.StatusOK, postForm(t, app, ""))
}

func TestCustomErrorHandler(t *testing.T) {
	var got error
	app := newTestApp(Config{
		SecureKey: newTestSecureKey(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(fiber.StatusTeapot)
		},
	})
	assert.Equal(t, fiber.StatusTeapot, postForm(t, app, ""))
	assert.Equal(t, ErrTokenMissing, got)
}

func TestShortSecureKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{SecureKey: []byte("short")})
	})
}

func TestGetExtractors(t *testing.T) {
	assert.Len(t, getExtractors("", "_token", "X-CSRF-Token"), 2)
	assert.Len(t, getExtractors("form:a, header:B, cookie:c", "", ""), 2)
}

func TestTokenHandlerWithoutMiddleware(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, TokenPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(fiber.HeaderCacheControl))
}
