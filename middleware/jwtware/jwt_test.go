package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduquiz/go-auth/middleware/jwtware"
)

type testClaims struct {
	id, email, role string
}

func (c testClaims) ID() string    { return c.id }
func (c testClaims) Email() string { return c.email }
func (c testClaims) Role() string  { return c.role }

type ctxKey struct{}

var errBadToken = errors.New("bad token")

// validator accepts "good-<role>" tokens
func validator() jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
		switch raw {
		case "good-teacher":
			return testClaims{id: "t1", email: "t@x.com", role: "teacher"}, nil
		case "good-admin":
			return testClaims{id: "a1", email: "a@x.com", role: "admin"}, nil
		default:
			return nil, errBadToken
		}
	})
}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/protected", jwtware.New(cfg), func(c *fiber.Ctx) error {
		claims, _ := c.Locals("user").(jwtware.Claims)
		if claims == nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		suffix := ""
		if v, ok := c.UserContext().Value(ctxKey{}).(string); ok {
			suffix = ":" + v
		}
		return c.SendString(claims.Email() + suffix)
	})
	return app
}

func body(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestJWTWare_Extraction(t *testing.T) {
	tests := []struct {
		name       string
		lookup     string
		setup      func(req *httptestRequest)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bearer header",
			setup:      func(r *httptestRequest) { r.header("Authorization", "Bearer good-teacher") },
			wantStatus: fiber.StatusOK,
			wantBody:   "t@x.com",
		},
		{
			name:       "missing header",
			setup:      func(r *httptestRequest) {},
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "wrong scheme",
			setup:      func(r *httptestRequest) { r.header("Authorization", "Basic good-teacher") },
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "cookie",
			lookup:     "cookie:session",
			setup:      func(r *httptestRequest) { r.header("Cookie", "session=good-teacher") },
			wantStatus: fiber.StatusOK,
			wantBody:   "t@x.com",
		},
		{
			name:       "cookie then header fallback",
			lookup:     "cookie:session,header:Authorization",
			setup:      func(r *httptestRequest) { r.header("Authorization", "Bearer good-admin") },
			wantStatus: fiber.StatusOK,
			wantBody:   "a@x.com",
		},
		{
			name:       "query",
			lookup:     "query:token",
			setup:      func(r *httptestRequest) { r.path = "/protected?token=good-teacher" },
			wantStatus: fiber.StatusOK,
			wantBody:   "t@x.com",
		},
		{
			name:       "invalid token",
			lookup:     "cookie:session",
			setup:      func(r *httptestRequest) { r.header("Cookie", "session=forged") },
			wantStatus: fiber.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(jwtware.Config{
				TokenValidator: validator(),
				TokenLookup:    tt.lookup,
			})

			req := &httptestRequest{path: "/protected", headers: map[string]string{}}
			tt.setup(req)

			resp, err := app.Test(req.build())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body(t, resp.Body))
			}
		})
	}
}

func TestJWTWare_AllowedRoles(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		AllowedRoles:   []string{"admin"},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "session=good-teacher")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "session=good-admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTWare_ErrorHandlerReceivesCause(t *testing.T) {
	var got error
	app := newApp(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		AllowedRoles:   []string{"admin"},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			got = err
			return c.SendStatus(fiber.StatusTeapot)
		},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "session=good-teacher")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.ErrorIs(t, got, jwtware.ErrRoleNotAllowed)
}

func TestJWTWare_ListenersAndEnricher(t *testing.T) {
	var seen []string
	app := newApp(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(c *fiber.Ctx, claims jwtware.Claims) error {
				seen = append(seen, claims.ID())
				return nil
			},
		},
		ContextEnricher: func(ctx context.Context, claims jwtware.Claims) context.Context {
			return context.WithValue(ctx, ctxKey{}, claims.Role())
		},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "session=good-teacher")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "t@x.com:teacher", body(t, resp.Body))
	assert.Equal(t, []string{"t1"}, seen)
}

func TestJWTWare_ListenerRejects(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(),
		TokenLookup:    "cookie:session",
		ValidationListeners: []jwtware.ValidationListener{
			func(c *fiber.Ctx, claims jwtware.Claims) error {
				return errors.New("revoked")
			},
		},
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Cookie", "session=good-teacher")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTWare_Filter(t *testing.T) {
	app := fiber.New()
	app.Get("/open", jwtware.New(jwtware.Config{
		TokenValidator: validator(),
		Filter:         func(c *fiber.Ctx) bool { return true },
	}), func(c *fiber.Ctx) error {
		return c.SendString("open")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/open", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetDefaultConfig_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.GetDefaultConfig(jwtware.Config{})
	})
}

func TestGetExtractors(t *testing.T) {
	assert.Len(t, jwtware.GetExtractors("header:Authorization,cookie:jwt,query:t,param:id"), 4)
	assert.Len(t, jwtware.GetExtractors("bogus,unknown:x"), 0)
}

type httptestRequest struct {
	path    string
	headers map[string]string
}

func (r *httptestRequest) header(k, v string) {
	r.headers[k] = v
}

func (r *httptestRequest) build() *http.Request {
	req := httptest.NewRequest("GET", r.path, nil)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	return req
}
