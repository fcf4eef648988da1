package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContext(t *testing.T) {
	tests := []struct {
		name   string
		ctx    func() context.Context
		wantOK bool
	}{
		{
			name: "identity present",
			ctx: func() context.Context {
				return WithIdentity(context.Background(), SessionIdentity{PrincipalID: "p1", Mail: "t@x.com", UserRole: "teacher"})
			},
			wantOK: true,
		},
		{
			name:   "empty context",
			ctx:    context.Background,
			wantOK: false,
		},
		{
			name: "wrong value type",
			ctx: func() context.Context {
				return context.WithValue(context.Background(), identityCtxKey, "p1")
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := IdentityFromContext(tt.ctx())
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "p1", id.ID())
				assert.Equal(t, "t@x.com", id.Email())
			}
		})
	}
}

func TestIdentityFromLocals(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := IdentityFromLocals(c, "")
		assert.False(t, ok)

		c.Locals("user", SessionIdentity{PrincipalID: "p1", UserRole: "admin"})
		id, ok := IdentityFromLocals(c, "")
		assert.True(t, ok)
		assert.Equal(t, "admin", id.Role())
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
