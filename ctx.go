package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity stores the session identity in ctx
func WithIdentity(ctx context.Context, id SessionIdentity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

// IdentityFromContext returns the identity stored by WithIdentity
func IdentityFromContext(ctx context.Context) (SessionIdentity, bool) {
	if ctx == nil {
		return SessionIdentity{}, false
	}
	id, ok := ctx.Value(identityCtxKey).(SessionIdentity)
	return id, ok
}

// IdentityFromLocals returns the identity the session middleware stored
// under key. An empty key reads "user".
func IdentityFromLocals(c *fiber.Ctx, key string) (SessionIdentity, bool) {
	if key == "" {
		key = "user"
	}
	id, ok := c.Locals(key).(SessionIdentity)
	return id, ok
}
