package csrf

import "github.com/gofiber/fiber/v2"

// TokenPath serves the current token to script clients
const TokenPath = "/csrf"

const tokenCacheControl = "no-store, max-age=0"

// RegisterRoutes mounts GET TokenPath on r. The middleware must run before
// it so that a token exists for the request.
func RegisterRoutes(r fiber.Router) {
	r.Get(TokenPath, TokenHandler(DefaultContextKey)).Name("csrf.get")
}

// TokenHandler answers with the token stored under contextKey along with the
// form field and header it is accepted from.
func TokenHandler(contextKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := Token(c, contextKey)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": ErrTokenMissing.Error()})
		}

		field, _ := c.Locals(contextKey + "_field").(string)
		header, _ := c.Locals(contextKey + "_header").(string)

		c.Set(fiber.HeaderCacheControl, tokenCacheControl)
		return c.JSON(fiber.Map{
			"token":       token,
			"field_name":  firstOr(field, DefaultFormFieldName),
			"header_name": firstOr(header, DefaultHeaderName),
		})
	}
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
