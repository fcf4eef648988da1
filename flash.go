package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
)

const (
	flashCookieName = "eduquiz_flash"
	flashTTL        = time.Minute
	flashKeyContext = "eduquiz-flash:"
)

// Flash carries one-shot messages across a redirect
type Flash struct {
	Success   string `json:"success,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Error     string `json:"error,omitempty"`
	SetupLink string `json:"setup_link,omitempty"`
}

func (f Flash) IsZero() bool {
	return f == Flash{}
}

// FlashCookies reads and writes the flash cookie. The value is AES-GCM
// sealed, so a setup link carried in it is neither readable nor forgeable
// by the client.
type FlashCookies struct {
	key    string
	secure bool
}

// NewFlashCookies derives the cookie key from secret
func NewFlashCookies(secret string, secure bool) *FlashCookies {
	sum := sha256.Sum256([]byte(flashKeyContext + secret))
	return &FlashCookies{
		key:    base64.StdEncoding.EncodeToString(sum[:]),
		secure: secure,
	}
}

// Set stores f for the next request
func (fc *FlashCookies) Set(c *fiber.Ctx, f Flash) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	sealed, err := encryptcookie.EncryptCookie(string(raw), fc.key)
	if err != nil {
		return err
	}
	fc.write(c, sealed, time.Now().Add(flashTTL))
	return nil
}

// Consume returns the pending flash and clears it. A cookie that does not
// open with the current key reads as empty.
func (fc *FlashCookies) Consume(c *fiber.Ctx) Flash {
	value := c.Cookies(flashCookieName)
	if value == "" {
		return Flash{}
	}
	fc.write(c, "", time.Now().Add(-time.Hour))

	raw, err := encryptcookie.DecryptCookie(value, fc.key)
	if err != nil {
		return Flash{}
	}
	var f Flash
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Flash{}
	}
	return f
}

func (fc *FlashCookies) write(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   fc.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
