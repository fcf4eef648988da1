package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// SetupTokenBytes is the entropy of a setup token, 256 bits
	SetupTokenBytes = 32
	// TokenValidity is how long a setup token can be used after issuance
	TokenValidity = 24 * time.Hour
)

// TokenIssuer generates single use account setup tokens
type TokenIssuer struct {
	now      func() time.Time
	random   io.Reader
	validity time.Duration
}

// TokenIssuerOption customizes a TokenIssuer
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock injects the clock used to compute expiry
func WithTokenClock(now func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if now != nil {
			ti.now = now
		}
	}
}

// WithTokenRandom replaces the entropy source
func WithTokenRandom(r io.Reader) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if r != nil {
			ti.random = r
		}
	}
}

// WithTokenValidity overrides the 24 hour validity window
func WithTokenValidity(d time.Duration) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if d > 0 {
			ti.validity = d
		}
	}
}

func NewTokenIssuer(opts ...TokenIssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		now:      time.Now,
		random:   rand.Reader,
		validity: TokenValidity,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti
}

// IssueToken returns a URL safe token and its expiry. Nothing is persisted.
func (ti *TokenIssuer) IssueToken() (string, time.Time, error) {
	b := make([]byte, SetupTokenBytes)
	if _, err := io.ReadFull(ti.random, b); err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token entropy")
	}
	return base64.RawURLEncoding.EncodeToString(b), ti.now().Add(ti.validity), nil
}

// Validity is the configured token lifetime
func (ti *TokenIssuer) Validity() time.Duration {
	return ti.validity
}

// DigestToken is the form a token is stored in
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares a presented token with a stored digest in constant time
func TokenMatches(presented, storedDigest string) bool {
	if presented == "" || storedDigest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(DigestToken(presented)), []byte(storedDigest)) == 1
}
