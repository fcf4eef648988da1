package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput       = "INVALID_INPUT"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountInactive    = "ACCOUNT_INACTIVE"
	TextCodeAccountLocked      = "ACCOUNT_LOCKED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD_NOT_ALLOWED"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
	TextCodeSessionMalformed   = "SESSION_MALFORMED"
	TextCodeValidation         = "VALIDATION_FAILED"

	TextCodeInvalidRequest     = "INVALID_REQUEST"
	TextCodeTokenNotFound      = "TOKEN_NOT_FOUND"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodePrincipalNotFound  = "PRINCIPAL_NOT_FOUND"
	TextCodeWeakPassword       = "WEAK_PASSWORD"
	TextCodeUnknownKind        = "UNKNOWN_PRINCIPAL_KIND"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
)

// Login failures

var ErrInvalidInput = goerrors.New("Email and password are required", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned for an unknown email and for a wrong
// password alike.
var ErrInvalidCredentials = goerrors.New("Invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

var ErrAccountInactive = goerrors.New("Your account is not active.", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

var ErrAccountLocked = goerrors.New("too many failed login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(http.StatusTooManyRequests)

// Token failures

var ErrInvalidRequest = goerrors.New("Invalid request", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

var ErrTokenNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrTokenInvalid = goerrors.New("Invalid or expired token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

var ErrTokenExpired = goerrors.New("Invalid or expired token", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// Store and provisioning failures

var ErrPrincipalNotFound = goerrors.New("principal not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodePrincipalNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrEmailTaken = goerrors.New("Email already exists.", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

var ErrUnknownKind = goerrors.New("unknown principal kind", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnknownKind).
	WithCode(goerrors.CodeBadRequest)

var ErrWeakPassword = goerrors.New("password does not meet the password policy", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// Session failures

var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrorKind returns the text code of err, which is one of the TextCode
// constants for every failure produced by this package. Errors that did not
// originate here report an empty string.
func ErrorKind(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	return err != nil && ErrorKind(err) == code
}

func IsInvalidCredentials(err error) bool {
	return HasTextCode(err, TextCodeInvalidCredentials)
}

func IsAccountInactive(err error) bool {
	return HasTextCode(err, TextCodeAccountInactive)
}

func IsTokenNotFound(err error) bool {
	return HasTextCode(err, TextCodeTokenNotFound)
}

func IsTokenInvalid(err error) bool {
	return HasTextCode(err, TextCodeTokenInvalid)
}

func IsTokenExpired(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

func IsPrincipalNotFound(err error) bool {
	return HasTextCode(err, TextCodePrincipalNotFound)
}

// inactiveError tags ErrAccountInactive with the kind so the HTTP layer can
// pick its wording.
func inactiveError(kind PrincipalKind) error {
	return ErrAccountInactive.Clone().WithMetadata(map[string]any{
		"kind": string(kind),
	})
}

// InactiveKind returns the kind attached to an inactive-account error
func InactiveKind(err error) (PrincipalKind, bool) {
	if !IsAccountInactive(err) {
		return "", false
	}
	return ErrorPrincipalKind(err)
}

// ErrorPrincipalKind returns the principal kind an error was tagged with
func ErrorPrincipalKind(err error) (PrincipalKind, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}
	kind, ok := richErr.Metadata["kind"].(string)
	if !ok {
		return "", false
	}
	return ParsePrincipalKind(kind)
}

func tokenNotFoundError(kind PrincipalKind) error {
	return ErrTokenNotFound.Clone().WithMetadata(map[string]any{
		"kind": string(kind),
	})
}

// validationError converts ozzo validation errors and keeps the per-field
// messages under the "violations" metadata key.
func validationError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"violations": err.Error(),
		})
}
