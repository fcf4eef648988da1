package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// PasswordPolicy validates a new password before it is hashed
type PasswordPolicy interface {
	Validate(password string) error
}

// PasswordPolicyFunc adapts a function to PasswordPolicy
type PasswordPolicyFunc func(password string) error

func (f PasswordPolicyFunc) Validate(password string) error {
	return f(password)
}

// MinPasswordLength is the shortest password StrongPasswordPolicy accepts
const MinPasswordLength = 8

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// StrongPasswordPolicy requires eight characters with an upper case letter,
// a lower case letter, a digit and a special character.
type StrongPasswordPolicy struct{}

func (StrongPasswordPolicy) Validate(password string) error {
	err := validation.Errors{
		"password": validation.Validate(password,
			validation.Required,
			validation.RuneLength(MinPasswordLength, 0).Error("must be at least 8 characters"),
			validation.Match(upperRe).Error("must contain an uppercase letter"),
			validation.Match(lowerRe).Error("must contain a lowercase letter"),
			validation.Match(digitRe).Error("must contain a number"),
			validation.Match(specialRe).Error("must contain a special character"),
		),
	}.Filter()
	if err == nil {
		return nil
	}

	weak := validationError(err, ErrWeakPassword.Message)
	weak.TextCode = ErrWeakPassword.TextCode
	weak.Code = ErrWeakPassword.Code
	return weak
}

// acceptAnyPassword only rejects empty passwords
type acceptAnyPassword struct{}

func (acceptAnyPassword) Validate(password string) error {
	if password == "" {
		return ErrInvalidRequest
	}
	return nil
}

// PolicyFromConfig returns StrongPasswordPolicy when enabled and a policy
// that only rejects empty passwords otherwise.
func PolicyFromConfig(enabled bool) PasswordPolicy {
	if enabled {
		return StrongPasswordPolicy{}
	}
	return acceptAnyPassword{}
}
