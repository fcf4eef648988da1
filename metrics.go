package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInactive           = "inactive"
	OutcomeLocked             = "locked"
	OutcomeNotFound           = "not_found"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeExpired            = "expired"
	OutcomeError              = "error"
	OutcomeSkipped            = "skipped"
)

// LoginAttempts counts logins by matched kind and outcome. Failed logins
// that matched no record use the kind "none".
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eduquiz_auth_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"kind", "outcome"},
)

// PasswordSets counts password set attempts through setup tokens.
var PasswordSets = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eduquiz_auth_password_set_total",
		Help: "Total number of token backed password set attempts",
	},
	[]string{"kind", "outcome"},
)

// SetupEmails counts account setup emails by delivery outcome.
var SetupEmails = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eduquiz_auth_setup_emails_total",
		Help: "Total number of account setup emails",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers the auth metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(PasswordSets)
	reg.MustRegister(SetupEmails)
}

func recordLogin(kind PrincipalKind, outcome string) {
	k := string(kind)
	if k == "" {
		k = "none"
	}
	LoginAttempts.WithLabelValues(k, outcome).Inc()
}

func recordPasswordSet(kind PrincipalKind, outcome string) {
	PasswordSets.WithLabelValues(string(kind), outcome).Inc()
}

func recordSetupEmail(outcome string) {
	SetupEmails.WithLabelValues(outcome).Inc()
}

// outcomeFor maps an error of this package to its metric label
func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case HasTextCode(err, TextCodeInvalidInput), HasTextCode(err, TextCodeInvalidRequest):
		return OutcomeInvalidInput
	case IsInvalidCredentials(err):
		return OutcomeInvalidCredentials
	case IsAccountInactive(err):
		return OutcomeInactive
	case HasTextCode(err, ErrAccountLocked.TextCode):
		return OutcomeLocked
	case IsTokenNotFound(err):
		return OutcomeNotFound
	case IsTokenInvalid(err):
		return OutcomeInvalidToken
	case IsTokenExpired(err):
		return OutcomeExpired
	default:
		return OutcomeError
	}
}
