package auth

import (
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Setup link paths. They keep the capitalised form of the emails already sent.
const (
	TeacherSetupPath = "/Account/SetPassword"
	StudentSetupPath = "/Account/SetStudentPassword"
)

// SetupPath returns the set-password path for kind. Admins are seeded with a
// password and have no setup path.
func SetupPath(kind PrincipalKind) (string, bool) {
	switch kind {
	case KindTeacher:
		return TeacherSetupPath, true
	case KindStudent:
		return StudentSetupPath, true
	default:
		return "", false
	}
}

// BuildSetupURL returns {baseURL}{path}?token=..&email=.. with both values
// query escaped.
func BuildSetupURL(baseURL string, kind PrincipalKind, email, token string) (string, error) {
	path, ok := SetupPath(kind)
	if !ok {
		return "", ErrUnknownKind.Clone().WithMetadata(map[string]any{"kind": string(kind)})
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" {
		if _, err := url.Parse(base); err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid base url")
		}
	}

	return base + path + "?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email), nil
}
