package auth_test

import (
	"testing"
	"time"

	auth "github.com/eduquiz/go-auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity() auth.SessionIdentity {
	return auth.SessionIdentity{
		PrincipalID: uuid.NewString(),
		Mail:        "t@x.com",
		UserRole:    string(auth.RoleTeacher),
	}
}

func TestSessionIssuer_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	issuer := auth.NewSessionIssuer(newTestConfig()).WithClock(fixedClock(now))
	id := testIdentity()

	token, err := issuer.IssueSession(id)
	require.NoError(t, err)

	claims, err := issuer.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, id.PrincipalID, claims.PrincipalID())
	assert.Equal(t, id.PrincipalID, claims.Subject)
	assert.Equal(t, "t@x.com", claims.Email)
	assert.True(t, claims.HasRole(string(auth.RoleTeacher)))
	assert.False(t, claims.HasRole(string(auth.RoleAdmin)))
	assert.True(t, claims.HasAnyRole(string(auth.RoleAdmin), string(auth.RoleTeacher)))
	assert.Equal(t, "eduquiz", claims.Issuer)
	assert.WithinDuration(t, now, claims.Issued(), time.Second)
	assert.WithinDuration(t, now.Add(24*time.Hour), claims.Expires(), time.Second)

	kind, ok := claims.Kind()
	require.True(t, ok)
	assert.Equal(t, auth.KindTeacher, kind)

	resolved, err := issuer.ResolveIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
}

func TestSessionIssuer_Expiration(t *testing.T) {
	cfg := newTestConfig()
	cfg.expiration = 0
	assert.Equal(t, 24*time.Hour, auth.NewSessionIssuer(cfg).Expiration())

	cfg.expiration = 2
	assert.Equal(t, 2*time.Hour, auth.NewSessionIssuer(cfg).Expiration())
}

func TestSessionIssuer_Rejects(t *testing.T) {
	now := time.Now()
	issuer := auth.NewSessionIssuer(newTestConfig()).WithClock(fixedClock(now))

	token, err := issuer.IssueSession(testIdentity())
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := issuer.ParseSession("")
		assert.Equal(t, auth.ErrUnableToFindSession.TextCode, auth.ErrorKind(err))
	})

	t.Run("expired", func(t *testing.T) {
		later := auth.NewSessionIssuer(newTestConfig()).WithClock(fixedClock(now.Add(25 * time.Hour)))
		_, err := later.ParseSession(token)
		assert.Equal(t, auth.TextCodeSessionExpired, auth.ErrorKind(err))
	})

	t.Run("other key", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.signingKey = "another-signing-key-with-at-least-32-bytes"
		_, err := auth.NewSessionIssuer(cfg).WithClock(fixedClock(now)).ParseSession(token)
		assert.Equal(t, auth.ErrSessionMalformed.TextCode, auth.ErrorKind(err))
	})

	t.Run("other audience", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.audience = []string{"someone-else"}
		_, err := auth.NewSessionIssuer(cfg).WithClock(fixedClock(now)).ParseSession(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.ParseSession("not.a.jwt")
		assert.Equal(t, auth.ErrSessionMalformed.TextCode, auth.ErrorKind(err))
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &auth.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Issuer:    "eduquiz",
				Audience:  jwt.ClaimStrings{"eduquiz"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Email:    "a@x.com",
			UserRole: string(auth.RoleAdmin),
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.ParseSession(unsigned)
		assert.Error(t, err)
	})
}

func TestSessionIssuer_RequiresIdentity(t *testing.T) {
	issuer := auth.NewSessionIssuer(newTestConfig())

	_, err := issuer.IssueSession(nil)
	assert.Error(t, err)

	_, err = issuer.IssueSession(auth.SessionIdentity{})
	assert.Error(t, err)
}

func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name    string
		claims  *auth.SessionClaims
		wantErr bool
	}{
		{name: "nil", claims: nil, wantErr: true},
		{name: "missing email", claims: &auth.SessionClaims{PID: "1", UserRole: "admin"}, wantErr: true},
		{name: "unknown role", claims: &auth.SessionClaims{PID: "1", Email: "a@x.com", UserRole: "janitor"}, wantErr: true},
		{name: "subject fallback", claims: &auth.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
			Email:            "a@x.com",
			UserRole:         "student",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := auth.IdentityFromClaims(tt.claims)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "7", id.ID())
			kind, ok := id.Kind()
			assert.True(t, ok)
			assert.Equal(t, auth.KindStudent, kind)
		})
	}
}
