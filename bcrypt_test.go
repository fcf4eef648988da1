package auth_test

import (
	"testing"

	auth "github.com/eduquiz/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "setup form password", password: "P@ssw0rd1"},
		{name: "seeded admin password", password: "Admin@123"},
		{name: "unicode", password: "contraseña-ñ1!"},
		// bcrypt itself accepts an empty input
		{name: "empty", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := auth.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, "EMPTY_PASSWORD_NOT_ALLOWED", auth.ErrorKind(err))
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)

			err = auth.ComparePasswordAndHash(tt.password, hash)
			assert.NoError(t, err)
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "Admin@123"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{name: "match", password: password, hash: hash},
		{name: "case differs", password: "admin@123", hash: hash, wantErr: true},
		{name: "empty password", password: "", hash: hash, wantErr: true},
		{name: "not a bcrypt hash", password: password, hash: "invalidhash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ComparePasswordAndHash(tt.password, tt.hash)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.hash == hash {
					assert.True(t, auth.IsInvalidCredentials(err))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRandomPasswordHash(t *testing.T) {
	hash1, err := auth.RandomPasswordHash()
	require.NoError(t, err)
	hash2, err := auth.RandomPasswordHash()
	require.NoError(t, err)

	assert.NotEmpty(t, hash1)
	assert.NotEmpty(t, hash2)
	assert.NotEqual(t, hash1, hash2)
}

func TestBcryptHasher(t *testing.T) {
	var hasher auth.PasswordAuthenticator = auth.BcryptHasher{}

	hash, err := hasher.HashPassword("P@ssw0rd1")
	require.NoError(t, err)

	assert.NoError(t, hasher.ComparePasswordAndHash("P@ssw0rd1", hash))
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("P@ssw0rd2", hash), auth.ErrMismatchedHashAndPassword)
}
