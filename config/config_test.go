package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24, cfg.GetTokenExpiration())
	assert.Equal(t, "eduquiz_session", cfg.GetContextKey())
	assert.Equal(t, []string{"eduquiz"}, cfg.GetAudience())
	assert.False(t, cfg.GetPasswordPolicy())
	assert.Zero(t, cfg.GetLockoutAttempts())
	assert.Equal(t, 15*time.Minute, cfg.GetLockoutWindow())
	assert.Equal(t, auth.DefaultAdminEmail, cfg.Seed.AdminEmail)
	assert.Equal(t, "console", cfg.Mail.Driver)
	assert.True(t, cfg.UsesDevSigningKey())
	assert.GreaterOrEqual(t, len(cfg.CSRFSecret()), 32)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eduquiz.yaml")
	yaml := `
server:
  base_url: https://file.example.com
  addr: ":9000"
auth:
  signing_key: file-signing-key-with-at-least-32-bytes
  password_policy: true
  lockout_attempts: 5
  lockout_window: 10m
mail:
  driver: smtp
  smtp:
    host: smtp.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("EDUQUIZ_SERVER__BASE_URL", "https://env.example.com")
	t.Setenv("EDUQUIZ_MAIL__SMTP__PORT", "2525")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.addr", ":8080", "listen address")
	require.NoError(t, flags.Parse([]string{"--server.addr=:7000"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.GetBaseURL())
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "file-signing-key-with-at-least-32-bytes", cfg.GetSigningKey())
	assert.False(t, cfg.UsesDevSigningKey())
	assert.True(t, cfg.GetPasswordPolicy())
	assert.Equal(t, 5, cfg.GetLockoutAttempts())
	assert.Equal(t, 10*time.Minute, cfg.GetLockoutWindow())
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTP.Host)
	assert.Equal(t, 2525, cfg.Mail.SMTP.Port)
}

func TestLoad_UnchangedFlagKeepsFileValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eduquiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.addr", ":8080", "listen address")
	require.NoError(t, flags.Parse(nil))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short signing key", env: map[string]string{"EDUQUIZ_AUTH__SIGNING_KEY": "short"}},
		{name: "unknown driver", env: map[string]string{"EDUQUIZ_DATABASE__DRIVER": "mysql"}},
		{name: "postgres without dsn", env: map[string]string{"EDUQUIZ_DATABASE__DRIVER": "postgres", "EDUQUIZ_DATABASE__DSN": ""}},
		{name: "smtp without host", env: map[string]string{"EDUQUIZ_MAIL__DRIVER": "smtp"}},
		{name: "sendgrid without key", env: map[string]string{"EDUQUIZ_MAIL__DRIVER": "sendgrid"}},
		{name: "bad from email", env: map[string]string{"EDUQUIZ_MAIL__FROM_EMAIL": "not-an-email"}},
		{name: "bad base url", env: map[string]string{"EDUQUIZ_SERVER__BASE_URL": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("", nil)
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
