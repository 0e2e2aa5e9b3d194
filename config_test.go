package signin_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	signin "github.com/goliatone/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := signin.LoadConfig("", map[string]any{"signing_key": testSigningKey})
	require.NoError(t, err)

	assert.Equal(t, "jwt", cfg.GetContextKey())
	assert.Equal(t, 24, cfg.GetTokenExpiration())
	assert.Equal(t, 720, cfg.GetExtendedTokenDuration())
	assert.Equal(t, "go-signin", cfg.GetIssuer())
	assert.Equal(t, []string{"web"}, cfg.GetAudience())
	assert.Equal(t, signin.MaxLoginAttempts, cfg.Login.MaxAttempts)
	assert.Equal(t, signin.DefaultCodeTTL, cfg.TwoFactor.GetCodeTTL())
	assert.Equal(t, signin.DriverSQLite, cfg.Database.Driver)
	assert.Empty(t, cfg.Redis.Addr)
	assert.True(t, cfg.HTTP.SecureCookies)
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"signing_key": "file-signing-key-0123456789",
		"issuer": "file-issuer",
		"two_factor": {"code_ttl": "2m", "code_length": 8},
		"database": {"driver": "postgres", "dsn": "postgres://localhost/signin"},
		"redis": {"addr": "localhost:6379"}
	}`), 0o600))

	cfg, err := signin.LoadConfig(path, map[string]any{"issuer": "override-issuer"})
	require.NoError(t, err)

	assert.Equal(t, "file-signing-key-0123456789", cfg.GetSigningKey())
	assert.Equal(t, "override-issuer", cfg.GetIssuer())
	assert.Equal(t, 2*time.Minute, cfg.TwoFactor.GetCodeTTL())
	assert.Equal(t, 8, cfg.TwoFactor.CodeLength)
	assert.Equal(t, signin.DefaultMaxCodeAttempts, cfg.TwoFactor.MaxAttempts)
	assert.Equal(t, signin.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "signin:2fa", cfg.Redis.Prefix)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing signing key", map[string]any{}},
		{"short signing key", map[string]any{"signing_key": "short"}},
		{"bad driver", map[string]any{"signing_key": testSigningKey, "database.driver": "mongo"}},
		{"bad cool down", map[string]any{"signing_key": testSigningKey, "login.cool_down_period": "tomorrow"}},
		{"bad code ttl", map[string]any{"signing_key": testSigningKey, "two_factor.code_ttl": "later"}},
		{"code too short", map[string]any{"signing_key": testSigningKey, "two_factor.code_length": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signin.LoadConfig("", tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := signin.LoadConfig(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Error(t, err)
}

func TestTwoFactorConfig_GetCodeTTLFallback(t *testing.T) {
	assert.Equal(t, signin.DefaultCodeTTL, signin.TwoFactorConfig{CodeTTL: "bogus"}.GetCodeTTL())
}
