package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KEYCLOAK_CLIENT_SECRET", "secret")
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", "admin-pass")
}

func TestAppConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "*", cfg.HTTP.CORSAllowOrigin)
	assert.Equal(t, "phonegate", cfg.Keycloak.Realm)
	assert.Equal(t, "SMS_AUTH_ONLY", cfg.Keycloak.UserSecret)
	assert.Equal(t, "guest-user", cfg.Keycloak.GuestUsername)
	assert.Equal(t, "GUEST_ACCESS", cfg.Keycloak.GuestSecret)
	assert.Equal(t, CodeModeStatic, cfg.Code.Mode)
	assert.Equal(t, "123456", cfg.Code.Static.Code)
	assert.Equal(t, []string{"realm_access.roles", "roles"}, cfg.Claims.RolePaths)
	assert.Equal(t, "user_id", cfg.Claims.Subject)
}

func TestAppConfig_MissingRequiredSecrets(t *testing.T) {
	t.Setenv("KEYCLOAK_CLIENT_SECRET", "")
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", "")

	var cfg AppConfig
	err := env.Parse(&cfg)
	assert.Error(t, err)
}

func TestKeycloakConfig_SanitizeTrimsBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KEYCLOAK_BASE_URL", " http://keycloak:8080/ ")
	t.Setenv("KEYCLOAK_TIMEOUT", "1ms")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "http://keycloak:8080", cfg.Keycloak.BaseURL)
	assert.Equal(t, time.Second, cfg.Keycloak.Timeout, "timeout clamped to a sane floor")
}

func TestCodeMode_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    CodeMode
		wantErr bool
	}{
		{in: "static", want: CodeModeStatic},
		{in: "REDIS", want: CodeModeRedis},
		{in: "sms", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var m CodeMode
			err := m.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestCodeConfig_RedisMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CODE_MODE", "redis")
	t.Setenv("CODE_TTL", "2s")
	t.Setenv("CODE_KEY_PREFIX", "")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, CodeModeRedis, cfg.Code.Mode)
	assert.Equal(t, 30*time.Second, cfg.Code.TTL, "TTL clamped to floor")
	assert.Equal(t, "otp:", cfg.Code.KeyPrefix)
}

func TestClaimsConfig_CustomPaths(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLAIMS_ROLE_PATHS", "resource_access.api.roles;roles")
	t.Setenv("CLAIMS_SUBJECT", "sub")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, []string{"resource_access.api.roles", "roles"}, cfg.Claims.RolePaths)
	assert.Equal(t, "sub", cfg.Claims.Subject)
}
