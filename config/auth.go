package config

import (
	"fmt"
	"strings"
	"time"
)

// KeycloakConfig contains identity provider connection configuration.
type KeycloakConfig struct {
	// BaseURL is the Keycloak root URL.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8081"`

	// Realm is the realm holding phone-keyed users.
	Realm string `env:"REALM" envDefault:"phonegate"`

	// ClientID and ClientSecret identify this service's confidential client.
	ClientID     string `env:"CLIENT_ID"            envDefault:"phonegate-api"`
	ClientSecret string `env:"CLIENT_SECRET,required"`

	// AdminUser and AdminPassword authenticate against the master realm
	// for user creation.
	AdminUser     string `env:"ADMIN_USER"             envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	// UserSecret is the shared placeholder credential stored on every
	// phone-keyed user. Never a real secret; the one-time code gate is the
	// actual authentication step.
	UserSecret string `env:"USER_SECRET" envDefault:"SMS_AUTH_ONLY"`

	// GuestUsername and GuestSecret identify the shared guest account.
	GuestUsername string `env:"GUEST_USERNAME" envDefault:"guest-user"`
	GuestSecret   string `env:"GUEST_SECRET"   envDefault:"GUEST_ACCESS"`

	// DiscoveryURL optionally points at the realm's OIDC discovery
	// document; when set the token endpoint is discovered instead of
	// derived from BaseURL and Realm.
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// Timeout bounds every IdP HTTP call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to Keycloak configuration values.
func (k *KeycloakConfig) Sanitize() {
	k.BaseURL = strings.TrimSuffix(strings.TrimSpace(k.BaseURL), "/")
	if k.Timeout < time.Second {
		k.Timeout = time.Second
	}
}

// CodeMode selects the one-time code verifier implementation.
type CodeMode string

const (
	// CodeModeStatic accepts a single preconfigured code (demo/dev only).
	CodeModeStatic CodeMode = "static"
	// CodeModeRedis issues random codes stored in Redis with a TTL.
	CodeModeRedis CodeMode = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for CodeMode.
func (m *CodeMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "static", "redis":
		*m = CodeMode(v)
		return nil
	default:
		return fmt.Errorf("invalid CodeMode: %q (valid options: static, redis)", v)
	}
}

// StaticCodeConfig controls the fixed-code verifier (mode=static).
type StaticCodeConfig struct {
	// Code is the single accepted login code.
	Code string `env:"CODE" envDefault:"123456"`

	// Phone optionally pins the accepted code to one phone number.
	Phone string `env:"PHONE"`
}

// CodeConfig groups one-time login code configuration.
type CodeConfig struct {
	// Mode determines which verifier backs the login flow.
	Mode CodeMode `env:"MODE" envDefault:"static"`

	// Static configuration (used when Mode=static).
	Static StaticCodeConfig `envPrefix:"STATIC_"`

	// TTL is how long an issued code stays valid (mode=redis).
	TTL time.Duration `env:"TTL" envDefault:"5m"`

	// KeyPrefix namespaces code keys in Redis (mode=redis).
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"otp:"`
}

// Sanitize applies guardrails to code configuration values.
func (c *CodeConfig) Sanitize() {
	if c.TTL < 30*time.Second {
		c.TTL = 30 * time.Second
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "otp:"
	}
}

// ClaimsConfig controls how roles and the subject are read out of bearer
// tokens. Paths are JMESPath expressions tried in order; the first that
// yields a string list wins.
type ClaimsConfig struct {
	RolePaths []string `env:"ROLE_PATHS" envSeparator:";" envDefault:"realm_access.roles;roles"`
	Subject   string   `env:"SUBJECT"    envDefault:"user_id"`
}

// Sanitize applies guardrails to claims configuration values.
func (c *ClaimsConfig) Sanitize() {
	if len(c.RolePaths) == 0 {
		c.RolePaths = []string{"realm_access.roles", "roles"}
	}
	if c.Subject == "" {
		c.Subject = "user_id"
	}
}
