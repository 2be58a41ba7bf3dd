package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Identity provider, one-time code, and claims configuration
//   - http.go: HTTP server configuration
//   - redis.go: Redis configuration
type AppConfig struct {
	// IsDev controls development mode behavior (looser defaults, verbose logs).
	IsDev bool `env:"DEV" envDefault:"false"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Keycloak connection configuration
	Keycloak KeycloakConfig `envPrefix:"KEYCLOAK_"`

	// One-time login code configuration
	Code CodeConfig `envPrefix:"CODE_"`

	// Bearer claim extraction configuration
	Claims ClaimsConfig `envPrefix:"CLAIMS_"`

	// Redis configuration (used when the code store mode is redis)
	Redis RedisConfig `envPrefix:"REDIS_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Keycloak.Sanitize()
	c.Code.Sanitize()
	c.Claims.Sanitize()
}
