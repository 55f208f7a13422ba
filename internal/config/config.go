// Package config handles application configuration via environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the credential bridge.
type Config struct {
	// Server settings
	Host string `env:"BRIDGE_HOST" env-default:"0.0.0.0"`
	Port int    `env:"BRIDGE_PORT" env-default:"8080"`

	// Remote provider settings
	Region        string `env:"COGNITO_REGION"`
	Profile       string `env:"COGNITO_PROFILE"`
	ClientID      string `env:"COGNITO_CLIENT_ID"`
	UserPoolID    string `env:"COGNITO_USER_POOL_ID"`
	CognitoDomain string `env:"COGNITO_DOMAIN"`
	CallbackURL   string `env:"COGNITO_CALLBACK_URL"`

	// Token verification settings. Issuer and JWKSURL are derived from
	// region and user pool when left empty.
	Issuer  string        `env:"COGNITO_ISSUER"`
	JWKSURL string        `env:"COGNITO_JWKS_URL"`
	Leeway  time.Duration `env:"BRIDGE_CLOCK_LEEWAY" env-default:"60s"`

	// Feature flags
	JWTEnabled          bool `env:"BRIDGE_JWT_ENABLED" env-default:"true"`
	SAMLEnabled         bool `env:"BRIDGE_SAML_ENABLED" env-default:"false"`
	AutoCreateUser      bool `env:"BRIDGE_AUTO_CREATE_USER" env-default:"false"`
	RequireUserPassword bool `env:"BRIDGE_REQUIRE_USER_PASSWORD" env-default:"false"`

	// Local user store
	DataDir string `env:"BRIDGE_DATA_DIR" env-default:"./data"`

	// Outbound call bounds
	FetchTimeout time.Duration `env:"BRIDGE_FETCH_TIMEOUT" env-default:"10s"`

	// Rate limiting (requests per minute per IP on credential endpoints)
	CredentialRateLimit int `env:"BRIDGE_CREDENTIAL_RATE_LIMIT" env-default:"10"`

	// Logging
	LogLevel  string `env:"BRIDGE_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"BRIDGE_LOG_FORMAT" env-default:"json"` // json or text
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Issuer == "" && cfg.Region != "" && cfg.UserPoolID != "" {
		cfg.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", cfg.Region, cfg.UserPoolID)
	}
	if cfg.JWKSURL == "" && cfg.Issuer != "" {
		cfg.JWKSURL = cfg.Issuer + "/.well-known/jwks.json"
	}

	if cfg.JWTEnabled && cfg.JWKSURL == "" {
		return nil, fmt.Errorf("COGNITO_JWKS_URL or COGNITO_REGION and COGNITO_USER_POOL_ID are required when JWT verification is enabled")
	}
	// An empty issuer would skip the iss claim check entirely.
	if cfg.JWTEnabled && cfg.Issuer == "" {
		return nil, fmt.Errorf("COGNITO_ISSUER or COGNITO_REGION and COGNITO_USER_POOL_ID are required when JWT verification is enabled")
	}

	return &cfg, nil
}

// Addr returns the server address in host:port format.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
