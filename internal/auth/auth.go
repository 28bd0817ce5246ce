// Package auth provides optional bearer-token authentication for the API.
// When disabled (the default, matching single-tenant deployments) every
// request passes through; when enabled, tokens are validated as HMAC-signed
// JWTs.
package auth

import (
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Config configures API authentication.
type Config struct {
	// Enabled controls whether bearer tokens are required.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Secret is the HMAC signing key. Required when Enabled.
	Secret string `yaml:"secret" mapstructure:"secret"`
	// Issuer, when set, must match the token's "iss" claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
	// Leeway tolerates clock skew when checking expiry.
	Leeway time.Duration `yaml:"leeway" mapstructure:"leeway"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Enabled && c.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	return nil
}

// Validator validates bearer tokens.
type Validator struct {
	cfg Config
}

// NewValidator creates a token validator from config.
func NewValidator(cfg Config) *Validator {
	cfg.ApplyDefaults()
	return &Validator{cfg: cfg}
}

// ValidateToken parses and verifies an HMAC-signed JWT, returning its claims.
func (v *Validator) ValidateToken(token string) (map[string]interface{}, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		gojwt.WithLeeway(v.cfg.Leeway),
		gojwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.cfg.Issuer))
	}

	parsed, err := gojwt.Parse(token, func(t *gojwt.Token) (interface{}, error) {
		return []byte(v.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation: %w", err)
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	return claims, nil
}
