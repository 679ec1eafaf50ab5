package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "OT2NET_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	RBAC     RBACConfig     `koanf:"rbac"`
}

type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port" validate:"min=1,max=65535"`
	CORSOrigins    []string `koanf:"corsorigins"`
	RateLimit      int      `koanf:"ratelimit" validate:"min=0"`
	RateWindowSecs int      `koanf:"ratewindowsecs" validate:"min=1"`
	Development    bool     `koanf:"development"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"maxconns" validate:"min=1"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// AuthConfig selects how bearer tokens are verified: "jwt" for HS256
// Supabase-style tokens, "oidc" for Firebase ID tokens.
type AuthConfig struct {
	Mode        string     `koanf:"mode" validate:"oneof=jwt oidc"`
	DefaultRole string     `koanf:"defaultrole" validate:"required"`
	JWT         JWTConfig  `koanf:"jwt"`
	OIDC        OIDCConfig `koanf:"oidc"`
}

type JWTConfig struct {
	Secret      string `koanf:"secret"`
	Issuer      string `koanf:"issuer"`
	ExpiryHours int    `koanf:"expiryhours" validate:"min=1"`
}

type OIDCConfig struct {
	IssuerURL string `koanf:"issuerurl" validate:"omitempty,url"`
	ClientID  string `koanf:"clientid"`
}

type RBACConfig struct {
	VerboseDenials bool   `koanf:"verbosedenials"`
	Locale         string `koanf:"locale" validate:"oneof=pt-BR en"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.host":           "0.0.0.0",
		"server.port":           3001,
		"server.corsorigins":    []string{"http://localhost:3000", "https://ot2net.ness.com.br"},
		"server.ratelimit":      100,
		"server.ratewindowsecs": 900,
		"server.development":    false,
		"database.maxconns":     25,
		"log.level":             "info",
		"log.format":            "json",
		"auth.mode":             "jwt",
		"auth.defaultrole":      "VISUALIZADOR",
		"auth.jwt.issuer":       "ot2net",
		"auth.jwt.expiryhours":  24,
		"rbac.verbosedenials":   false,
		"rbac.locale":           "pt-BR",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// OT2NET_SERVER_PORT -> server.port
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules of the auth
// section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Auth.Mode {
	case "jwt":
		if len(c.Auth.JWT.Secret) > 0 && len(c.Auth.JWT.Secret) < 32 {
			return fmt.Errorf("invalid config: auth.jwt.secret must be at least 32 characters")
		}
	case "oidc":
		if c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("invalid config: auth.oidc.issuerurl and auth.oidc.clientid are required in oidc mode")
		}
	}
	return nil
}
