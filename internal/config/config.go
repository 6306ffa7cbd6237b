// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

// Package config loads service configuration from defaults, an optional
// YAML file, and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values.
const (
	DefaultHTTPAddr    = "localhost:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
	DefaultAccessTTL   = 15 * time.Minute
	DefaultRefreshTTL  = 7 * 24 * time.Hour

	// DefaultPruneInterval is how often expired denylist rows are removed.
	DefaultPruneInterval = time.Hour
)

// TokenConfig configures the token issuer. Expiry durations and the signing
// secret are deployment configuration, not part of the core contract.
type TokenConfig struct {
	Secret     string        `koanf:"secret"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	// RevokeOnPasswordChange ends outstanding refresh sessions when an
	// account's password changes. Access tokens always run out their
	// natural expiry.
	RevokeOnPasswordChange bool `koanf:"revoke_on_password_change"`
	// PruneInterval is how often expired denylist rows are deleted.
	// Zero disables background pruning.
	PruneInterval time.Duration `koanf:"prune_interval"`
}

// TLSConfig configures HTTPS for the API listener. With Enabled set and no
// cert or key file, a self-signed development certificate is generated
// under the XDG certs directory.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// Config is the root service configuration.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	MetricsAddr string `koanf:"metrics_addr"` // empty = disabled
	DatabaseURL string `koanf:"database_url"`
	LogFormat   string `koanf:"log_format"`
	// AuthDisabled enables the development-mode auto-login bypass. It is
	// consumed exclusively by the HTTP layer at startup; core services
	// never read it. Must never be set in a production configuration.
	AuthDisabled bool        `koanf:"auth_disabled"`
	Token        TokenConfig `koanf:"token"`
	TLS          TLSConfig   `koanf:"tls"`
}

// Load builds a Config from defaults, then an optional YAML file, then
// flags. The DATABASE_URL environment variable fills the database URL when
// neither file nor flags set it.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		HTTPAddr:    DefaultHTTPAddr,
		MetricsAddr: DefaultMetricsAddr,
		LogFormat:   DefaultLogFormat,
		Token: TokenConfig{
			AccessTTL:     DefaultAccessTTL,
			RefreshTTL:    DefaultRefreshTTL,
			PruneInterval: DefaultPruneInterval,
		},
	}

	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", configFile).
				Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes (--http-addr); config keys use underscores.
		cb := func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, cb), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal config").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http_addr is required")
	}
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (set it in the config file, via --database-url, or DATABASE_URL)")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.Token.Secret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("token.secret is required")
	}
	if c.Token.AccessTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token.access_ttl must be positive")
	}
	if c.Token.RefreshTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token.refresh_ttl must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return oops.Code("CONFIG_INVALID").Errorf("token.refresh_ttl must exceed token.access_ttl")
	}
	if c.Token.PruneInterval < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token.prune_interval must not be negative")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return oops.Code("CONFIG_INVALID").Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}
