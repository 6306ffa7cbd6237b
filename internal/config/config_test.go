// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianid/veridian/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func serveFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", config.DefaultHTTPAddr, "")
	flags.String("metrics-addr", config.DefaultMetricsAddr, "")
	flags.String("database-url", "", "")
	flags.String("log-format", config.DefaultLogFormat, "")
	flags.Bool("auth-disabled", false, "")
	flags.String("token.secret", "", "")
	flags.Duration("token.access-ttl", config.DefaultAccessTTL, "")
	flags.Duration("token.refresh-ttl", config.DefaultRefreshTTL, "")
	flags.Bool("token.revoke-on-password-change", false, "")
	flags.Duration("token.prune-interval", config.DefaultPruneInterval, "")
	flags.Bool("tls.enabled", false, "")
	flags.String("tls.cert-file", "", "")
	flags.String("tls.key-file", "", "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, config.DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, config.DefaultAccessTTL, cfg.Token.AccessTTL)
	assert.Equal(t, config.DefaultRefreshTTL, cfg.Token.RefreshTTL)
	assert.Equal(t, config.DefaultPruneInterval, cfg.Token.PruneInterval)
	assert.False(t, cfg.AuthDisabled)
	assert.False(t, cfg.Token.RevokeOnPasswordChange)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
http_addr: "0.0.0.0:9000"
log_format: text
auth_disabled: true
token:
  secret: file-secret
  access_ttl: 5m
  revoke_on_password_change: true
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.AuthDisabled)
	assert.Equal(t, "file-secret", cfg.Token.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
	assert.True(t, cfg.Token.RevokeOnPasswordChange)
	// Unset keys keep their defaults.
	assert.Equal(t, config.DefaultRefreshTTL, cfg.Token.RefreshTTL)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml", nil)
	require.Error(t, err)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
http_addr: "0.0.0.0:9000"
token:
  secret: file-secret
`)

	flags := serveFlags()
	require.NoError(t, flags.Parse([]string{
		"--http-addr", "localhost:7000",
		"--token.access-ttl", "1m",
	}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)

	// Set flags win over the file.
	assert.Equal(t, "localhost:7000", cfg.HTTPAddr)
	assert.Equal(t, time.Minute, cfg.Token.AccessTTL)
	// Unset flags do not clobber file values with flag defaults.
	assert.Equal(t, "file-secret", cfg.Token.Secret)
}

func TestLoad_DatabaseURLFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env:5432/veridian")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env:5432/veridian", cfg.DatabaseURL)
}

func TestLoad_FlagBeatsEnvForDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env:5432/veridian")

	flags := serveFlags()
	require.NoError(t, flags.Parse([]string{"--database-url", "postgres://flag:5432/veridian"}))

	cfg, err := config.Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag:5432/veridian", cfg.DatabaseURL)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			HTTPAddr:    "localhost:8080",
			DatabaseURL: "postgres://localhost:5432/veridian",
			LogFormat:   "json",
			Token: config.TokenConfig{
				Secret:     "secret",
				AccessTTL:  15 * time.Minute,
				RefreshTTL: 7 * 24 * time.Hour,
			},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{
			name:   "missing http addr",
			mutate: func(c *config.Config) { c.HTTPAddr = "" },
			errMsg: "http_addr",
		},
		{
			name:   "missing database url",
			mutate: func(c *config.Config) { c.DatabaseURL = "" },
			errMsg: "database_url",
		},
		{
			name:   "bad log format",
			mutate: func(c *config.Config) { c.LogFormat = "xml" },
			errMsg: "log_format",
		},
		{
			name:   "missing token secret",
			mutate: func(c *config.Config) { c.Token.Secret = "" },
			errMsg: "token.secret",
		},
		{
			name:   "non-positive access ttl",
			mutate: func(c *config.Config) { c.Token.AccessTTL = 0 },
			errMsg: "access_ttl",
		},
		{
			name:   "non-positive refresh ttl",
			mutate: func(c *config.Config) { c.Token.RefreshTTL = -time.Hour },
			errMsg: "refresh_ttl",
		},
		{
			name: "refresh ttl not longer than access ttl",
			mutate: func(c *config.Config) {
				c.Token.AccessTTL = time.Hour
				c.Token.RefreshTTL = time.Hour
			},
			errMsg: "must exceed",
		},
		{
			name:   "negative prune interval",
			mutate: func(c *config.Config) { c.Token.PruneInterval = -time.Minute },
			errMsg: "prune_interval",
		},
		{
			name:   "tls cert without key",
			mutate: func(c *config.Config) { c.TLS.CertFile = "/etc/veridian/api.crt" },
			errMsg: "tls.cert_file and tls.key_file",
		},
		{
			name:   "tls key without cert",
			mutate: func(c *config.Config) { c.TLS.KeyFile = "/etc/veridian/api.key" },
			errMsg: "tls.cert_file and tls.key_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
