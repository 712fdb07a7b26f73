package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXTENSAO_ENV", "test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, 350, cfg.Hours.ProgramQuota)
	assert.True(t, cfg.Hours.EnforceProgramQuota)
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "extensao", cfg.Auth.Issuer)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	t.Setenv("EXTENSAO_ENV", "test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte("http:\n  addr: \":7070\"\nhours:\n  program_quota: 200\nredis:\n  addr: \"cache:6379\"\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("EXTENSAO_HOURS_PROGRAM_QUOTA", "120")
	t.Setenv("EXTENSAO_AUTH_TOKEN_TTL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr, "file value")
	assert.Equal(t, 120, cfg.Hours.ProgramQuota, "environment wins over file")
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestValidateRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("EXTENSAO_ENV", "production")
	t.Setenv("EXTENSAO_AUTH_SECRET", "short")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")

	t.Setenv("EXTENSAO_AUTH_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}
