package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "2525", cfg.Server.Port)
	assert.Equal(t, "50051", cfg.Server.GRPCPort)
	assert.Equal(t, 12*time.Hour, cfg.Archive.LinkTTL)
	assert.Equal(t, "temp_package", cfg.Archive.TempDir)
	assert.Equal(t, "gbk", cfg.Archive.Encoding)
	assert.True(t, cfg.Storage.UseKeyPrefix)
	assert.Equal(t, "easypicker2", cfg.Storage.ObjectPrefix())
	assert.Equal(t, "easypicker2/temp_package/", cfg.TempPrefix())
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("S3_BUCKET", "files")
	t.Setenv("S3_USE_KEY_PREFIX", "false")
	t.Setenv("ARCHIVE_LINK_TTL", "30m")
	t.Setenv("ARCHIVE_WORKERS", "0")

	cfg, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "files", cfg.Storage.Bucket)
	assert.Equal(t, "", cfg.Storage.ObjectPrefix())
	assert.Equal(t, "temp_package/", cfg.TempPrefix())
	assert.Equal(t, 30*time.Minute, cfg.Archive.LinkTTL)
	assert.Equal(t, 1, cfg.Archive.Workers)
}

func TestNewConfig_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("DATABASE_NAME", "collector_test")

	cfg, err := NewConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "collector_test", cfg.Database.Name)
}

func TestNewConfig_ReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	content := "Storage:\n  Bucket: from-file\n  KeyPrefix: /custom/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Storage.Bucket)
	assert.Equal(t, "custom", cfg.Storage.KeyPrefix)
}

func TestValidate(t *testing.T) {
	cfg, err := NewConfig("")
	require.NoError(t, err)

	require.Error(t, cfg.Validate())

	cfg.Storage.Bucket = "files"
	cfg.Auth.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Database.Host = ""
	require.Error(t, cfg.Validate())
}
