package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The JWT key file default is relative to the working directory; run each
// config test from its own temp dir so tests never touch a real key file.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := chtemp(t)
	t.Setenv("KECANTIERE_JWT_SECRET", "unit-test-secret")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.Equal(t, "3000", cfg.ListenPort)
	assert.Equal(t, filepath.Join(dir, "data.json"), cfg.DataFilePath)
	assert.Equal(t, filepath.Join(dir, "users.json"), cfg.UsersFilePath)
	assert.Equal(t, filepath.Join(dir, "uploads"), cfg.UploadsDir)
	assert.True(t, cfg.EnableBackup)
	assert.Equal(t, "unit-test-secret", cfg.JwtSecret)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	chtemp(t)
	t.Setenv("KECANTIERE_JWT_SECRET", "unit-test-secret")
	t.Setenv("KECANTIERE_LISTEN_PORT", "4000")

	cfg, err := loadConfig([]string{"-port", "5000", "-data-file", "./altro.json"})
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.ListenPort, "flag wins over env")
	assert.Equal(t, "altro.json", filepath.Base(cfg.DataFilePath))
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	chtemp(t)
	t.Setenv("KECANTIERE_JWT_SECRET", "unit-test-secret")
	t.Setenv("KECANTIERE_LISTEN_PORT", "4000")
	t.Setenv("KECANTIERE_ENABLE_BACKUP", "no")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.ListenPort)
	assert.False(t, cfg.EnableBackup)
}

func TestLoadConfig_SecretFromFile(t *testing.T) {
	dir := chtemp(t)
	secretFile := filepath.Join(dir, "jwt.key")
	require.NoError(t, os.WriteFile(secretFile, []byte("  file-secret \n"), 0600))
	t.Setenv("KECANTIERE_JWT_SECRET", "env-secret")

	cfg, err := loadConfig([]string{"-jwt-secret-file", secretFile})
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.JwtSecret, "explicit file wins over env and is trimmed")
}

func TestLoadConfig_SecretGeneratedAndSaved(t *testing.T) {
	chtemp(t)

	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	require.NotEmpty(t, cfg.JwtSecret)
	saved, err := os.ReadFile("data.key")
	require.NoError(t, err)
	assert.Equal(t, cfg.JwtSecret, string(saved))
}

func TestLoadConfig_DataPathMustNotBeDirectory(t *testing.T) {
	dir := chtemp(t)
	t.Setenv("KECANTIERE_JWT_SECRET", "unit-test-secret")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "data.json"), 0755))

	_, err := loadConfig(nil)
	assert.ErrorContains(t, err, "directory")
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("KECANTIERE_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("KECANTIERE_TEST_BOOL", false))

	t.Setenv("KECANTIERE_TEST_BOOL", "0")
	assert.False(t, getEnvBool("KECANTIERE_TEST_BOOL", true))

	t.Setenv("KECANTIERE_TEST_BOOL", "boh")
	assert.True(t, getEnvBool("KECANTIERE_TEST_BOOL", true), "invalid value falls back to default")

	assert.False(t, getEnvBool("KECANTIERE_TEST_BOOL_MISSING", false))
}
