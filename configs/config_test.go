package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func resetConfig(t *testing.T) {
	prev := Cfg
	Cfg = Config{}
	viper.Reset()
	t.Cleanup(func() {
		Cfg = prev
		viper.Reset()
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	resetConfig(t)
	file := writeConfig(t, `
log:
  level: info
table:
  name: sessions
  requestTimeout: 250
  storage:
    memory:
      maxItems: 10
`)

	require.NoError(t, LoadConfig(file))
	assert.Equal(t, "info", Cfg.Log.Level)
	assert.Equal(t, "sessions", Cfg.Table.Name)
	assert.Equal(t, 250, Cfg.Table.RequestTimeout)
	require.NotNil(t, Cfg.Table.Storage.Memory)
	assert.Equal(t, 10, Cfg.Table.Storage.Memory.MaxItems)
	assert.Nil(t, Cfg.Table.Storage.Azure)
	assert.Nil(t, Cfg.Publisher.Kafka)
}

func TestLoadConfigSelectsStorageFromEnv(t *testing.T) {
	resetConfig(t)
	file := writeConfig(t, "table:\n  name: cache\n")

	t.Setenv("TABLE_STORAGE_AZURE_ACCOUNTNAME", "acct")
	t.Setenv("TABLE_STORAGE_AZURE_ACCOUNTKEY", "c2VjcmV0")
	t.Setenv("TABLE_NAME", "fromenv")

	require.NoError(t, LoadConfig(file))
	require.NotNil(t, Cfg.Table.Storage.Azure)
	assert.Equal(t, "acct", Cfg.Table.Storage.Azure.AccountName)
	assert.Equal(t, "c2VjcmV0", Cfg.Table.Storage.Azure.AccountKey)
	assert.Equal(t, "fromenv", Cfg.Table.Name)
	assert.Nil(t, Cfg.Table.Storage.Redis)
	assert.Nil(t, Cfg.Table.Storage.Memory)
}

func TestLoadConfigMissingFile(t *testing.T) {
	resetConfig(t)
	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yml")))
}
