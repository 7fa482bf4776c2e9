package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/invaudit/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 10*time.Millisecond, cfg.Audit.SetupBudget)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listen: ":9090"
database:
  dsn: "postgres://app:secret@db:5432/plant?sslmode=disable"
  max_open_conns: 50
audit:
  exclude_tables:
    - "temp_*"
  setup_budget: 25ms
log:
  level: debug
  format: console
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "postgres://app:secret@db:5432/plant?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, []string{"temp_*"}, cfg.Audit.ExcludeTables)
	assert.Equal(t, 25*time.Millisecond, cfg.Audit.SetupBudget)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
listen: ":9090"
log:
  level: debug
`)

	t.Setenv("INVAUDIT_LISTEN", ":7070")
	t.Setenv("INVAUDIT_DATABASE__MAX_OPEN_CONNS", "5")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 5, cfg.Database.MaxOpenConns)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "bad_log_level",
			content: "log:\n  level: verbose\n",
		},
		{
			name:    "empty_dsn",
			content: "database:\n  dsn: \"\"\n",
		},
		{
			name:    "zero_open_conns",
			content: "database:\n  max_open_conns: 0\n",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfigFile(t, tc.content)
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
