package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("script", "", "")
	flags.Int("workers", 0, "")
	flags.String("log-level", "", "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "./data/journal.jsonl", cfg.Journal)
	assert.Equal(t, uint64(25), cfg.OracleMaxSlotDelay)
	assert.Equal(t, uint64(200), cfg.OracleMaxConfidenceBps)
	assert.Empty(t, cfg.PgDSN)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ammsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"script: ./ops.jsonl\nworkers: 2\nstart-time: 1700000000\npg-dsn: postgres://file\n",
	), 0o644))

	t.Run("config file", func(t *testing.T) {
		cfg, err := Load(path, testFlags())
		require.NoError(t, err)
		assert.Equal(t, "./ops.jsonl", cfg.Script)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, uint64(1_700_000_000), cfg.StartTime)
		assert.Equal(t, "postgres://file", cfg.PgDSN)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("AMMSIM_WORKERS", "9")
		t.Setenv("AMMSIM_PG_DSN", "postgres://env")
		cfg, err := Load(path, testFlags())
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Workers)
		assert.Equal(t, "postgres://env", cfg.PgDSN)
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("AMMSIM_WORKERS", "9")
		flags := testFlags()
		require.NoError(t, flags.Parse([]string{"--workers=16", "--script=other.jsonl"}))
		cfg, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Workers)
		assert.Equal(t, "other.jsonl", cfg.Script)
	})
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("negative workers", func(t *testing.T) {
		t.Setenv("AMMSIM_WORKERS", "-1")
		_, err := Load("", nil)
		assert.Error(t, err)
	})
}
