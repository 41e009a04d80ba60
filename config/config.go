package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel               string
	Script                 string
	Snapshot               string
	SnapshotOut            string
	Journal                string
	PgDSN                  string
	Workers                int
	OracleMaxSlotDelay     uint64
	OracleMaxConfidenceBps uint64
	StartTime              uint64
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMMSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("snapshot-out", "./data/snapshot.json")
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("workers", 4)
	v.SetDefault("oracle-max-slot-delay", uint64(25))
	v.SetDefault("oracle-max-confidence-bps", uint64(200))
	v.SetDefault("start-time", uint64(0))

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:               v.GetString("log-level"),
		Script:                 v.GetString("script"),
		Snapshot:               v.GetString("snapshot"),
		SnapshotOut:            v.GetString("snapshot-out"),
		Journal:                v.GetString("journal"),
		PgDSN:                  v.GetString("pg-dsn"),
		Workers:                v.GetInt("workers"),
		OracleMaxSlotDelay:     v.GetUint64("oracle-max-slot-delay"),
		OracleMaxConfidenceBps: v.GetUint64("oracle-max-confidence-bps"),
		StartTime:              v.GetUint64("start-time"),
	}
	if cfg.Workers < 0 {
		return Config{}, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}

	return cfg, nil
}
