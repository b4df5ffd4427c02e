// Package engconfig loads GitMC-Core's engine configuration: worker
// pool sizing, compression defaults, cache limits, and the mirror
// directory layout, via viper with YAML-file-then-environment
// overrides.
package engconfig

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration object for a running engine.
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine" json:"engine"`
	Translation TranslationConfig `mapstructure:"translation" json:"translation"`
	Logging     LoggingConfig     `mapstructure:"logging" json:"logging"`
	Operations  OperationsConfig  `mapstructure:"operations" json:"operations"`
}

// EngineConfig holds process-wide tunables.
type EngineConfig struct {
	WorkerCount  int    `mapstructure:"worker_count" json:"worker_count"`
	TranslatorID string `mapstructure:"translator_id" json:"translator_id"`
	TempDir      string `mapstructure:"temp_dir" json:"temp_dir"`
}

// TranslationConfig governs the extract/rebuild pipeline.
type TranslationConfig struct {
	MirrorDirName      string `mapstructure:"mirror_dir_name" json:"mirror_dir_name"`
	DefaultCompression byte   `mapstructure:"default_compression" json:"default_compression"`
	EnableLZ4          bool   `mapstructure:"enable_lz4" json:"enable_lz4"`
	AllowExternalSpill bool   `mapstructure:"allow_external_spill" json:"allow_external_spill"`
	TokenCacheSize     int    `mapstructure:"token_cache_size" json:"token_cache_size"`
	SerializerMode     string `mapstructure:"serializer_mode" json:"serializer_mode"` // "minified" | "expanded"
}

// LoggingConfig configures the shared logger.
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	FilePath   string `mapstructure:"file_path" json:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

// OperationsConfig governs the operation manager's housekeeping.
type OperationsConfig struct {
	HistoryDBPath      string `mapstructure:"history_db_path" json:"history_db_path"`
	PruneHorizonHours  int    `mapstructure:"prune_horizon_hours" json:"prune_horizon_hours"`
	ProgressBufferSize int    `mapstructure:"progress_buffer_size" json:"progress_buffer_size"`
	PruneSchedule      string `mapstructure:"prune_schedule" json:"prune_schedule"`
}

// Load reads configuration from configPath (a directory containing
// config.yaml). GITMC_-prefixed environment variables override values
// from the file, and defaults fill in anything neither sets.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("GITMC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.worker_count", runtime.NumCPU())
	v.SetDefault("engine.translator_id", "gitmc-core")
	v.SetDefault("engine.temp_dir", "./tmp")

	v.SetDefault("translation.mirror_dir_name", "GitMC")
	v.SetDefault("translation.default_compression", 2) // Zlib
	v.SetDefault("translation.enable_lz4", false)
	v.SetDefault("translation.allow_external_spill", true)
	v.SetDefault("translation.token_cache_size", 4096)
	v.SetDefault("translation.serializer_mode", "minified")

	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.file_path", "./data/gitmc-core.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("operations.history_db_path", "./data/operations.db")
	v.SetDefault("operations.prune_horizon_hours", 72)
	v.SetDefault("operations.progress_buffer_size", 64)
	v.SetDefault("operations.prune_schedule", "0 * * * *")
}

func validate(cfg *Config) error {
	var err error
	cfg.Engine.TempDir, err = filepath.Abs(cfg.Engine.TempDir)
	if err != nil {
		return fmt.Errorf("invalid temp directory: %w", err)
	}

	if cfg.Engine.WorkerCount <= 0 {
		cfg.Engine.WorkerCount = 1
	}

	switch cfg.Translation.SerializerMode {
	case "minified", "expanded":
	default:
		return fmt.Errorf("unknown serializer mode %q", cfg.Translation.SerializerMode)
	}

	return nil
}
