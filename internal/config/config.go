// Package config loads branch-memory settings from defaults, an optional
// YAML file and BRANCH_MEMORY_* environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. BRANCH_MEMORY_GEMS_LIMIT.
const EnvPrefix = "BRANCH_MEMORY"

// Config is the complete runtime configuration.
type Config struct {
	DB         string           `mapstructure:"db" yaml:"db"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Access     AccessConfig     `mapstructure:"access" yaml:"access"`
	Tags       TagsConfig       `mapstructure:"tags" yaml:"tags"`
	Weights    WeightsConfig    `mapstructure:"weights" yaml:"weights"`
	Relevance  RelevanceConfig  `mapstructure:"relevance" yaml:"relevance"`
	Gems       GemsConfig       `mapstructure:"gems" yaml:"gems"`
	Assembler  AssemblerConfig  `mapstructure:"assembler" yaml:"assembler"`
	Usage      UsageConfig      `mapstructure:"usage" yaml:"usage"`
	Completion CompletionConfig `mapstructure:"completion" yaml:"completion"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// AccessConfig bounds the permission walk.
type AccessConfig struct {
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
}

// TagsConfig controls extraction and co-occurrence edges.
type TagsConfig struct {
	MinLength int `mapstructure:"min_length" yaml:"min_length"`
	MaxTags   int `mapstructure:"max_tags" yaml:"max_tags"`
	// RelatedStep is added per co-occurrence. Edges surface related messages
	// only above relevance.related_threshold, i.e. after threshold/step
	// co-occurrences.
	RelatedStep float64 `mapstructure:"related_step" yaml:"related_step"`
}

// WeightsConfig controls TF-IDF recomputation.
type WeightsConfig struct {
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	WindowDays int           `mapstructure:"window_days" yaml:"window_days"`
}

// RelevanceConfig controls retrieval caps.
type RelevanceConfig struct {
	DirectLimit      int     `mapstructure:"direct_limit" yaml:"direct_limit"`
	RelatedLimit     int     `mapstructure:"related_limit" yaml:"related_limit"`
	RelatedThreshold float64 `mapstructure:"related_threshold" yaml:"related_threshold"`
}

// GemsConfig controls the notable-content scan used during assembly.
type GemsConfig struct {
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`
	Limit        int `mapstructure:"limit" yaml:"limit"`
}

// AssemblerConfig controls prompt composition.
type AssemblerConfig struct {
	PreviewLength int     `mapstructure:"preview_length" yaml:"preview_length"`
	DirectCap     int     `mapstructure:"direct_cap" yaml:"direct_cap"`
	RelatedCap    int     `mapstructure:"related_cap" yaml:"related_cap"`
	NotableShare  float64 `mapstructure:"notable_share" yaml:"notable_share"`
	MinNotable    int     `mapstructure:"min_notable" yaml:"min_notable"`
}

// UsageConfig controls daily token accounting.
type UsageConfig struct {
	DailyLimit int `mapstructure:"daily_limit" yaml:"daily_limit"`
}

// CompletionConfig selects the language-model backend.
type CompletionConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", defaultDBPath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("access.max_depth", 32)

	v.SetDefault("tags.min_length", 3)
	v.SetDefault("tags.max_tags", 5)
	v.SetDefault("tags.related_step", 0.1)

	v.SetDefault("weights.cache_ttl", "5m")
	v.SetDefault("weights.window_days", 90)

	v.SetDefault("relevance.direct_limit", 10)
	v.SetDefault("relevance.related_limit", 5)
	v.SetDefault("relevance.related_threshold", 0.3)

	v.SetDefault("gems.lookback_days", 30)
	v.SetDefault("gems.limit", 5)

	v.SetDefault("assembler.preview_length", 100)
	v.SetDefault("assembler.direct_cap", 8)
	v.SetDefault("assembler.related_cap", 3)
	v.SetDefault("assembler.notable_share", 0.3)
	v.SetDefault("assembler.min_notable", 2)

	v.SetDefault("usage.daily_limit", 100000)

	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.model", "gemini-2.5-flash")
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".branch-memory", "memory.db")
}

// Dir returns the default configuration directory (~/.branch-memory).
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".branch-memory")
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration. An explicit path must exist; otherwise
// config.yaml in Dir() is used when present and defaults apply when it is not.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
