package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig    `yaml:"store" mapstructure:"store"`
	Roster     RosterConfig   `yaml:"roster" mapstructure:"roster"`
	Classify   ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Match      MatchConfig    `yaml:"match" mapstructure:"match"`
	Validation ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Pipeline   PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring    ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Vision     VisionConfig   `yaml:"vision" mapstructure:"vision"`
	Fetch      FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig   `yaml:"server" mapstructure:"server"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RosterConfig points at the read-only roster file exported by the
// registration system.
type RosterConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ClassifyConfig configures the standings-screen classifier.
type ClassifyConfig struct {
	Threshold       float64  `yaml:"threshold" mapstructure:"threshold"`
	Skip            bool     `yaml:"skip" mapstructure:"skip"`
	TrustedChannels []string `yaml:"trusted_channels" mapstructure:"trusted_channels"`
}

// MatchConfig configures player-name matching.
type MatchConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// ValidateConfig configures structural and cross-lobby validation.
type ValidateConfig struct {
	Strict                bool    `yaml:"strict" mapstructure:"strict"`
	PlayersPerLobby       int     `yaml:"players_per_lobby" mapstructure:"players_per_lobby"`
	ExpectedLobbies       int     `yaml:"expected_lobbies" mapstructure:"expected_lobbies"`
	MinAvgMatchConfidence float64 `yaml:"min_avg_match_confidence" mapstructure:"min_avg_match_confidence"`
}

// FusionWeights are the per-stage weights for overall confidence.
// Extraction dominates once classification has gated the input.
type FusionWeights struct {
	Classification float64 `yaml:"classification" mapstructure:"classification"`
	Extraction     float64 `yaml:"extraction" mapstructure:"extraction"`
	Match          float64 `yaml:"match" mapstructure:"match"`
}

// PipelineConfig configures batch orchestration.
type PipelineConfig struct {
	MaxConcurrentImages   int           `yaml:"max_concurrent_images" mapstructure:"max_concurrent_images"`
	AutoValidateThreshold float64       `yaml:"auto_validate_threshold" mapstructure:"auto_validate_threshold"`
	Weights               FusionWeights `yaml:"weights" mapstructure:"weights"`
}

// ScoringConfig maps placements to points. Points[0] is 1st place.
type ScoringConfig struct {
	Points []int `yaml:"points" mapstructure:"points"`
}

// VisionConfig holds the OCR extraction service settings.
type VisionConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// FetchConfig configures screenshot downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	MaxBytes    int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STANDINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "standings.db")
	v.SetDefault("roster.path", "roster.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("classify.threshold", 0.70)
	v.SetDefault("classify.skip", false)
	v.SetDefault("classify.trusted_channels", []string{})
	v.SetDefault("match.fuzzy_threshold", 0.95)
	v.SetDefault("validate.strict", true)
	v.SetDefault("validate.players_per_lobby", 8)
	v.SetDefault("validate.expected_lobbies", 4)
	v.SetDefault("validate.min_avg_match_confidence", 0.90)
	v.SetDefault("pipeline.max_concurrent_images", 4)
	v.SetDefault("pipeline.auto_validate_threshold", 0.99)
	v.SetDefault("pipeline.weights.classification", 0.30)
	v.SetDefault("pipeline.weights.extraction", 0.50)
	v.SetDefault("pipeline.weights.match", 0.20)
	v.SetDefault("scoring.points", []int{8, 7, 6, 5, 4, 3, 2, 1})
	v.SetDefault("vision.base_url", "https://vision.bracketworks.gg")
	v.SetDefault("vision.model", "standings-v2")
	v.SetDefault("vision.timeout_secs", 60)
	v.SetDefault("vision.max_retries", 3)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_bytes", 20<<20)
	v.SetDefault("fetch.user_agent", "standings-cli/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a batch.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Validation.PlayersPerLobby <= 0 {
		return eris.New("config: validate.players_per_lobby must be positive")
	}
	w := c.Pipeline.Weights
	if w.Classification+w.Extraction+w.Match <= 0 {
		return eris.New("config: pipeline.weights must sum to a positive value")
	}
	if len(c.Scoring.Points) > 0 && len(c.Scoring.Points) < c.Validation.PlayersPerLobby {
		return eris.Errorf("config: scoring.points has %d entries for %d players per lobby",
			len(c.Scoring.Points), c.Validation.PlayersPerLobby)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
