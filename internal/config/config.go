package config

import (
	"fmt"
	"os"
	"time"

	"github.com/RishiKendai/textpair/internal/alignment"
	"github.com/RishiKendai/textpair/internal/configs/env"
	"github.com/RishiKendai/textpair/internal/output"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Comparison
	NgramLength        int     `yaml:"ngram_length"`
	GapTolerance       int     `yaml:"gap_tolerance"`
	MinMatchingNgrams  int     `yaml:"min_matching_ngrams"`
	MinPassageLength   int     `yaml:"min_passage_length"`
	CommonNgramCeiling int     `yaml:"common_ngram_ceiling"`
	BanalityCeiling    int     `yaml:"banality_ceiling"`
	BanalityThreshold  float64 `yaml:"banality_threshold"`
	CoverageWeight     float64 `yaml:"score_coverage_weight"`
	RarityWeight       float64 `yaml:"score_rarity_weight"`
	Workers            int     `yaml:"workers"`
	OneWayMatching     bool    `yaml:"one_way_matching"`

	// Files
	SourceIndexPath string `yaml:"source_index_path"`
	TargetIndexPath string `yaml:"target_index_path"`
	OutputPath      string `yaml:"output_path"`
	OutputFormat    string `yaml:"output_format"`
	OutputDir       string `yaml:"output_dir"`
	CorpusDir       string `yaml:"corpus_dir"`

	// MongoDB
	MongoURI    string `yaml:"mongo_uri"`
	MongoDBName string `yaml:"mongo_db_name"`

	// Redis
	RedisHost          string        `yaml:"redis_host"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisStreamKey     string        `yaml:"redis_stream_key"`
	RedisConsumerGroup string        `yaml:"redis_consumer_group"`
	RedisDeadLetterKey string        `yaml:"redis_dead_letter_key"`
	StreamRetention    time.Duration `yaml:"-"`

	// JWT
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`

	// Rate Limiting
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// Concurrency
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
	RunTimeout        time.Duration `yaml:"-"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerPort  string `yaml:"server_port"`
	MetricsPort string `yaml:"metrics_port"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Comparison
	cfg.NgramLength = env.GetEnvInt("NGRAM_LENGTH", 3)
	cfg.GapTolerance = env.GetEnvInt("GAP_TOLERANCE", 3)
	cfg.MinMatchingNgrams = env.GetEnvInt("MIN_MATCHING_NGRAMS", 4)
	cfg.MinPassageLength = env.GetEnvInt("MIN_PASSAGE_LENGTH", 6)
	cfg.CommonNgramCeiling = env.GetEnvInt("COMMON_NGRAM_CEILING", 0)
	cfg.BanalityCeiling = env.GetEnvInt("BANALITY_CEILING", 1000)
	cfg.BanalityThreshold = env.GetEnvFloat("BANALITY_THRESHOLD", 0.75)
	cfg.CoverageWeight = env.GetEnvFloat("SCORE_COVERAGE_WEIGHT", 0.5)
	cfg.RarityWeight = env.GetEnvFloat("SCORE_RARITY_WEIGHT", 0.5)
	cfg.Workers = env.GetEnvInt("WORKERS", 0)
	cfg.OneWayMatching = env.GetEnvBool("ONE_WAY_MATCHING", true)

	// Files
	cfg.SourceIndexPath = env.GetEnv("SOURCE_INDEX_PATH", "")
	cfg.TargetIndexPath = env.GetEnv("TARGET_INDEX_PATH", "")
	cfg.OutputPath = env.GetEnv("OUTPUT_PATH", "")
	cfg.OutputFormat = env.GetEnv("OUTPUT_FORMAT", string(output.FormatTSV))
	cfg.OutputDir = env.GetEnv("OUTPUT_DIR", "output")
	cfg.CorpusDir = env.GetEnv("CORPUS_DIR", "")

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "textpair:runs")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "textpair:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "textpair:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_HOURS", 24)
	cfg.StreamRetention = time.Duration(retentionHours) * time.Hour

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "textpair")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Concurrency
	cfg.MaxConcurrentRuns = env.GetEnvInt("MAX_CONCURRENT_RUNS", 2)
	timeoutMinutes := env.GetEnvInt("RUN_TIMEOUT_MINUTES", 60)
	cfg.RunTimeout = time.Duration(timeoutMinutes) * time.Minute

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogFormat = env.GetEnv("LOG_FORMAT", "json")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "9090")

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var overlay struct {
		*Config           `yaml:",inline"`
		RunTimeoutMinutes *int `yaml:"run_timeout_minutes"`
	}
	overlay.Config = c
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if overlay.RunTimeoutMinutes != nil {
		c.RunTimeout = time.Duration(*overlay.RunTimeoutMinutes) * time.Minute
	}
	return nil
}

// Params returns the comparison parameters of the configuration
func (c *Config) Params() alignment.Params {
	return alignment.Params{
		GapTolerance:       c.GapTolerance,
		MinMatchingNgrams:  c.MinMatchingNgrams,
		MinPassageLength:   c.MinPassageLength,
		CommonNgramCeiling: c.CommonNgramCeiling,
		BanalityCeiling:    c.BanalityCeiling,
		BanalityThreshold:  c.BanalityThreshold,
		CoverageWeight:     c.CoverageWeight,
		RarityWeight:       c.RarityWeight,
		Workers:            c.Workers,
		OneWay:             c.OneWayMatching,
	}
}

// Format returns the parsed output format
func (c *Config) Format() (output.Format, error) {
	return output.ParseFormat(c.OutputFormat)
}

// Validate checks the comparison settings used by every command
func (c *Config) Validate() error {
	if c.NgramLength < 1 {
		return fmt.Errorf("NGRAM_LENGTH must be at least 1")
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must not be negative")
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	return nil
}

// ValidateServer checks the settings needed by the serve command
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.StreamRetention <= 0 {
		return fmt.Errorf("STREAM_RETENTION_HOURS must be greater than 0")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be greater than 0")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT_MINUTES must be greater than 0")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	return nil
}
