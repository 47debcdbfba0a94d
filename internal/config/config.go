// Package config loads the engine configuration from config.yaml plus
// COVERLAKE_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/coverlake/coverlake/internal/curated"
	"github.com/coverlake/coverlake/internal/db"
	"github.com/coverlake/coverlake/internal/ingestion"
	"github.com/coverlake/coverlake/internal/landing"
	"github.com/coverlake/coverlake/internal/orchestrator"
	"github.com/coverlake/coverlake/internal/transform"
)

// Landing backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config is the full engine configuration.
type Config struct {
	Database  db.Config
	Landing   LandingConfig
	Ingest    IngestConfig
	Transform TransformConfig
	Curated   CuratedConfig
	Run       RunConfig
	Server    ServerConfig
}

// LandingConfig selects and configures the landing store backend.
type LandingConfig struct {
	Backend string
	// LocalRoot is the landing directory for the local backend.
	LocalRoot string
	S3        landing.S3Config
}

// IngestConfig tunes file parsing.
type IngestConfig struct {
	Delimiter  string
	HeaderSkip int
	NullTokens []string
}

// TransformConfig tunes the staging filters.
type TransformConfig struct {
	PremiumFloor string
	ClaimFloor   string
	Workers      int
}

// CuratedConfig tunes the aggregates.
type CuratedConfig struct {
	FraudThreshold   int
	LocationDecimals int
}

// RunConfig tunes orchestration.
type RunConfig struct {
	StageTimeout  time.Duration
	RetryMax      uint64
	RetryInterval time.Duration
}

// ServerConfig tunes the admin HTTP server.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	// Schedule is a cron expression for periodic runs of every dataset.
	// Empty disables scheduling.
	Schedule string
}

// Load reads config.yaml from the given directory, falling back to defaults
// and environment variables when the file is absent.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("COVERLAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Landing: LandingConfig{
			Backend:   v.GetString("landing.backend"),
			LocalRoot: v.GetString("landing.local_root"),
			S3: landing.S3Config{
				Bucket: v.GetString("landing.s3.bucket"),
				Prefix: v.GetString("landing.s3.prefix"),
				Region: v.GetString("landing.s3.region"),
			},
		},
		Ingest: IngestConfig{
			Delimiter:  v.GetString("ingest.delimiter"),
			HeaderSkip: v.GetInt("ingest.header_skip"),
			NullTokens: v.GetStringSlice("ingest.null_tokens"),
		},
		Transform: TransformConfig{
			PremiumFloor: v.GetString("transform.premium_floor"),
			ClaimFloor:   v.GetString("transform.claim_floor"),
			Workers:      v.GetInt("transform.workers"),
		},
		Curated: CuratedConfig{
			FraudThreshold:   v.GetInt("curated.fraud_threshold"),
			LocationDecimals: v.GetInt("curated.location_decimals"),
		},
		Run: RunConfig{
			StageTimeout:  v.GetDuration("run.stage_timeout"),
			RetryMax:      retryMax(v.GetInt("run.retry_max")),
			RetryInterval: v.GetDuration("run.retry_interval"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
			Schedule:       v.GetString("server.schedule"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// retryMax clamps negative configured values to zero; the unsigned
// conversion would otherwise turn them into effectively unbounded retries.
func retryMax(configured int) uint64 {
	if configured < 0 {
		return 0
	}
	return uint64(configured)
}

func setDefaults(v *viper.Viper) {
	defaults := db.DefaultConfig()
	v.SetDefault("database.host", defaults.Host)
	v.SetDefault("database.port", defaults.Port)
	v.SetDefault("database.user", defaults.User)
	v.SetDefault("database.password", defaults.Password)
	v.SetDefault("database.dbname", defaults.DBName)
	v.SetDefault("database.sslmode", defaults.SSLMode)

	v.SetDefault("landing.backend", BackendLocal)
	v.SetDefault("landing.local_root", "./landing")
	v.SetDefault("landing.s3.prefix", "landing")
	v.SetDefault("landing.s3.region", "eu-west-1")

	ingestDefaults := ingestion.DefaultOptions()
	v.SetDefault("ingest.delimiter", string(ingestDefaults.Delimiter))
	v.SetDefault("ingest.header_skip", ingestDefaults.HeaderSkip)
	v.SetDefault("ingest.null_tokens", ingestDefaults.NullTokens)

	transformDefaults := transform.DefaultConfig()
	v.SetDefault("transform.premium_floor", transformDefaults.PremiumFloor.String())
	v.SetDefault("transform.claim_floor", transformDefaults.ClaimFloor.String())
	v.SetDefault("transform.workers", transformDefaults.Workers)

	curatedDefaults := curated.DefaultConfig()
	v.SetDefault("curated.fraud_threshold", curatedDefaults.FraudThreshold)
	v.SetDefault("curated.location_decimals", curatedDefaults.LocationDecimals)

	runDefaults := orchestrator.DefaultConfig()
	v.SetDefault("run.stage_timeout", runDefaults.StageTimeout)
	v.SetDefault("run.retry_max", int(runDefaults.RetryMax))
	v.SetDefault("run.retry_interval", runDefaults.RetryInterval)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.schedule", "")
}

func (c Config) validate() error {
	switch c.Landing.Backend {
	case BackendLocal:
		if c.Landing.LocalRoot == "" {
			return fmt.Errorf("landing.local_root is required for the local backend")
		}
	case BackendS3:
		if c.Landing.S3.Bucket == "" {
			return fmt.Errorf("landing.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown landing backend %q", c.Landing.Backend)
	}

	if _, err := c.PremiumFloor(); err != nil {
		return fmt.Errorf("invalid transform.premium_floor: %w", err)
	}
	if _, err := c.ClaimFloor(); err != nil {
		return fmt.Errorf("invalid transform.claim_floor: %w", err)
	}
	if len(c.Ingest.Delimiter) != 1 {
		return fmt.Errorf("ingest.delimiter must be a single character, got %q", c.Ingest.Delimiter)
	}
	return nil
}

// PremiumFloor parses the configured premium filter floor.
func (c Config) PremiumFloor() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Transform.PremiumFloor)
}

// ClaimFloor parses the configured claim filter floor.
func (c Config) ClaimFloor() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Transform.ClaimFloor)
}

// IngestOptions converts the parsing settings into loader options.
func (c Config) IngestOptions() ingestion.Options {
	return ingestion.Options{
		Delimiter:  rune(c.Ingest.Delimiter[0]),
		HeaderSkip: c.Ingest.HeaderSkip,
		NullTokens: c.Ingest.NullTokens,
	}
}
