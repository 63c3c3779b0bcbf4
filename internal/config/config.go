// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables (.env
// file). Configuration is loaded once at startup; every runtime knob is an
// env var with the documented default from the specification's
// configuration surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for sqlite databases (always absolute)
	LogLevel string // Log level (debug, info, warn, error)
	Port     int    // HTTP status/control server port

	ExchangeAPIKey    string // Exchange API key (paper adapter ignores this but wiring honors it)
	ExchangeAPISecret string // Exchange API secret
	GitHubToken       string // Optional token for the code-moat producer

	// S3-compatible bucket for archive backups (optional; archiver runs
	// without it, just skips the offsite copy).
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	Runtime RuntimeConfig
}

// RuntimeConfig holds the knobs enumerated in the specification's
// configuration surface (§6), each with the documented default.
type RuntimeConfig struct {
	MaxDrawdown              float64       // default 0.05 (5%)
	PolicyContagionThreshold float64       // default 0.80
	ArchiveInterval          uint64        // ticks, default 300
	ArchiveValueThreshold    float64       // default 40
	CollisionWindow          time.Duration // default 5s
	SignalCooldown           time.Duration // default 10s
	MaxActiveAssets          int           // default 15
	DeploymentCooldown       time.Duration // default 3600s
	ProspectorScanInterval   uint64        // ticks, default 60
	PatternHistoryWindow     int           // default 100
	RoundTripCostPct         float64       // default 0.72
	ProbationTierOne         float64       // default -5.0
	ProbationTierTwo         float64       // default -10.0
	HibernationThreshold     float64       // default -15.0
	HibernationQualifyingDur time.Duration // default 90 * 24h
	TickInterval              time.Duration // default 1s, simulated-second cadence
	FeePct                    float64       // default 0.26
	SlippagePct               float64       // default 0.10
}

// Load reads configuration from environment variables.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("SWARM_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8090),
		ExchangeAPIKey:    getEnv("EXCHANGE_API_KEY", ""),
		ExchangeAPISecret: getEnv("EXCHANGE_API_SECRET", ""),
		GitHubToken:       getEnv("GITHUB_TOKEN", ""),
		S3Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
		S3Region:          getEnv("ARCHIVE_S3_REGION", "auto"),
		S3Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
		S3AccessKey:       getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		Runtime: RuntimeConfig{
			MaxDrawdown:              getEnvAsFloat("MAX_DRAWDOWN", 0.05),
			PolicyContagionThreshold: getEnvAsFloat("POLICY_CONTAGION_THRESHOLD", 0.80),
			ArchiveInterval:          uint64(getEnvAsInt("ARCHIVE_INTERVAL_TICKS", 300)),
			ArchiveValueThreshold:    getEnvAsFloat("ARCHIVE_VALUE_THRESHOLD", 40),
			CollisionWindow:          time.Duration(getEnvAsInt("COLLISION_WINDOW_SECONDS", 5)) * time.Second,
			SignalCooldown:           time.Duration(getEnvAsInt("SIGNAL_COOLDOWN_SECONDS", 10)) * time.Second,
			MaxActiveAssets:          getEnvAsInt("MAX_ACTIVE_ASSETS", 15),
			DeploymentCooldown:       time.Duration(getEnvAsInt("DEPLOYMENT_COOLDOWN_SECONDS", 3600)) * time.Second,
			ProspectorScanInterval:   uint64(getEnvAsInt("PROSPECTOR_SCAN_INTERVAL_TICKS", 60)),
			PatternHistoryWindow:     getEnvAsInt("PATTERN_HISTORY_WINDOW", 100),
			RoundTripCostPct:         getEnvAsFloat("ROUND_TRIP_COST_PCT", 0.72),
			ProbationTierOne:         getEnvAsFloat("PROBATION_TIER_ONE", -5.0),
			ProbationTierTwo:         getEnvAsFloat("PROBATION_TIER_TWO", -10.0),
			HibernationThreshold:     getEnvAsFloat("HIBERNATION_THRESHOLD", -15.0),
			HibernationQualifyingDur: time.Duration(getEnvAsInt("HIBERNATION_QUALIFYING_DAYS", 90)) * 24 * time.Hour,
			TickInterval:             time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
			FeePct:                   getEnvAsFloat("FEE_PCT", 0.26),
			SlippagePct:              getEnvAsFloat("SLIPPAGE_PCT", 0.10),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
