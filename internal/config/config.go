package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Engine   EngineConfig   `json:"engine"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// EngineConfig holds matchmaking engine tunables.
type EngineConfig struct {
	DedupRetentionHours int `json:"dedup_retention_hours"`
	HotspotIntervalMins int `json:"hotspot_interval_mins"`
	DefaultMatchLimit   int `json:"default_match_limit"`
	RetryMaxAttempts    int `json:"retry_max_attempts"`
	RetryBaseBackoffMS  int `json:"retry_base_backoff_ms"`
}

// DedupRetention returns the scan dedup retention window.
func (e EngineConfig) DedupRetention() time.Duration {
	hours := e.DedupRetentionHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// HotspotInterval returns the hotspot recompute interval.
func (e EngineConfig) HotspotInterval() time.Duration {
	mins := e.HotspotIntervalMins
	if mins <= 0 {
		mins = 5
	}
	return time.Duration(mins) * time.Minute
}

// MatchLimit returns the default match result limit.
func (e EngineConfig) MatchLimit() int {
	if e.DefaultMatchLimit <= 0 {
		return 10
	}
	return e.DefaultMatchLimit
}

// RetryAttempts returns the bounded retry budget for retryable storage errors.
func (e EngineConfig) RetryAttempts() int {
	if e.RetryMaxAttempts <= 0 {
		return 3
	}
	return e.RetryMaxAttempts
}

// RetryBaseBackoff returns the initial backoff between retries.
func (e EngineConfig) RetryBaseBackoff() time.Duration {
	if e.RetryBaseBackoffMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(e.RetryBaseBackoffMS) * time.Millisecond
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
