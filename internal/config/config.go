package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Detector   DetectorConfig
	Thresholds ThresholdsConfig
}

type ServerConfig struct {
	Port           int      // HTTP listen port (default 8080)
	AllowedOrigins []string // CORS origins; empty allows any
}

type DatabaseConfig struct {
	Driver       string // "postgres", "mariadb" or "memory" (default memory)
	URL          string // PostgreSQL connection URL or MariaDB DSN
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type DetectorConfig struct {
	Backend     string // "cascade" or "onnx" (default cascade)
	CascadePath string // pigo cascade file
	ModelPath   string // ONNX face detection model
	LibraryPath string // onnxruntime shared library, empty for platform default
}

// ThresholdsConfig holds the engine decision constants. Defaults ship
// embedded and individual values can be overridden from the environment.
type ThresholdsConfig struct {
	Match      float64 `yaml:"match_threshold"`
	Duplicate  float64 `yaml:"duplicate_threshold"`
	Liveness   float64 `yaml:"liveness_threshold"`
	CropMargin float64 `yaml:"crop_margin"`
	CooldownS  int     `yaml:"cooldown_seconds"`
	DeadlineMs int     `yaml:"deadline_ms"`
}

// Cooldown returns the attendance cooldown as a duration.
func (t ThresholdsConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownS) * time.Second
}

// Deadline returns the per-call pipeline deadline as a duration.
func (t ThresholdsConfig) Deadline() time.Duration {
	return time.Duration(t.DeadlineMs) * time.Millisecond
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	thresholds.Match = envFloat("FACEPASS_MATCH_THRESHOLD", thresholds.Match)
	thresholds.Duplicate = envFloat("FACEPASS_DUPLICATE_THRESHOLD", thresholds.Duplicate)
	thresholds.Liveness = envFloat("FACEPASS_LIVENESS_THRESHOLD", thresholds.Liveness)
	thresholds.CropMargin = envFloat("FACEPASS_CROP_MARGIN", thresholds.CropMargin)
	thresholds.CooldownS = envInt("FACEPASS_COOLDOWN_SECONDS", thresholds.CooldownS)
	thresholds.DeadlineMs = envInt("FACEPASS_DEADLINE_MS", thresholds.DeadlineMs)

	return &Config{
		Server: ServerConfig{
			Port:           envInt("FACEPASS_PORT", 8080),
			AllowedOrigins: splitList(os.Getenv("FACEPASS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:       envString("FACEPASS_DB_DRIVER", "memory"),
			URL:          os.Getenv("FACEPASS_DB_URL"),
			MaxOpenConns: envInt("FACEPASS_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("FACEPASS_DB_MAX_IDLE_CONNS", 5),
		},
		Detector: DetectorConfig{
			Backend:     envString("FACEPASS_DETECTOR", "cascade"),
			CascadePath: envString("FACEPASS_CASCADE_PATH", "facefinder"),
			ModelPath:   os.Getenv("FACEPASS_ONNX_MODEL"),
			LibraryPath: os.Getenv("FACEPASS_ONNX_LIBRARY"),
		},
		Thresholds: thresholds,
	}
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
