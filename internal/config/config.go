package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"shapeexport/internal/models"
)

// Config holds all exporter configuration
type Config struct {
	BaseURL     string // platform base URL
	OutputDir   string
	Debug       bool // persist page snapshots when a listing is not recognized
	PageLimit   int  // stop after N pages, 0 = walk everything
	SlowMode    bool // multiplies settle delays for slow connections
	Engine      string
	BrowserPath string // explicit executable, overrides Engine default

	LoginTimeout       time.Duration
	SettleDelay        time.Duration // wait after each UI page advance
	CheckpointInterval int           // pages between checkpoint snapshots
	MaxRetries         int
	RetryBackoff       time.Duration

	// APIEndpoint is a direct listing endpoint template containing one %d
	// page placeholder. When set, pages are fetched directly instead of
	// driven through the UI.
	APIEndpoint string
	APIRate     float64 // direct-fetch requests per second
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		BaseURL:     getEnv("SHAPES_BASE_URL", "https://shapes.inc"),
		OutputDir:   getEnv("OUTPUT_DIR", "exports"),
		Debug:       getBoolEnv("DEBUG", false),
		PageLimit:   getIntEnv("PAGE_LIMIT", 0),
		SlowMode:    getBoolEnv("SLOW_MODE", false),
		Engine:      getEnv("BROWSER_ENGINE", "chromium"),
		BrowserPath: getEnv("BROWSER_PATH", ""),

		LoginTimeout:       getDurationEnv("LOGIN_TIMEOUT", 5*time.Minute),
		SettleDelay:        getDurationEnv("SETTLE_DELAY", 2500*time.Millisecond),
		CheckpointInterval: getIntEnv("CHECKPOINT_INTERVAL", 50),
		MaxRetries:         getIntEnv("MAX_RETRIES", 3),
		RetryBackoff:       getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		APIEndpoint: getEnv("SHAPES_API_ENDPOINT", ""),
		APIRate:     getFloatEnv("API_RATE", 1.0),
	}
}

// EffectiveSettleDelay returns the settle delay with slow mode applied.
func (c *Config) EffectiveSettleDelay() time.Duration {
	if c.SlowMode {
		return c.SettleDelay * 2
	}
	return c.SettleDelay
}

// LoadShapes loads export targets from a YAML file.
// The file is a list of {name, url} entries, optionally with an id.
func LoadShapes(filePath string) ([]models.ShapeTarget, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read shapes file: %w", err)
	}

	var targets []models.ShapeTarget
	if err := yaml.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("failed to parse shapes YAML: %w", err)
	}

	for i, t := range targets {
		if t.URL == "" {
			return nil, fmt.Errorf("shapes file entry %d has no url", i+1)
		}
	}

	return targets, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
