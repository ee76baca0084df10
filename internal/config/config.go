package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Feed    FeedConfig
	Redis   RedisConfig
	Geo     GeoConfig
	Listing ListingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// FeedConfig describes the upstream feeds and how to parse them
type FeedConfig struct {
	URL            string
	EventsURL      string
	FetchTimeout   time.Duration
	Retries        int
	RequiredFields []string
	Aliases        []string
}

// RedisConfig selects the session store. An empty Addr keeps sessions in memory.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// GeoConfig tunes the position provider and distance engine
type GeoConfig struct {
	PositionCacheDuration time.Duration
	PositionTimeout       time.Duration
	DistanceChunkSize     int
}

// ListingConfig tunes ordering and paging
type ListingConfig struct {
	OrderBy             string
	PageInitial         int
	PageIncrement       int
	ScaleOrder          []string
	TimezoneOffsetHours int
	FuzzyDistance       int
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Feed: FeedConfig{
			URL:            getEnv("FEED_URL", ""),
			EventsURL:      getEnv("EVENTS_FEED_URL", ""),
			FetchTimeout:   getEnvAsDuration("FEED_FETCH_TIMEOUT", 30*time.Second),
			Retries:        getEnvAsInt("FEED_RETRIES", 2),
			RequiredFields: getEnvAsList("FEED_REQUIRED_FIELDS", []string{"緯度", "経度", "お祭り名"}),
			Aliases:        getEnvAsList("FEED_ALIASES", nil),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			SessionTTL: getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		},
		Geo: GeoConfig{
			PositionCacheDuration: getEnvAsDuration("POSITION_CACHE_DURATION", time.Hour),
			PositionTimeout:       getEnvAsDuration("POSITION_TIMEOUT", 10*time.Second),
			DistanceChunkSize:     getEnvAsInt("DISTANCE_CHUNK_SIZE", 100),
		},
		Listing: ListingConfig{
			OrderBy:             getEnv("ORDER_BY", "chronological"),
			PageInitial:         getEnvAsInt("PAGE_INITIAL", 20),
			PageIncrement:       getEnvAsInt("PAGE_INCREMENT", 10),
			ScaleOrder:          getEnvAsList("SCALE_ORDER", []string{"大規模", "中規模", "小規模"}),
			TimezoneOffsetHours: getEnvAsInt("TIMEZONE_OFFSET_HOURS", 9),
			FuzzyDistance:       getEnvAsInt("SEARCH_FUZZY_DISTANCE", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var problems []string

	if c.Feed.URL == "" {
		problems = append(problems, "FEED_URL is required")
	}
	if c.Feed.FetchTimeout <= 0 {
		problems = append(problems, "FEED_FETCH_TIMEOUT must be positive")
	}
	if c.Feed.Retries < 0 {
		problems = append(problems, "FEED_RETRIES must not be negative")
	}
	if len(c.Feed.RequiredFields) == 0 {
		problems = append(problems, "FEED_REQUIRED_FIELDS must name at least one column")
	}
	for _, a := range c.Feed.Aliases {
		if canonical, legacy, ok := strings.Cut(a, "="); !ok || strings.TrimSpace(canonical) == "" || strings.TrimSpace(legacy) == "" {
			problems = append(problems, fmt.Sprintf("FEED_ALIASES entry %q must be canonical=legacy", a))
		}
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	switch c.Listing.OrderBy {
	case "chronological", "distance":
	default:
		problems = append(problems, "ORDER_BY must be one of: chronological, distance")
	}
	if c.Listing.PageInitial <= 0 || c.Listing.PageIncrement <= 0 {
		problems = append(problems, "PAGE_INITIAL and PAGE_INCREMENT must be positive")
	}
	if c.Listing.TimezoneOffsetHours < -12 || c.Listing.TimezoneOffsetHours > 14 {
		problems = append(problems, "TIMEZONE_OFFSET_HOURS must be between -12 and 14")
	}
	if c.Listing.FuzzyDistance < 0 {
		problems = append(problems, "SEARCH_FUZZY_DISTANCE must not be negative")
	}

	if c.Geo.PositionCacheDuration <= 0 {
		problems = append(problems, "POSITION_CACHE_DURATION must be positive")
	}
	if c.Geo.DistanceChunkSize <= 0 {
		problems = append(problems, "DISTANCE_CHUNK_SIZE must be positive")
	}
	if c.Redis.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Location returns the fixed reference timezone used for dates and opening hours.
func (c *Config) Location() *time.Location {
	h := c.Listing.TimezoneOffsetHours
	name := fmt.Sprintf("UTC%+d", h)
	if h == 9 {
		name = "JST"
	}
	return time.FixedZone(name, h*3600)
}

// UseRedis reports whether sessions live in redis.
func (c *Config) UseRedis() bool {
	return c.Redis.Addr != ""
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
