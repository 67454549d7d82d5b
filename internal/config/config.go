// Package config handles application configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/randytsao24/bikefinder/internal/cache"
	"github.com/randytsao24/bikefinder/internal/gbfs"
	"github.com/randytsao24/bikefinder/internal/location"
	"github.com/randytsao24/bikefinder/internal/routing"
)

// Config holds all application configuration.
type Config struct {
	Port string `validate:"required,numeric"`
	Env  string `validate:"oneof=development production test"`

	GBFSStatusURL      string `validate:"required,url"`
	GBFSInformationURL string `validate:"required,url"`
	GeocoderURL        string `validate:"required,url"`
	GeocoderUserAgent  string `validate:"required"`
	OSRMURL            string `validate:"required,url"`

	CacheTTL     time.Duration `validate:"gt=0"`
	MaxStaleness time.Duration `validate:"gtefield=CacheTTL"`
	FeedTimeout  time.Duration `validate:"gt=0"`
	HTTPTimeout  time.Duration `validate:"gt=0"`

	DefaultCity    string
	DefaultCountry string

	KafkaBrokers []string `validate:"omitempty,dive,hostname_port"`
	KafkaTopic   string   `validate:"required_with=KafkaBrokers"`
}

// fileConfig mirrors Config in the YAML file. Durations are in seconds.
type fileConfig struct {
	Port               string   `yaml:"port"`
	Env                string   `yaml:"env"`
	GBFSStatusURL      string   `yaml:"gbfs_status_url"`
	GBFSInformationURL string   `yaml:"gbfs_information_url"`
	GeocoderURL        string   `yaml:"geocoder_url"`
	GeocoderUserAgent  string   `yaml:"geocoder_user_agent"`
	OSRMURL            string   `yaml:"osrm_url"`
	CacheTTLSeconds    int      `yaml:"cache_ttl_seconds"`
	MaxStaleSeconds    int      `yaml:"max_staleness_seconds"`
	FeedTimeoutSeconds int      `yaml:"feed_timeout_seconds"`
	HTTPTimeoutSeconds int      `yaml:"http_timeout_seconds"`
	DefaultCity        string   `yaml:"default_city"`
	DefaultCountry     string   `yaml:"default_country"`
	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaTopic         string   `yaml:"kafka_topic"`
}

// Defaults returns the built-in configuration for the Toronto system.
func Defaults() *Config {
	return &Config{
		Port:               "3000",
		Env:                "development",
		GBFSStatusURL:      gbfs.DefaultStatusURL,
		GBFSInformationURL: gbfs.DefaultInformationURL,
		GeocoderURL:        location.DefaultGeocoderURL,
		GeocoderUserAgent:  "bikefinder/1.0",
		OSRMURL:            routing.DefaultBaseURL,
		CacheTTL:           cache.DefaultTTL,
		MaxStaleness:       cache.DefaultMaxStaleness,
		FeedTimeout:        5 * time.Second,
		HTTPTimeout:        10 * time.Second,
		DefaultCity:        "Toronto",
		DefaultCountry:     "Canada",
		KafkaTopic:         "bikeshare.snapshots",
	}
}

// Load reads configuration with sensible defaults. A .env file is loaded
// first when present, then the YAML file named by CONFIG_FILE, and finally
// environment variables override both.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	setString(&c.Port, f.Port)
	setString(&c.Env, f.Env)
	setString(&c.GBFSStatusURL, f.GBFSStatusURL)
	setString(&c.GBFSInformationURL, f.GBFSInformationURL)
	setString(&c.GeocoderURL, f.GeocoderURL)
	setString(&c.GeocoderUserAgent, f.GeocoderUserAgent)
	setString(&c.OSRMURL, f.OSRMURL)
	setString(&c.DefaultCity, f.DefaultCity)
	setString(&c.DefaultCountry, f.DefaultCountry)
	setString(&c.KafkaTopic, f.KafkaTopic)
	setSeconds(&c.CacheTTL, f.CacheTTLSeconds)
	setSeconds(&c.MaxStaleness, f.MaxStaleSeconds)
	setSeconds(&c.FeedTimeout, f.FeedTimeoutSeconds)
	setSeconds(&c.HTTPTimeout, f.HTTPTimeoutSeconds)
	if len(f.KafkaBrokers) > 0 {
		c.KafkaBrokers = f.KafkaBrokers
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.GBFSStatusURL = getEnv("GBFS_STATUS_URL", c.GBFSStatusURL)
	c.GBFSInformationURL = getEnv("GBFS_INFORMATION_URL", c.GBFSInformationURL)
	c.GeocoderURL = getEnv("GEOCODER_URL", c.GeocoderURL)
	c.GeocoderUserAgent = getEnv("GEOCODER_USER_AGENT", c.GeocoderUserAgent)
	c.OSRMURL = getEnv("OSRM_URL", c.OSRMURL)
	c.CacheTTL = getDurationEnv("CACHE_TTL_SECONDS", c.CacheTTL)
	c.MaxStaleness = getDurationEnv("MAX_STALENESS_SECONDS", c.MaxStaleness)
	c.FeedTimeout = getDurationEnv("FEED_TIMEOUT_SECONDS", c.FeedTimeout)
	c.HTTPTimeout = getDurationEnv("HTTP_TIMEOUT_SECONDS", c.HTTPTimeout)
	c.DefaultCity = getEnv("DEFAULT_CITY", c.DefaultCity)
	c.DefaultCountry = getEnv("DEFAULT_COUNTRY", c.DefaultCountry)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// KafkaEnabled reports whether refresh events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, seconds int) {
	if seconds != 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
