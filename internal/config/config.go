package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Host                    string
	Port                    string
	GeminiAPIKey            string
	GeminiModel             string
	GeminiBaseURL           string
	Generator               string
	UpstreamTimeout         time.Duration
	RequestTimeout          time.Duration
	MaxRequestBodySize      int64
	MaxUpstreamResponseSize int64
	StaticDir               string
	LogLevel                string
	GinMode                 string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// HasAPIKey reports whether the upstream credential is present.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "3000")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("GENERATOR", "gemini")
	v.SetDefault("UPSTREAM_TIMEOUT", 30*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("MAX_UPSTREAM_RESPONSE_SIZE", 4*1024*1024)
	v.SetDefault("STATIC_DIR", "public")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GIN_MODE", "release")
}

// LoadFromEnv reads configuration from the process environment. A missing
// GEMINI_API_KEY is not an error here; requests report it instead.
func LoadFromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Host:                    v.GetString("HOST"),
		Port:                    v.GetString("PORT"),
		GeminiAPIKey:            strings.TrimSpace(v.GetString("GEMINI_API_KEY")),
		GeminiModel:             strings.TrimSpace(v.GetString("GEMINI_MODEL")),
		GeminiBaseURL:           strings.TrimRight(strings.TrimSpace(v.GetString("GEMINI_BASE_URL")), "/"),
		Generator:               strings.ToLower(strings.TrimSpace(v.GetString("GENERATOR"))),
		UpstreamTimeout:         v.GetDuration("UPSTREAM_TIMEOUT"),
		RequestTimeout:          v.GetDuration("REQUEST_TIMEOUT"),
		MaxRequestBodySize:      v.GetInt64("MAX_REQUEST_BODY_SIZE"),
		MaxUpstreamResponseSize: v.GetInt64("MAX_UPSTREAM_RESPONSE_SIZE"),
		StaticDir:               v.GetString("STATIC_DIR"),
		LogLevel:                strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		GinMode:                 v.GetString("GIN_MODE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would make the server unable to start.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxUpstreamResponseSize <= 0 {
		return fmt.Errorf("MAX_UPSTREAM_RESPONSE_SIZE must be > 0 (got %d)", c.MaxUpstreamResponseSize)
	}
	if c.UpstreamTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got upstream=%s, request=%s)",
			c.UpstreamTimeout, c.RequestTimeout)
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.GeminiBaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL must not be empty")
	}
	return nil
}
