package core

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default endpoints for the Kraken Spot API.
const (
	DefaultBaseURL = "https://api.kraken.com"
	DefaultWSURL   = "wss://ws.kraken.com/v2"
)

// Credentials holds API authentication material. The secret is the
// base64-encoded signing key as issued by the exchange; it stays opaque
// until the dispatch engine decodes it. Absent credentials mean the
// client is public-only.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key"`
	// APISecret is the base64-encoded private signing key.
	APISecret string `json:"api_secret"`
}

// Config contains all options for a Kraken client: endpoints, credentials,
// networking, rate limiting, and circuit breaker settings.
type Config struct {
	Credentials *Credentials `json:"credentials,omitempty"`

	// BaseURL is the REST API base URL.
	BaseURL string `json:"base_url" validate:"required,url"`
	// WSURL is the WebSocket v2 endpoint.
	WSURL string `json:"ws_url" validate:"required,url"`

	// Timeout is the maximum duration for one HTTP request.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`
	// MaxRetries controls transport-level retries. The dispatch engine
	// itself never retries; a non-zero value is caller-opted policy
	// applied inside the HTTP client.
	MaxRetries   int           `json:"max_retries" validate:"min=0"`
	RetryWaitMin time.Duration `json:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" validate:"min=0"`

	// RateLimitPerSec is the steady token refill rate shared by all
	// requests on one transport.
	RateLimitPerSec float64 `json:"rate_limit_per_sec" validate:"gt=0"`
	// RateLimitBurst is the bucket capacity.
	RateLimitBurst int `json:"rate_limit_burst" validate:"min=1"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config with production endpoints and rate limits
// matching Kraken's starter tier: 1 request per second sustained with a
// burst of 5, 10s request timeout, no transport retries.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		WSURL:   DefaultWSURL,

		Timeout:      10 * time.Second,
		MaxRetries:   0,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 1 * time.Second,

		RateLimitPerSec: 1,
		RateLimitBurst:  5,

		CircuitBreakerEnabled:          false,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

// FromEnv returns a DefaultConfig overridden by the KRAKEN_API_KEY,
// KRAKEN_API_SECRET, KRAKEN_REST_URL and KRAKEN_WS_URL environment
// variables where set.
func FromEnv() *Config {
	c := DefaultConfig()
	if key, secret := os.Getenv("KRAKEN_API_KEY"), os.Getenv("KRAKEN_API_SECRET"); key != "" && secret != "" {
		c.Credentials = &Credentials{APIKey: key, APISecret: secret}
	}
	if url := os.Getenv("KRAKEN_REST_URL"); url != "" {
		c.BaseURL = url
	}
	if url := os.Getenv("KRAKEN_WS_URL"); url != "" {
		c.WSURL = url
	}
	return c
}

var validate = validator.New()

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// HasCredentials reports whether the config carries a usable key pair.
func (c *Config) HasCredentials() bool {
	return c.Credentials != nil && c.Credentials.APIKey != "" && c.Credentials.APISecret != ""
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithBaseURL overrides the REST base URL and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithWSURL overrides the WebSocket URL and returns the config for chaining.
func (c *Config) WithWSURL(url string) *Config {
	c.WSURL = url
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit sets the steady rate and burst capacity and returns the
// config for chaining.
func (c *Config) WithRateLimit(perSec float64, burst int) *Config {
	c.RateLimitPerSec = perSec
	c.RateLimitBurst = burst
	return c
}
