package awx

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds a single API round trip.
const DefaultRequestTimeout = 30 * time.Second

// Config configures the AWX adapter.
type Config struct {
	// BaseURL is the root of the AWX API, e.g. "https://awx.example.com".
	BaseURL string

	// Username and Password authenticate the token request. The bearer
	// token itself is managed by the adapter.
	Username string
	Password string

	// VerifySSL disables certificate verification when false. Lab AWX
	// installs commonly run on self-signed certificates.
	VerifySSL bool

	// RequestTimeout bounds a single API round trip. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RateLimit is the maximum requests per second to the AWX API.
	// Zero means unlimited.
	RateLimit float64
}

// Validate checks that the config can produce a working client.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("awx base url is required")
	}
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return fmt.Errorf("awx username and password are required")
	}
	return nil
}
