// Package config handles configuration for the signaling server: defaults,
// then an optional JSON or YAML file (-c / -config), then command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds runtime settings for the signaling server.
//
// An empty DatabaseDSN selects the in-memory session store. An empty
// S3Bucket disables archiving of swept sessions. An empty AllowedOrigin
// accepts every origin.
type Config struct {
	EndpointAddrGRPC string
	EndpointAddrHTTP string
	DatabaseDSN      string
	AllowedOrigin    string
	LogLevel         string

	Retention          time.Duration
	SweepInterval      time.Duration
	AbandonedRetention time.Duration

	CodeLength           int
	MaxCodeAttempts      int
	MaxCandidatesPerSide int

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrHTTP = ":8080"
	c.DatabaseDSN = ""
	c.AllowedOrigin = "http://localhost:3000"
	c.LogLevel = "info"
	c.Retention = 2 * time.Hour
	c.SweepInterval = time.Hour
	c.AbandonedRetention = 0
	c.CodeLength = 6
	c.MaxCodeAttempts = 5
	c.MaxCandidatesPerSide = 128
	c.S3Region = "us-east-1"
}

// LoadConfig applies defaults, the optional config file and finally the
// command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep interval must be positive, got %s", ErrInvalidConfig, c.SweepInterval)
	case c.Retention <= 0:
		return fmt.Errorf("%w: retention must be positive, got %s", ErrInvalidConfig, c.Retention)
	case c.AbandonedRetention < 0:
		return fmt.Errorf("%w: abandoned retention must not be negative, got %s", ErrInvalidConfig, c.AbandonedRetention)
	case c.CodeLength <= 0:
		return fmt.Errorf("%w: code length must be positive, got %d", ErrInvalidConfig, c.CodeLength)
	case c.MaxCodeAttempts <= 0:
		return fmt.Errorf("%w: code attempts must be positive, got %d", ErrInvalidConfig, c.MaxCodeAttempts)
	}
	return nil
}

// OriginAllowed reports whether a client presenting origin may connect.
// Clients that send no origin at all (native peers) are always accepted.
func (c *Config) OriginAllowed(origin string) bool {
	return c.AllowedOrigin == "" || origin == "" || origin == c.AllowedOrigin
}
