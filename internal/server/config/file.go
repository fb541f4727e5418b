package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/safeshare/internal/flagx"
	"github.com/dmitrijs2005/safeshare/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations accept "2h" or
// integer nanoseconds. Absent keys keep the current value.
type FileConfig struct {
	EndpointAddrGRPC     string          `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrHTTP     string          `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN          string          `json:"database_dsn" yaml:"database_dsn"`
	AllowedOrigin        *string         `json:"allowed_origin" yaml:"allowed_origin"`
	LogLevel             string          `json:"log_level" yaml:"log_level"`
	Retention            *timex.Duration `json:"retention" yaml:"retention"`
	SweepInterval        *timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	AbandonedRetention   *timex.Duration `json:"abandoned_retention" yaml:"abandoned_retention"`
	CodeLength           int             `json:"code_length" yaml:"code_length"`
	MaxCodeAttempts      int             `json:"max_code_attempts" yaml:"max_code_attempts"`
	MaxCandidatesPerSide int             `json:"max_candidates_per_side" yaml:"max_candidates_per_side"`
	S3RootUser           string          `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword       string          `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket             string          `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region             string          `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint       string          `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

func parseFile(config *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}
	return loadFile(path, config)
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	if fc.AllowedOrigin != nil {
		c.AllowedOrigin = *fc.AllowedOrigin
	}
	setString(&c.LogLevel, fc.LogLevel)
	if fc.Retention != nil {
		c.Retention = fc.Retention.Duration
	}
	if fc.SweepInterval != nil {
		c.SweepInterval = fc.SweepInterval.Duration
	}
	if fc.AbandonedRetention != nil {
		c.AbandonedRetention = fc.AbandonedRetention.Duration
	}
	setInt(&c.CodeLength, fc.CodeLength)
	setInt(&c.MaxCodeAttempts, fc.MaxCodeAttempts)
	setInt(&c.MaxCandidatesPerSide, fc.MaxCandidatesPerSide)
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
