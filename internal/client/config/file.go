package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/safeshare/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is a DTO used exclusively for unmarshalling the config file.
type FileConfig struct {
	ServerEndpointAddr string          `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	ICEServers         []string        `json:"ice_servers" yaml:"ice_servers"`
	DownloadDir        string          `json:"download_dir" yaml:"download_dir"`
	HistoryDSN         string          `json:"history_dsn" yaml:"history_dsn"`
	LogLevel           string          `json:"log_level" yaml:"log_level"`
	SignalTimeout      *timex.Duration `json:"signal_timeout" yaml:"signal_timeout"`
	LingerTimeout      *timex.Duration `json:"linger_timeout" yaml:"linger_timeout"`
	LoopbackCandidates *bool           `json:"loopback_candidates" yaml:"loopback_candidates"`
}

func loadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.ServerEndpointAddr != "" {
		c.ServerEndpointAddr = fc.ServerEndpointAddr
	}
	if fc.ICEServers != nil {
		c.ICEServers = fc.ICEServers
	}
	if fc.DownloadDir != "" {
		c.DownloadDir = fc.DownloadDir
	}
	if fc.HistoryDSN != "" {
		c.HistoryDSN = fc.HistoryDSN
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.SignalTimeout != nil {
		c.SignalTimeout = fc.SignalTimeout.Duration
	}
	if fc.LingerTimeout != nil {
		c.LingerTimeout = fc.LingerTimeout.Duration
	}
	if fc.LoopbackCandidates != nil {
		c.LoopbackCandidates = *fc.LoopbackCandidates
	}
	return nil
}
