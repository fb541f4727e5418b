package config

import "time"

// Config holds runtime settings for the SafeShare CLI.
type Config struct {
	ServerEndpointAddr string
	ICEServers         []string
	DownloadDir        string
	HistoryDSN         string
	LogLevel           string
	SignalTimeout      time.Duration
	LingerTimeout      time.Duration

	// LoopbackCandidates offers 127.0.0.1 ICE candidates, for two peers on
	// one host without a STUN server.
	LoopbackCandidates bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.ICEServers = []string{"stun:stun.l.google.com:19302"}
	c.DownloadDir = "."
	c.HistoryDSN = "history.db"
	c.LogLevel = "warn"
	c.SignalTimeout = 15 * time.Second
	c.LingerTimeout = 10 * time.Second
}

// LoadConfig applies defaults and then the config file at path, if any.
// Flags are applied later by the command that owns them.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
