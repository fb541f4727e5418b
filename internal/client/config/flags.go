package config

import "github.com/spf13/pflag"

// BindFlags registers the client flags on fs, writing straight into c.
// Values already in c become the flag defaults, so bind after the file
// overlay.
func BindFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVarP(&c.ServerEndpointAddr, "addr", "a", c.ServerEndpointAddr, "address and port of the signaling server")
	fs.StringSliceVarP(&c.ICEServers, "ice", "s", c.ICEServers, "ICE server URLs")
	fs.StringVarP(&c.DownloadDir, "out", "o", c.DownloadDir, "directory for received files")
	fs.DurationVarP(&c.SignalTimeout, "timeout", "t", c.SignalTimeout, "signaling round-trip timeout")
	fs.StringVar(&c.HistoryDSN, "history", c.HistoryDSN, "transfer history database")
	fs.DurationVar(&c.LingerTimeout, "linger", c.LingerTimeout, "how long a sender waits for the receiver to disconnect")
	fs.BoolVar(&c.LoopbackCandidates, "loopback", c.LoopbackCandidates, "offer loopback ICE candidates (same-host transfers)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "log level (debug, info, warn, error)")
}
