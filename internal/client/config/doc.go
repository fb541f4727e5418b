// Package config loads runtime configuration for the SafeShare CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected with -c / --config.
//  3. Command-line flags bound by BindFlags, which override earlier values.
//
// Supported flags
//
//	-a string     address:port of the signaling server
//	-s strings    ICE server URLs (comma separated)
//	-o string     directory received files are written to
//	-t duration   signaling round-trip timeout
//	--history     transfer history database path
//	--linger      how long a sender waits for the receiver to hang up
//	-l string     log level
//
// # File schema
//
// Durations are timex.Duration, so values can be strings like "15s" or
// integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "ice_servers": ["stun:stun.l.google.com:19302"],
//	  "signal_timeout": "15s"
//	}
package config
