package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/safeshare/internal/flagx"
)

// parseFlags overlays command-line flags:
//
//	-a  gRPC bind address           -w  HTTP bind address
//	-d  PostgreSQL DSN              -o  allowed origin
//	-r  retention (e.g. 2h)         -i  sweep interval
//	-x  abandoned retention, 0=off  -l  log level
//	-u -p -b -g -e                  S3 user, password, bucket, region, endpoint
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-w", "-d", "-o", "-r", "-i", "-x", "-l", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "w", config.EndpointAddrHTTP, "HTTP (health, websocket) address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN, empty for in-memory store")
	fs.StringVar(&config.AllowedOrigin, "o", config.AllowedOrigin, "allowed client origin, empty for any")
	fs.DurationVar(&config.Retention, "r", config.Retention, "retention of pending and completed sessions")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "sweep interval")
	fs.DurationVar(&config.AbandonedRetention, "x", config.AbandonedRetention, "retention of abandoned connecting/active sessions, 0 disables")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket, empty disables archiving")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	return fs.Parse(args)
}
