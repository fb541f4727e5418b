package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeTemp(t, "cfg.json", `{
		"endpoint_addr_grpc": "0.0.0.0:6000",
		"database_dsn": "postgres://u:p@db/safeshare",
		"allowed_origin": "",
		"retention": "90m",
		"sweep_interval": 60000000000,
		"max_candidates_per_side": 32,
		"s3_bucket": "archive"
	}`)

	c := &Config{}
	c.LoadDefaults()
	require.NoError(t, loadFile(path, c))

	assert.Equal(t, "0.0.0.0:6000", c.EndpointAddrGRPC)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP, "absent keys keep defaults")
	assert.Equal(t, "postgres://u:p@db/safeshare", c.DatabaseDSN)
	assert.Empty(t, c.AllowedOrigin, "explicit empty origin allows any")
	assert.Equal(t, 90*time.Minute, c.Retention)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, 32, c.MaxCandidatesPerSide)
	assert.Equal(t, 5, c.MaxCodeAttempts)
	assert.Equal(t, "archive", c.S3Bucket)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeTemp(t, "cfg.yml", `
endpoint_addr_http: ":9999"
abandoned_retention: 12h
code_length: 8
s3_region: eu-central-1
`)

	c := &Config{}
	c.LoadDefaults()
	require.NoError(t, loadFile(path, c))

	assert.Equal(t, ":9999", c.EndpointAddrHTTP)
	assert.Equal(t, 12*time.Hour, c.AbandonedRetention)
	assert.Equal(t, 8, c.CodeLength)
	assert.Equal(t, "eu-central-1", c.S3Region)
	assert.Equal(t, "http://localhost:3000", c.AllowedOrigin)
}

func TestLoadFile_Errors(t *testing.T) {
	c := &Config{}

	assert.Error(t, loadFile(writeTemp(t, "bad.json", `{ not json`), c))
	assert.Error(t, loadFile(writeTemp(t, "bad.yaml", "retention: [1, 2]\n"), c))
	assert.Error(t, loadFile(filepath.Join(t.TempDir(), "missing.json"), c))
}

func TestParseFile_NoFlagNoChange(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-a", ":1"}

	c := &Config{EndpointAddrGRPC: "keep"}
	require.NoError(t, parseFile(c))
	assert.Equal(t, "keep", c.EndpointAddrGRPC)
}
