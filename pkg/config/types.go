package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds runtime key sets for use by other packages.
type RuntimeConfig struct {
	BackendKeys map[string]struct{}
}

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds the listen addresses for the three services and TLS.
type ServerConfig struct {
	GatewayAddr string    `yaml:"gateway_addr"`
	BlobAddr    string    `yaml:"blob_addr"`
	LogsAddr    string    `yaml:"logs_addr"`
	TLS         TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds the pebble path and blob chunking tunables.
type StorageConfig struct {
	DBPath    string    `yaml:"db_path"`
	ChunkSize SizeBytes `yaml:"chunk_size"`
}

// SandboxConfig holds the file API root and the tenant-editable static
// serving config used by the preview surface.
type SandboxConfig struct {
	Root         string `yaml:"root"`
	StaticConfig string `yaml:"static_config"`
}

// TerminalConfig controls the shell spawned for terminal sessions.
type TerminalConfig struct {
	Shell   string   `yaml:"shell"`
	Workdir string   `yaml:"workdir"`
	Env     []string `yaml:"env"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	TokenTTL Duration `yaml:"token_ttl"`
}

// LoggingConfig holds logging configuration. The HTTP block points file API
// operation records at the log store write endpoint.
type LoggingConfig struct {
	Level string `yaml:"level"`
	HTTP  struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Bearer  string `yaml:"bearer"`
	} `yaml:"http"`
}

// RetentionConfig holds configuration for the automatic log purge runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "1MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from
// strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// GatewayAddr returns the gateway host:port with the default applied.
func (c *Config) GatewayAddr() string {
	if a := c.Server.GatewayAddr; a != "" {
		return a
	}
	return ":8080"
}

// BlobAddr returns the blob store host:port with the default applied.
func (c *Config) BlobAddr() string {
	if a := c.Server.BlobAddr; a != "" {
		return a
	}
	return ":8787"
}

// LogsAddr returns the log store host:port with the default applied.
func (c *Config) LogsAddr() string {
	if a := c.Server.LogsAddr; a != "" {
		return a
	}
	return ":8788"
}
