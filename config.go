package robotrpc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/robotrpc/chunk"
	"pkt.systems/robotrpc/client"
)

const (
	// DefaultChunkSize is the chunk size used for chunked requests when
	// Config.ChunkSize is zero.
	DefaultChunkSize = chunk.DefaultChunkSize
	// DefaultCallTimeout bounds each call when Config.CallTimeout is zero.
	DefaultCallTimeout = client.DefaultCallTimeout
	// DefaultClientName prefixes generated client names.
	DefaultClientName = "robotrpc"
)

// Config describes how to reach a robot and how the client behaves once
// connected.
type Config struct {
	// Endpoint is the gRPC target, for example "robot.local:50051".
	Endpoint string
	// ServerName overrides the name verified against the robot's
	// certificate. Defaults to the endpoint host.
	ServerName string
	// Username and Password enable per-call basic credentials when Username
	// is set.
	Username string
	Password string
	// BundlePath points at a PEM client bundle (CA certificate, client
	// certificate and key). Required unless DisableTLS is set.
	BundlePath string
	DisableTLS bool

	ChunkSize      int
	ChunkChecksums bool
	CallTimeout    time.Duration

	// ClientName is the name the lease wallet acts under. A unique name is
	// generated when empty.
	ClientName string
	// LeaseFile, when set, is imported into the wallet on connect and
	// written back on close.
	LeaseFile      string
	WatchLeaseFile bool

	OTLPEndpoint   string
	MetricsListen  string
	RuntimeMetrics bool
}

// Validate normalises c and fills defaults. It does not touch the network or
// the filesystem.
func (c *Config) Validate() error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" && c.Password != "" {
		return fmt.Errorf("config: password set without username")
	}
	c.BundlePath = strings.TrimSpace(c.BundlePath)
	if !c.DisableTLS && c.BundlePath == "" {
		return fmt.Errorf("config: bundle path is required unless TLS is disabled")
	}
	switch {
	case c.ChunkSize == 0:
		c.ChunkSize = DefaultChunkSize
	case c.ChunkSize < 0:
		return fmt.Errorf("config: chunk size must be > 0")
	}
	switch {
	case c.CallTimeout == 0:
		c.CallTimeout = DefaultCallTimeout
	case c.CallTimeout < 0:
		return fmt.Errorf("config: call timeout must be >= 0")
	}
	c.ClientName = strings.TrimSpace(c.ClientName)
	c.LeaseFile = strings.TrimSpace(c.LeaseFile)
	if c.WatchLeaseFile && c.LeaseFile == "" {
		return fmt.Errorf("config: watching the lease file requires a lease file")
	}
	c.MetricsListen = strings.TrimSpace(c.MetricsListen)
	if c.RuntimeMetrics && c.MetricsListen == "" {
		return fmt.Errorf("config: runtime metrics require metrics-listen")
	}
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
	return nil
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.robotrpc), overridable with ROBOTRPC_CONFIG_DIR.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("ROBOTRPC_CONFIG_DIR")); override != "" {
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".robotrpc"), nil
}

// DefaultBundlePath returns the default client bundle location.
func DefaultBundlePath() (string, error) {
	return inConfigDir("client.pem")
}

// DefaultLeaseFilePath returns the default lease file location.
func DefaultLeaseFilePath() (string, error) {
	return inConfigDir("leases.yaml")
}

// DefaultConfigFilePath returns the default CLI configuration file.
func DefaultConfigFilePath() (string, error) {
	return inConfigDir("config.yaml")
}

func inConfigDir(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
