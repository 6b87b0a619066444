package core

import (
	"fmt"
	"strings"
	"time"
)

type ProtocolConfig struct {
	MinVersion string `koanf:"min_version" mapstructure:"min_version"`
	MaxVersion string `koanf:"max_version" mapstructure:"max_version"`
}

type TransportConfig struct {
	Kind          string `koanf:"kind" mapstructure:"kind"`
	SocketPath    string `koanf:"socket_path" mapstructure:"socket_path"`
	MaxFrameBytes int    `koanf:"max_frame_bytes" mapstructure:"max_frame_bytes"`
}

type TimeoutConfig struct {
	ConnectMS int `koanf:"connect_ms" mapstructure:"connect_ms"`
	RequestMS int `koanf:"request_ms" mapstructure:"request_ms"`
}

type CacheConfig struct {
	TTLSeconds int `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
}

type Config struct {
	ClientName string          `koanf:"client_name" mapstructure:"client_name"`
	Protocol   ProtocolConfig  `koanf:"protocol" mapstructure:"protocol"`
	Transport  TransportConfig `koanf:"transport" mapstructure:"transport"`
	Timeouts   TimeoutConfig   `koanf:"timeouts" mapstructure:"timeouts"`
	Cache      CacheConfig     `koanf:"cache" mapstructure:"cache"`
}

const (
	DefaultTransportKind = "unix"
	DefaultSocketPath    = "/tmp/identity-broker.sock"
	DefaultMaxFrameBytes = 1 << 20
)

func DefaultConfig() Config {
	return Config{
		ClientName: "broker-client",
		Protocol: ProtocolConfig{
			MinVersion: OldestProtocolVersion,
			MaxVersion: CurrentProtocolVersion,
		},
		Transport: TransportConfig{
			Kind:          DefaultTransportKind,
			SocketPath:    DefaultSocketPath,
			MaxFrameBytes: DefaultMaxFrameBytes,
		},
		Timeouts: TimeoutConfig{
			ConnectMS: int(defaultConnectTimeout / time.Millisecond),
			RequestMS: 30000,
		},
		Cache: CacheConfig{TTLSeconds: 60},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("core: client_name is required")
	}
	if c.Protocol.MinVersion != "" && c.Protocol.MaxVersion != "" &&
		CompareProtocolVersions(c.Protocol.MinVersion, c.Protocol.MaxVersion) > 0 {
		return fmt.Errorf("core: protocol min_version %q is invalid, above max_version %q", c.Protocol.MinVersion, c.Protocol.MaxVersion)
	}
	if c.Timeouts.ConnectMS < 0 || c.Timeouts.RequestMS < 0 {
		return fmt.Errorf("core: timeouts must not be negative, invalid value")
	}
	if c.Transport.MaxFrameBytes < 0 {
		return fmt.Errorf("core: transport max_frame_bytes is invalid")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("core: cache ttl_seconds is invalid")
	}
	return nil
}

func (c Config) ConnectTimeout() time.Duration {
	if c.Timeouts.ConnectMS <= 0 {
		return defaultConnectTimeout
	}
	return time.Duration(c.Timeouts.ConnectMS) * time.Millisecond
}

// RequestTimeout bounds a single request/response exchange. Zero disables it.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeouts.RequestMS) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
