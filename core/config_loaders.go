package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "BROKER_"

type brokerEnv struct {
	ClientName         string        `env:"CLIENT_NAME"`
	ProtocolMinVersion string        `env:"PROTOCOL_MIN_VERSION"`
	ProtocolMaxVersion string        `env:"PROTOCOL_MAX_VERSION"`
	TransportKind      string        `env:"TRANSPORT_KIND"`
	SocketPath         string        `env:"SOCKET_PATH"`
	MaxFrameBytes      int           `env:"MAX_FRAME_BYTES"`
	ConnectTimeout     time.Duration `env:"CONNECT_TIMEOUT"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT"`
	CacheTTL           time.Duration `env:"CACHE_TTL"`
}

// EnvConfigLoader reads BROKER_* variables. Environment overrides the process
// environment when set.
type EnvConfigLoader struct {
	Prefix      string
	Environment map[string]string
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	options := env.Options{Prefix: prefix}
	if l.Environment != nil {
		options.Environment = l.Environment
	}
	raw := brokerEnv{}
	if err := env.ParseWithOptions(&raw, options); err != nil {
		return nil, fmt.Errorf("core: parse env: %w", err)
	}

	values := map[string]any{}
	if raw.ClientName != "" {
		values["client_name"] = raw.ClientName
	}
	protocol := map[string]any{}
	if raw.ProtocolMinVersion != "" {
		protocol["min_version"] = raw.ProtocolMinVersion
	}
	if raw.ProtocolMaxVersion != "" {
		protocol["max_version"] = raw.ProtocolMaxVersion
	}
	if len(protocol) > 0 {
		values["protocol"] = protocol
	}
	transport := map[string]any{}
	if raw.TransportKind != "" {
		transport["kind"] = raw.TransportKind
	}
	if raw.SocketPath != "" {
		transport["socket_path"] = raw.SocketPath
	}
	if raw.MaxFrameBytes != 0 {
		transport["max_frame_bytes"] = raw.MaxFrameBytes
	}
	if len(transport) > 0 {
		values["transport"] = transport
	}
	timeouts := map[string]any{}
	if raw.ConnectTimeout != 0 {
		timeouts["connect_ms"] = int(raw.ConnectTimeout / time.Millisecond)
	}
	if raw.RequestTimeout != 0 {
		timeouts["request_ms"] = int(raw.RequestTimeout / time.Millisecond)
	}
	if len(timeouts) > 0 {
		values["timeouts"] = timeouts
	}
	if raw.CacheTTL != 0 {
		values["cache"] = map[string]any{"ttl_seconds": int(raw.CacheTTL / time.Second)}
	}
	return values, nil
}

// YAMLConfigLoader reads a raw config map from a .yaml or .yml file. A
// missing file yields an empty map.
type YAMLConfigLoader struct {
	Path string
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("core: config file must have .yaml or .yml extension, got %q: invalid path", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("core: invalid yaml in %s: %w", path, err)
	}
	return values, nil
}

// LayeredConfigLoader merges loaders in order, later loaders winning per key.
type LayeredConfigLoader []RawConfigLoader

func (l LayeredConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	merged := map[string]any{}
	for _, loader := range l {
		if loader == nil {
			continue
		}
		values, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRawMaps(merged, values)
	}
	return merged, nil
}

func mergeRawMaps(target, source map[string]any) {
	for key, value := range source {
		nested, ok := value.(map[string]any)
		if !ok {
			target[key] = value
			continue
		}
		existing, ok := target[key].(map[string]any)
		if !ok {
			existing = map[string]any{}
			target[key] = existing
		}
		mergeRawMaps(existing, nested)
	}
}
