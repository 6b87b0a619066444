package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ConnectTimeout() != defaultConnectTimeout {
		t.Fatalf("expected default connect timeout, got %s", cfg.ConnectTimeout())
	}
	if cfg.CacheTTL() != time.Minute {
		t.Fatalf("expected one minute cache ttl, got %s", cfg.CacheTTL())
	}
}

func TestConfigValidate_RejectsInvalidValues(t *testing.T) {
	cases := map[string]func(*Config){
		"missing client name": func(c *Config) { c.ClientName = " " },
		"inverted versions":   func(c *Config) { c.Protocol.MinVersion = "17.0" },
		"negative timeout":    func(c *Config) { c.Timeouts.RequestMS = -1 },
		"negative frame size": func(c *Config) { c.Transport.MaxFrameBytes = -1 },
		"negative ttl":        func(c *Config) { c.Cache.TTLSeconds = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvConfigLoader_ReadsPrefixedVariables(t *testing.T) {
	loader := EnvConfigLoader{Environment: map[string]string{
		"BROKER_CLIENT_NAME":          "env-client",
		"BROKER_SOCKET_PATH":          "/run/broker.sock",
		"BROKER_CONNECT_TIMEOUT":      "2s",
		"BROKER_CACHE_TTL":            "5m",
		"BROKER_PROTOCOL_MAX_VERSION": "14.0",
		"OTHER_CLIENT_NAME":           "ignored",
	}}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	cfg, err := NewCfgxConfigProvider(StaticConfigLoader(raw)).Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.ClientName != "env-client" || cfg.Transport.SocketPath != "/run/broker.sock" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ConnectTimeout() != 2*time.Second || cfg.CacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected durations connect=%s ttl=%s", cfg.ConnectTimeout(), cfg.CacheTTL())
	}
	if cfg.Protocol.MaxVersion != "14.0" || cfg.Protocol.MinVersion != OldestProtocolVersion {
		t.Fatalf("unexpected protocol %+v", cfg.Protocol)
	}
}

func TestEnvConfigLoader_RejectsBadDuration(t *testing.T) {
	_, err := EnvConfigLoader{Environment: map[string]string{"BROKER_REQUEST_TIMEOUT": "soon"}}.LoadRaw(context.Background())
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestYAMLConfigLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	content := strings.Join([]string{
		"client_name: yaml-client",
		"transport:",
		"  socket_path: /var/run/idb.sock",
		"timeouts:",
		"  request_ms: 2500",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	raw, err := YAMLConfigLoader{Path: path}.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	cfg, err := NewCfgxConfigProvider(StaticConfigLoader(raw)).Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.ClientName != "yaml-client" || cfg.Transport.SocketPath != "/var/run/idb.sock" || cfg.Timeouts.RequestMS != 2500 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	missing, err := YAMLConfigLoader{Path: filepath.Join(dir, "absent.yml")}.LoadRaw(context.Background())
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected empty map for missing file, got %v %v", missing, err)
	}
	if _, err := (YAMLConfigLoader{Path: filepath.Join(dir, "broker.json")}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected extension error")
	}
}

func TestLayeredConfigLoader_LaterLayersWin(t *testing.T) {
	loader := LayeredConfigLoader{
		StaticConfigLoader(map[string]any{
			"client_name": "base",
			"timeouts":    map[string]any{"connect_ms": 100, "request_ms": 200},
		}),
		nil,
		StaticConfigLoader(map[string]any{
			"timeouts": map[string]any{"request_ms": 900},
		}),
	}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load layered: %v", err)
	}
	timeouts := raw["timeouts"].(map[string]any)
	if raw["client_name"] != "base" || timeouts["connect_ms"] != 100 || timeouts["request_ms"] != 900 {
		t.Fatalf("unexpected merge %+v", raw)
	}
}

func TestGoOptionsResolver_Precedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := DefaultConfig()
	loaded.ClientName = "loaded"
	loaded.Cache.TTLSeconds = 120
	runtime := Config{ClientName: "runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ClientName != "runtime" || resolved.Cache.TTLSeconds != 120 {
		t.Fatalf("unexpected resolution %+v", resolved)
	}
}

func TestCfgxConfigProvider_ValidationFailure(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticConfigLoader(map[string]any{
		"protocol": map[string]any{"min_version": "20.0", "max_version": "2.0"},
	}))
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected validation failure")
	}
}
