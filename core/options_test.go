package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Backend.MaxTokens != 3000 || cfg.Backend.Temperature != 0.5 {
		t.Fatalf("unexpected backend defaults: %+v", cfg.Backend)
	}
	if cfg.Slack.StartProcessDelay != 5*time.Second {
		t.Fatalf("expected 5s start process delay, got %s", cfg.Slack.StartProcessDelay)
	}
}

func TestConfigValidate_RejectsIncompleteModes(t *testing.T) {
	cases := map[string]func(*Config){
		"invoke without url": func(cfg *Config) {
			cfg.Dispatch.Mode = DispatchModeInvoke
		},
		"relay without token": func(cfg *Config) {
			cfg.Dispatch.Role = RoleRelay
			cfg.Dispatch.InvokeURL = "http://worker/slack/events"
		},
		"openai without key": func(cfg *Config) {
			cfg.Backend.Provider = BackendOpenAI
		},
		"sqlite without dsn": func(cfg *Config) {
			cfg.Store.Driver = StoreDriverSQLite
		},
		"unknown mode": func(cfg *Config) {
			cfg.Dispatch.Mode = "carrier-pigeon"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !HasTextCode(err, ErrorConfigInvalid) {
				t.Fatalf("expected config invalid code, got %v", err)
			}
		})
	}
}

func TestConfigResolver_LayerPrecedence(t *testing.T) {
	file := Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Backend: BackendConfig{ModelID: "file-model"},
	}
	environment := Config{
		Backend: BackendConfig{ModelID: "env-model"},
	}
	runtime := Config{
		Dispatch: DispatchConfig{Mode: DispatchModeQueue},
	}

	resolved, err := ConfigResolver{}.Resolve(DefaultConfig(), file, environment, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.HTTP.Addr != ":8080" {
		t.Fatalf("expected file addr, got %q", resolved.HTTP.Addr)
	}
	if resolved.Backend.ModelID != "env-model" {
		t.Fatalf("expected env model to win, got %q", resolved.Backend.ModelID)
	}
	if resolved.Dispatch.Mode != DispatchModeQueue {
		t.Fatalf("expected runtime mode, got %q", resolved.Dispatch.Mode)
	}
	if resolved.Backend.MaxTokens != 3000 {
		t.Fatalf("expected default max tokens to survive, got %d", resolved.Backend.MaxTokens)
	}
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	payload := []byte("service_name: file-dispatch\nslack:\n  start_process_delay: 2s\nbackend:\n  timeout: 30s\n")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(context.Background(),
		FileConfigLoader{Path: path},
		EnvConfigLoader{Environment: map[string]string{
			"SLACK_DISPATCH_BACKEND_TIMEOUT": "45s",
			"SLACK_DISPATCH_DISPATCH_MODE":   "queue",
		}},
		Config{},
	)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "file-dispatch" {
		t.Fatalf("expected file service name, got %q", cfg.ServiceName)
	}
	if cfg.Slack.StartProcessDelay != 2*time.Second {
		t.Fatalf("expected 2s delay, got %s", cfg.Slack.StartProcessDelay)
	}
	if cfg.Backend.Timeout != 45*time.Second {
		t.Fatalf("expected env timeout override, got %s", cfg.Backend.Timeout)
	}
	if cfg.Dispatch.Mode != DispatchModeQueue {
		t.Fatalf("expected queue mode, got %q", cfg.Dispatch.Mode)
	}
}

func TestFileConfigLoader_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := (FileConfigLoader{Path: missing, Optional: true}).Load(context.Background()); err != nil {
		t.Fatalf("optional missing file should load empty: %v", err)
	}
	_, err := (FileConfigLoader{Path: missing}).Load(context.Background())
	if err == nil || !HasTextCode(err, ErrorConfigInvalid) {
		t.Fatalf("expected config invalid error, got %v", err)
	}
}

func TestLoadConfig_ExplicitZeroValuesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	payload := []byte("slack:\n  skip_verification: true\nbackend:\n  temperature: 0.9\n")
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(context.Background(),
		FileConfigLoader{Path: path},
		EnvConfigLoader{Environment: map[string]string{
			"SLACK_DISPATCH_BACKEND_TEMPERATURE":     "0",
			"SLACK_DISPATCH_SLACK_SKIP_VERIFICATION": "false",
		}},
		Config{},
	)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend.Temperature != 0 {
		t.Fatalf("expected env temperature 0 to win, got %v", cfg.Backend.Temperature)
	}
	if cfg.Slack.SkipVerification {
		t.Fatalf("expected env skip_verification=false to win")
	}
}

func TestConfigResolver_ZeroFromFileLayerOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  temperature: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	layer, err := FileConfigLoader{Path: path}.LoadLayer(context.Background())
	if err != nil {
		t.Fatalf("load layer: %v", err)
	}
	if !layer.Keys["backend.temperature"] {
		t.Fatalf("expected backend.temperature recorded as set, got %v", layer.Keys)
	}

	resolved, err := ConfigResolver{}.ResolveLayers(DefaultConfig(), layer, ConfigLayer{}, ConfigLayer{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Backend.Temperature != 0 {
		t.Fatalf("expected file temperature 0 to override default, got %v", resolved.Backend.Temperature)
	}

	unset, err := ConfigResolver{}.ResolveLayers(DefaultConfig(), ConfigLayer{}, ConfigLayer{}, ConfigLayer{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if unset.Backend.Temperature != 0.5 {
		t.Fatalf("expected default temperature without explicit keys, got %v", unset.Backend.Temperature)
	}
}

func TestEnvKeyPaths_CoversNestedSections(t *testing.T) {
	paths := envKeyPaths(EnvPrefix)
	if paths["SLACK_DISPATCH_BACKEND_TEMPERATURE"] != "backend.temperature" {
		t.Fatalf("unexpected backend mapping: %q", paths["SLACK_DISPATCH_BACKEND_TEMPERATURE"])
	}
	if paths["SLACK_DISPATCH_SERVICE_NAME"] != "service_name" {
		t.Fatalf("unexpected top-level mapping: %q", paths["SLACK_DISPATCH_SERVICE_NAME"])
	}
	if paths["SLACK_DISPATCH_DISPATCH_DRAIN_TIMEOUT"] != "dispatch.drain_timeout" {
		t.Fatalf("unexpected dispatch mapping: %q", paths["SLACK_DISPATCH_DISPATCH_DRAIN_TIMEOUT"])
	}
}
