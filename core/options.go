package core

import (
	"context"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SLACK_DISPATCH_"

// ConfigLayer is one partial configuration source. Keys holds the dotted
// paths the source set explicitly, so zero values such as a temperature of 0
// or skip_verification false still override lower layers.
type ConfigLayer struct {
	Config Config
	Keys   map[string]bool
}

// FileConfigLoader reads a YAML document. A missing optional file yields an
// empty layer.
type FileConfigLoader struct {
	Path     string
	Optional bool
}

func (l FileConfigLoader) Load(ctx context.Context) (Config, error) {
	layer, err := l.LoadLayer(ctx)
	return layer.Config, err
}

func (l FileConfigLoader) LoadLayer(context.Context) (ConfigLayer, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return ConfigLayer{}, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return ConfigLayer{}, nil
		}
		return ConfigLayer{}, WrapError(err, goerrors.CategoryValidation, "core: read config file", ErrorConfigInvalid, map[string]any{
			"path": path,
		})
	}
	var cfg Config
	var raw map[string]any
	err = yaml.Unmarshal(payload, &cfg)
	if err == nil {
		err = yaml.Unmarshal(payload, &raw)
	}
	if err != nil {
		return ConfigLayer{}, WrapError(err, goerrors.CategoryValidation, "core: parse config file", ErrorConfigInvalid, map[string]any{
			"path": path,
		})
	}
	keys := map[string]bool{}
	collectKeys("", raw, keys)
	return ConfigLayer{Config: cfg, Keys: keys}, nil
}

func collectKeys(prefix string, raw map[string]any, keys map[string]bool) {
	for key, value := range raw {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			collectKeys(path, nested, keys)
			continue
		}
		keys[path] = true
	}
}

// EnvConfigLoader reads SLACK_DISPATCH_* variables. Environment overrides the
// process environment when set.
type EnvConfigLoader struct {
	Prefix      string
	Environment map[string]string
}

func (l EnvConfigLoader) Load(ctx context.Context) (Config, error) {
	layer, err := l.LoadLayer(ctx)
	return layer.Config, err
}

func (l EnvConfigLoader) LoadLayer(context.Context) (ConfigLayer, error) {
	prefix := l.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	paths := envKeyPaths(prefix)
	keys := map[string]bool{}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      prefix,
		Environment: l.Environment,
		OnSet: func(tag string, _ any, isDefault bool) {
			if path, ok := paths[tag]; ok && !isDefault {
				keys[path] = true
			}
		},
	}); err != nil {
		return ConfigLayer{}, WrapError(err, goerrors.CategoryValidation, "core: parse environment config", ErrorConfigInvalid, nil)
	}
	return ConfigLayer{Config: cfg, Keys: keys}, nil
}

// envKeyPaths maps each environment variable name to its dotted config path.
func envKeyPaths(prefix string) map[string]string {
	paths := map[string]string{}
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		field := root.Field(i)
		name := field.Tag.Get("koanf")
		if field.Type.Kind() != reflect.Struct {
			paths[prefix+field.Tag.Get("env")] = name
			continue
		}
		sectionPrefix := prefix + field.Tag.Get("envPrefix")
		for j := 0; j < field.Type.NumField(); j++ {
			sub := field.Type.Field(j)
			paths[sectionPrefix+sub.Tag.Get("env")] = name + "." + sub.Tag.Get("koanf")
		}
	}
	return paths
}

// LoadConfig resolves defaults, the YAML file, the environment and runtime
// overrides in increasing order of precedence.
func LoadConfig(ctx context.Context, file FileConfigLoader, environment EnvConfigLoader, runtime Config) (Config, error) {
	fileLayer, err := file.LoadLayer(ctx)
	if err != nil {
		return Config{}, err
	}
	envLayer, err := environment.LoadLayer(ctx)
	if err != nil {
		return Config{}, err
	}
	return ConfigResolver{}.ResolveLayers(DefaultConfig(), fileLayer, envLayer, ConfigLayer{Config: runtime})
}

// ConfigResolver merges layers with go-options and builds the final value
// with cfgx.
type ConfigResolver struct{}

// Resolve merges plain configs. Only non-zero values override here; use
// ResolveLayers when a source must be able to set a zero value.
func (r ConfigResolver) Resolve(defaults Config, file Config, environment Config, runtime Config) (Config, error) {
	return r.ResolveLayers(defaults, ConfigLayer{Config: file}, ConfigLayer{Config: environment}, ConfigLayer{Config: runtime})
}

func (ConfigResolver) ResolveLayers(defaults Config, file ConfigLayer, environment ConfigLayer, runtime ConfigLayer) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true, nil),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("file", 10),
			configToLayerMap(file.Config, false, file.Keys),
			opts.WithSnapshotID[map[string]any]("file"),
		),
		opts.NewLayer(
			opts.NewScope("env", 20),
			configToLayerMap(environment.Config, false, environment.Keys),
			opts.WithSnapshotID[map[string]any]("env"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 30),
			configToLayerMap(runtime.Config, false, runtime.Keys),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, WrapError(err, goerrors.CategoryInternal, "core: options stack build failed", ErrorConfigInvalid, nil)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, WrapError(err, goerrors.CategoryInternal, "core: options merge failed", ErrorConfigInvalid, nil)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

type layerSection struct {
	name   string
	all    bool
	keys   map[string]bool
	values map[string]any
}

func (s layerSection) put(key string, value any, nonZero bool) {
	if s.all || nonZero || s.keys[s.name+"."+key] {
		s.values[key] = value
	}
}

func configToLayerMap(cfg Config, includeZero bool, keys map[string]bool) map[string]any {
	section := func(name string) layerSection {
		return layerSection{name: name, all: includeZero, keys: keys, values: map[string]any{}}
	}
	layer := map[string]any{}
	if includeZero || keys["service_name"] || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	http := section("http")
	http.put("addr", cfg.HTTP.Addr, cfg.HTTP.Addr != "")
	http.put("events_path", cfg.HTTP.EventsPath, cfg.HTTP.EventsPath != "")
	http.put("lazy_path", cfg.HTTP.LazyPath, cfg.HTTP.LazyPath != "")
	http.put("read_timeout", cfg.HTTP.ReadTimeout, cfg.HTTP.ReadTimeout != 0)
	http.put("write_timeout", cfg.HTTP.WriteTimeout, cfg.HTTP.WriteTimeout != 0)
	http.put("shutdown_timeout", cfg.HTTP.ShutdownTimeout, cfg.HTTP.ShutdownTimeout != 0)
	http.put("max_body_bytes", cfg.HTTP.MaxBodyBytes, cfg.HTTP.MaxBodyBytes != 0)

	slack := section("slack")
	slack.put("signing_secret_id", cfg.Slack.SigningSecretID, cfg.Slack.SigningSecretID != "")
	slack.put("token_id", cfg.Slack.TokenID, cfg.Slack.TokenID != "")
	slack.put("skip_verification", cfg.Slack.SkipVerification, cfg.Slack.SkipVerification)
	slack.put("status_text", cfg.Slack.StatusText, cfg.Slack.StatusText != "")
	slack.put("status_timeout", cfg.Slack.StatusTimeout, cfg.Slack.StatusTimeout != 0)
	slack.put("api_url", cfg.Slack.APIURL, cfg.Slack.APIURL != "")
	slack.put("start_process_name", cfg.Slack.StartProcessName, cfg.Slack.StartProcessName != "")
	slack.put("start_process_delay", cfg.Slack.StartProcessDelay, cfg.Slack.StartProcessDelay != 0)
	slack.put("command_failure_text", cfg.Slack.CommandFailureText, cfg.Slack.CommandFailureText != "")

	secrets := section("secrets")
	secrets.put("backend", cfg.Secrets.Backend, cfg.Secrets.Backend != "")
	secrets.put("dir", cfg.Secrets.Dir, cfg.Secrets.Dir != "")
	secrets.put("app_key_env", cfg.Secrets.AppKeyEnv, cfg.Secrets.AppKeyEnv != "")
	secrets.put("cache_ttl", cfg.Secrets.CacheTTL, cfg.Secrets.CacheTTL != 0)

	dispatch := section("dispatch")
	dispatch.put("role", cfg.Dispatch.Role, cfg.Dispatch.Role != "")
	dispatch.put("mode", cfg.Dispatch.Mode, cfg.Dispatch.Mode != "")
	dispatch.put("invoke_url", cfg.Dispatch.InvokeURL, cfg.Dispatch.InvokeURL != "")
	dispatch.put("invoke_token", cfg.Dispatch.InvokeToken, cfg.Dispatch.InvokeToken != "")
	dispatch.put("invoke_timeout", cfg.Dispatch.InvokeTimeout, cfg.Dispatch.InvokeTimeout != 0)
	dispatch.put("queue_size", cfg.Dispatch.QueueSize, cfg.Dispatch.QueueSize != 0)
	dispatch.put("workers", cfg.Dispatch.Workers, cfg.Dispatch.Workers != 0)
	dispatch.put("task_timeout", cfg.Dispatch.TaskTimeout, cfg.Dispatch.TaskTimeout != 0)
	dispatch.put("claim_ttl", cfg.Dispatch.ClaimTTL, cfg.Dispatch.ClaimTTL != 0)
	dispatch.put("drain_timeout", cfg.Dispatch.DrainTimeout, cfg.Dispatch.DrainTimeout != 0)

	backend := section("backend")
	backend.put("provider", cfg.Backend.Provider, cfg.Backend.Provider != "")
	backend.put("model_id", cfg.Backend.ModelID, cfg.Backend.ModelID != "")
	backend.put("max_tokens", cfg.Backend.MaxTokens, cfg.Backend.MaxTokens != 0)
	backend.put("temperature", cfg.Backend.Temperature, cfg.Backend.Temperature != 0)
	backend.put("system_prompt", cfg.Backend.SystemPrompt, cfg.Backend.SystemPrompt != "")
	backend.put("timeout", cfg.Backend.Timeout, cfg.Backend.Timeout != 0)
	backend.put("api_key_id", cfg.Backend.APIKeyID, cfg.Backend.APIKeyID != "")
	backend.put("base_url", cfg.Backend.BaseURL, cfg.Backend.BaseURL != "")
	backend.put("region", cfg.Backend.Region, cfg.Backend.Region != "")
	backend.put("fallback_text", cfg.Backend.FallbackText, cfg.Backend.FallbackText != "")

	store := section("store")
	store.put("driver", cfg.Store.Driver, cfg.Store.Driver != "")
	store.put("dsn", cfg.Store.DSN, cfg.Store.DSN != "")
	store.put("debug", cfg.Store.Debug, cfg.Store.Debug)

	logs := section("log")
	logs.put("level", cfg.Log.Level, cfg.Log.Level != "")
	logs.put("format", cfg.Log.Format, cfg.Log.Format != "")

	for _, sec := range []layerSection{http, slack, secrets, dispatch, backend, store, logs} {
		if len(sec.values) > 0 {
			layer[sec.name] = sec.values
		}
	}
	return layer
}
