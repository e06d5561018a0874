package core

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DispatchModeInProcess = "inprocess"
	DispatchModeQueue     = "queue"
	DispatchModeInvoke    = "invoke"

	RoleReceiver = "receiver"
	RoleRelay    = "relay"

	BackendBedrock   = "bedrock"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"

	SecretsBackendEnv  = "env"
	SecretsBackendFile = "file"

	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

const (
	DefaultStartProcessCommand = "/start-process"
	DefaultStatusText          = "is typing..."
	DefaultSystemPrompt        = "You are a helpful Slack bot assistant. Respond in a friendly and concise manner."
	DefaultBedrockModelID      = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultFallbackText        = "Sorry, there was an error communicating with AWS Bedrock. The good news is that your Slack App works! If you want to get Bedrock working, check that you've <https://docs.aws.amazon.com/bedrock/latest/userguide/model-access-modify.html|enabled model access> and are using the correct <https://docs.aws.amazon.com/bedrock/latest/userguide/cross-region-inference.html#cross-region-inference-use|inference profile>. If both of these are true, there is some other error. Check your lambda logs for more info."
)

type HTTPConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr" yaml:"addr" env:"ADDR"`
	EventsPath      string        `koanf:"events_path" mapstructure:"events_path" yaml:"events_path" env:"EVENTS_PATH"`
	LazyPath        string        `koanf:"lazy_path" mapstructure:"lazy_path" yaml:"lazy_path" env:"LAZY_PATH"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes" yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

type SlackConfig struct {
	SigningSecretID    string        `koanf:"signing_secret_id" mapstructure:"signing_secret_id" yaml:"signing_secret_id" env:"SIGNING_SECRET_ID"`
	TokenID            string        `koanf:"token_id" mapstructure:"token_id" yaml:"token_id" env:"TOKEN_ID"`
	SkipVerification   bool          `koanf:"skip_verification" mapstructure:"skip_verification" yaml:"skip_verification" env:"SKIP_VERIFICATION"`
	StatusText         string        `koanf:"status_text" mapstructure:"status_text" yaml:"status_text" env:"STATUS_TEXT"`
	StatusTimeout      time.Duration `koanf:"status_timeout" mapstructure:"status_timeout" yaml:"status_timeout" env:"STATUS_TIMEOUT"`
	APIURL             string        `koanf:"api_url" mapstructure:"api_url" yaml:"api_url" env:"API_URL"`
	StartProcessName   string        `koanf:"start_process_name" mapstructure:"start_process_name" yaml:"start_process_name" env:"START_PROCESS_NAME"`
	StartProcessDelay  time.Duration `koanf:"start_process_delay" mapstructure:"start_process_delay" yaml:"start_process_delay" env:"START_PROCESS_DELAY"`
	CommandFailureText string        `koanf:"command_failure_text" mapstructure:"command_failure_text" yaml:"command_failure_text" env:"COMMAND_FAILURE_TEXT"`
}

type SecretsConfig struct {
	Backend   string        `koanf:"backend" mapstructure:"backend" yaml:"backend" env:"BACKEND"`
	Dir       string        `koanf:"dir" mapstructure:"dir" yaml:"dir" env:"DIR"`
	AppKeyEnv string        `koanf:"app_key_env" mapstructure:"app_key_env" yaml:"app_key_env" env:"APP_KEY_ENV"`
	CacheTTL  time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL"`
}

type DispatchConfig struct {
	Role          string        `koanf:"role" mapstructure:"role" yaml:"role" env:"ROLE"`
	Mode          string        `koanf:"mode" mapstructure:"mode" yaml:"mode" env:"MODE"`
	InvokeURL     string        `koanf:"invoke_url" mapstructure:"invoke_url" yaml:"invoke_url" env:"INVOKE_URL"`
	InvokeToken   string        `koanf:"invoke_token" mapstructure:"invoke_token" yaml:"invoke_token" env:"INVOKE_TOKEN"`
	InvokeTimeout time.Duration `koanf:"invoke_timeout" mapstructure:"invoke_timeout" yaml:"invoke_timeout" env:"INVOKE_TIMEOUT"`
	QueueSize     int           `koanf:"queue_size" mapstructure:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`
	Workers       int           `koanf:"workers" mapstructure:"workers" yaml:"workers" env:"WORKERS"`
	TaskTimeout   time.Duration `koanf:"task_timeout" mapstructure:"task_timeout" yaml:"task_timeout" env:"TASK_TIMEOUT"`
	ClaimTTL      time.Duration `koanf:"claim_ttl" mapstructure:"claim_ttl" yaml:"claim_ttl" env:"CLAIM_TTL"`
	DrainTimeout  time.Duration `koanf:"drain_timeout" mapstructure:"drain_timeout" yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

type BackendConfig struct {
	Provider     string        `koanf:"provider" mapstructure:"provider" yaml:"provider" env:"PROVIDER"`
	ModelID      string        `koanf:"model_id" mapstructure:"model_id" yaml:"model_id" env:"MODEL_ID"`
	MaxTokens    int64         `koanf:"max_tokens" mapstructure:"max_tokens" yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature  float64       `koanf:"temperature" mapstructure:"temperature" yaml:"temperature" env:"TEMPERATURE"`
	SystemPrompt string        `koanf:"system_prompt" mapstructure:"system_prompt" yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	Timeout      time.Duration `koanf:"timeout" mapstructure:"timeout" yaml:"timeout" env:"TIMEOUT"`
	APIKeyID     string        `koanf:"api_key_id" mapstructure:"api_key_id" yaml:"api_key_id" env:"API_KEY_ID"`
	BaseURL      string        `koanf:"base_url" mapstructure:"base_url" yaml:"base_url" env:"BASE_URL"`
	Region       string        `koanf:"region" mapstructure:"region" yaml:"region" env:"REGION"`
	FallbackText string        `koanf:"fallback_text" mapstructure:"fallback_text" yaml:"fallback_text" env:"FALLBACK_TEXT"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver" yaml:"driver" env:"DRIVER"`
	DSN    string `koanf:"dsn" mapstructure:"dsn" yaml:"dsn" env:"DSN"`
	Debug  bool   `koanf:"debug" mapstructure:"debug" yaml:"debug" env:"DEBUG"`
}

type LogConfig struct {
	Level  string `koanf:"level" mapstructure:"level" yaml:"level" env:"LEVEL"`
	Format string `koanf:"format" mapstructure:"format" yaml:"format" env:"FORMAT"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http" yaml:"http" envPrefix:"HTTP_"`
	Slack       SlackConfig    `koanf:"slack" mapstructure:"slack" yaml:"slack" envPrefix:"SLACK_"`
	Secrets     SecretsConfig  `koanf:"secrets" mapstructure:"secrets" yaml:"secrets" envPrefix:"SECRETS_"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch" yaml:"dispatch" envPrefix:"DISPATCH_"`
	Backend     BackendConfig  `koanf:"backend" mapstructure:"backend" yaml:"backend" envPrefix:"BACKEND_"`
	Store       StoreConfig    `koanf:"store" mapstructure:"store" yaml:"store" envPrefix:"STORE_"`
	Log         LogConfig      `koanf:"log" mapstructure:"log" yaml:"log" envPrefix:"LOG_"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "slack-dispatch",
		HTTP: HTTPConfig{
			Addr:            ":3000",
			EventsPath:      "/slack/events",
			LazyPath:        "/slack/lazy",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Slack: SlackConfig{
			SigningSecretID:    "SLACK_SIGNING_SECRET_ID",
			TokenID:            "SLACK_BOT_TOKEN_ID",
			StatusText:         DefaultStatusText,
			StatusTimeout:      time.Second,
			StartProcessName:   DefaultStartProcessCommand,
			StartProcessDelay:  5 * time.Second,
			CommandFailureText: "Sorry, the task could not be completed. Check the service logs for details.",
		},
		Secrets: SecretsConfig{
			Backend:  SecretsBackendEnv,
			CacheTTL: 15 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Role:          RoleReceiver,
			Mode:          DispatchModeInProcess,
			InvokeTimeout: 2 * time.Second,
			QueueSize:     256,
			Workers:       4,
			TaskTimeout:   2 * time.Minute,
			ClaimTTL:      10 * time.Minute,
			DrainTimeout:  30 * time.Second,
		},
		Backend: BackendConfig{
			Provider:     BackendBedrock,
			ModelID:      DefaultBedrockModelID,
			MaxTokens:    3000,
			Temperature:  0.5,
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      60 * time.Second,
			FallbackText: DefaultFallbackText,
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return configError("service_name is required")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return configError("http.addr is required")
	}
	if !strings.HasPrefix(c.HTTP.EventsPath, "/") {
		return configError("http.events_path must start with /")
	}
	if strings.TrimSpace(c.Slack.SigningSecretID) == "" || strings.TrimSpace(c.Slack.TokenID) == "" {
		return configError("slack.signing_secret_id and slack.token_id are required")
	}

	switch c.Secrets.Backend {
	case SecretsBackendEnv:
	case SecretsBackendFile:
		if strings.TrimSpace(c.Secrets.Dir) == "" {
			return configError("secrets.dir is required for the file backend")
		}
	default:
		return configError(fmt.Sprintf("secrets.backend %q is invalid", c.Secrets.Backend))
	}

	switch c.Dispatch.Role {
	case RoleReceiver:
	case RoleRelay:
		if strings.TrimSpace(c.Dispatch.InvokeURL) == "" {
			return configError("dispatch.invoke_url is required for the relay role")
		}
	default:
		return configError(fmt.Sprintf("dispatch.role %q is invalid", c.Dispatch.Role))
	}

	switch c.Dispatch.Mode {
	case DispatchModeInProcess:
	case DispatchModeQueue:
		if c.Dispatch.Workers <= 0 || c.Dispatch.QueueSize <= 0 {
			return configError("dispatch.workers and dispatch.queue_size must be positive for queue mode")
		}
	case DispatchModeInvoke:
		if strings.TrimSpace(c.Dispatch.InvokeURL) == "" {
			return configError("dispatch.invoke_url is required for invoke mode")
		}
	default:
		return configError(fmt.Sprintf("dispatch.mode %q is invalid", c.Dispatch.Mode))
	}
	if (c.Dispatch.Mode == DispatchModeInvoke || c.Dispatch.Role == RoleRelay) && strings.TrimSpace(c.Dispatch.InvokeToken) == "" {
		return configError("dispatch.invoke_token is required when invoking a secondary unit")
	}

	switch c.Backend.Provider {
	case BackendBedrock:
	case BackendAnthropic, BackendOpenAI:
		if strings.TrimSpace(c.Backend.APIKeyID) == "" {
			return configError("backend.api_key_id is required for " + c.Backend.Provider)
		}
	default:
		return configError(fmt.Sprintf("backend.provider %q is invalid", c.Backend.Provider))
	}
	if strings.TrimSpace(c.Backend.ModelID) == "" {
		return configError("backend.model_id is required")
	}
	if c.Backend.MaxTokens <= 0 {
		return configError("backend.max_tokens must be positive")
	}
	if c.Backend.Timeout <= 0 {
		return configError("backend.timeout must be positive")
	}
	if strings.TrimSpace(c.Backend.FallbackText) == "" {
		return configError("backend.fallback_text is required")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverSQLite, StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return configError("store.dsn is required for " + c.Store.Driver)
		}
	default:
		return configError(fmt.Sprintf("store.driver %q is invalid", c.Store.Driver))
	}
	return nil
}

func configError(message string) error {
	return NewError("core: "+message, goerrors.CategoryValidation, ErrorConfigInvalid, nil)
}
