package backend

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

// Settings shape a single generation request.
type Settings struct {
	ModelID      string
	MaxTokens    int64
	Temperature  float64
	SystemPrompt string
}

func SettingsFromConfig(cfg core.BackendConfig) Settings {
	return Settings{
		ModelID:      strings.TrimSpace(cfg.ModelID),
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		SystemPrompt: cfg.SystemPrompt,
	}
}

func (s Settings) normalized() Settings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = 3000
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		s.SystemPrompt = core.DefaultSystemPrompt
	}
	return s
}

// New builds the generator selected by cfg.Provider. apiKey is ignored for
// Bedrock, which authenticates with the AWS default credential chain.
func New(ctx context.Context, cfg core.BackendConfig, apiKey string) (core.Generator, error) {
	settings := SettingsFromConfig(cfg)
	var (
		generator core.Generator
		err       error
	)
	switch cfg.Provider {
	case core.BackendBedrock:
		generator, err = NewBedrock(ctx, cfg.Region, settings)
	case core.BackendAnthropic:
		generator, err = NewAnthropic(apiKey, cfg.BaseURL, settings)
	case core.BackendOpenAI:
		generator, err = NewOpenAI(apiKey, cfg.BaseURL, settings)
	default:
		return nil, backendConfigInvalid("backend: unsupported provider", map[string]any{"provider": cfg.Provider})
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(generator, cfg.Timeout), nil
}

// WithTimeout bounds every Generate call by d. A non-positive d returns
// generator unchanged.
func WithTimeout(generator core.Generator, d time.Duration) core.Generator {
	if generator == nil || d <= 0 {
		return generator
	}
	return core.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return generator.Generate(callCtx, prompt)
	})
}
