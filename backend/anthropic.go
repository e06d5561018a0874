package backend

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/goliatone/go-slack-dispatch/core"
)

type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropic.Message, error)
}

// Anthropic sends one user message with a system prompt and returns the
// first text block of the reply.
type Anthropic struct {
	messages messagesAPI
	settings Settings
	provider string
}

func NewAnthropic(apiKey, baseURL string, settings Settings) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, backendConfigInvalid("backend: anthropic api key is required", nil)
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return newAnthropic(&client.Messages, settings, core.BackendAnthropic), nil
}

// NewBedrock targets Amazon Bedrock. Credentials come from the AWS default
// chain; region overrides the chain's region when set.
func NewBedrock(ctx context.Context, region string, settings Settings) (*Anthropic, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(region) != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(strings.TrimSpace(region)))
	}
	if strings.TrimSpace(settings.ModelID) == "" {
		settings.ModelID = core.DefaultBedrockModelID
	}
	client := anthropic.NewClient(
		bedrock.WithLoadDefaultConfig(ctx, loadOpts...),
		anthropicoption.WithMaxRetries(0),
	)
	return newAnthropic(&client.Messages, settings, core.BackendBedrock), nil
}

func newAnthropic(messages messagesAPI, settings Settings, provider string) *Anthropic {
	return &Anthropic{messages: messages, settings: settings.normalized(), provider: provider}
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	if a == nil || a.messages == nil {
		return "", backendConfigInvalid("backend: anthropic client is not configured", nil)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.settings.ModelID),
		MaxTokens: a.settings.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: a.settings.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(a.settings.Temperature),
	}
	message, err := a.messages.New(ctx, params)
	if err != nil {
		return "", backendFailed(err, "backend: generation request failed", a.fields())
	}
	if message != nil {
		for _, block := range message.Content {
			if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
				return block.Text, nil
			}
		}
	}
	return "", backendFailed(nil, "backend: generation returned no text", a.fields())
}

func (a *Anthropic) fields() map[string]any {
	return map[string]any{"provider": a.provider, "model_id": a.settings.ModelID}
}

var _ core.Generator = (*Anthropic)(nil)
