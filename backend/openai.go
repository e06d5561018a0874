package backend

import (
	"context"
	"strings"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
)

type completionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...openaioption.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI talks to any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	completions completionsAPI
	settings    Settings
}

func NewOpenAI(apiKey, baseURL string, settings Settings) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, backendConfigInvalid("backend: openai api key is required", nil)
	}
	if strings.TrimSpace(settings.ModelID) == "" {
		return nil, backendConfigInvalid("backend: openai model id is required", nil)
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return newOpenAI(&client.Chat.Completions, settings), nil
}

func newOpenAI(completions completionsAPI, settings Settings) *OpenAI {
	return &OpenAI{completions: completions, settings: settings.normalized()}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if o == nil || o.completions == nil {
		return "", backendConfigInvalid("backend: openai client is not configured", nil)
	}
	completion, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.settings.ModelID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.settings.SystemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(o.settings.MaxTokens),
		Temperature: openai.Float(o.settings.Temperature),
	})
	fields := map[string]any{"provider": core.BackendOpenAI, "model_id": o.settings.ModelID}
	if err != nil {
		return "", backendFailed(err, "backend: generation request failed", fields)
	}
	if completion != nil && len(completion.Choices) > 0 {
		if text := completion.Choices[0].Message.Content; strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", backendFailed(nil, "backend: generation returned no text", fields)
}

var _ core.Generator = (*OpenAI)(nil)
