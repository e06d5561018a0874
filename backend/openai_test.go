package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
)

type stubCompletions struct {
	body       openai.ChatCompletionNewParams
	completion *openai.ChatCompletion
	err        error
	calls      int
}

func (s *stubCompletions) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...openaioption.RequestOption) (*openai.ChatCompletion, error) {
	s.calls++
	s.body = body
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func TestOpenAI_ReturnsFirstChoice(t *testing.T) {
	stub := &stubCompletions{completion: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Sure thing."}},
		},
	}}
	settings := defaultSettings()
	settings.ModelID = "gpt-4o-mini"
	generator := newOpenAI(stub, settings)

	reply, err := generator.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Sure thing." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if string(stub.body.Model) != "gpt-4o-mini" || len(stub.body.Messages) != 2 {
		t.Fatalf("unexpected request: model=%q messages=%d", stub.body.Model, len(stub.body.Messages))
	}
}

func TestOpenAI_FailuresAreBackendErrors(t *testing.T) {
	for name, stub := range map[string]*stubCompletions{
		"request":    {err: errors.New("429 too many requests")},
		"no choices": {completion: &openai.ChatCompletion{}},
	} {
		t.Run(name, func(t *testing.T) {
			generator := newOpenAI(stub, defaultSettings())
			if _, err := generator.Generate(context.Background(), "hello"); !core.HasTextCode(err, core.ErrorBackendFailed) {
				t.Fatalf("expected backend failure, got %v", err)
			}
			if stub.calls != 1 {
				t.Fatalf("expected a single attempt, got %d", stub.calls)
			}
		})
	}
}

func TestNewOpenAI_Validation(t *testing.T) {
	if _, err := NewOpenAI("", "", defaultSettings()); err == nil {
		t.Fatalf("expected api key error")
	}
	settings := defaultSettings()
	settings.ModelID = ""
	if _, err := NewOpenAI("sk-test", "", settings); err == nil {
		t.Fatalf("expected model id error")
	}
}
