package inbound

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/slack-go/slack"
)

// SignatureVerifier checks the v0 request signature Slack attaches to every
// delivery.
type SignatureVerifier struct {
	SigningSecret string
}

func NewSignatureVerifier(signingSecret string) *SignatureVerifier {
	return &SignatureVerifier{SigningSecret: signingSecret}
}

func (v *SignatureVerifier) Verify(_ context.Context, event core.InboundEvent) error {
	if v == nil || strings.TrimSpace(v.SigningSecret) == "" {
		return inboundInternal("inbound: signing secret is not configured", nil)
	}
	header := http.Header{}
	for key, value := range event.Headers {
		header.Set(key, value)
	}
	verifier, err := slack.NewSecretsVerifier(header, v.SigningSecret)
	if err != nil {
		return inboundUnauthorized(err, map[string]any{"stage": "headers"})
	}
	if _, err := verifier.Write(event.RawPayload); err != nil {
		return inboundUnauthorized(err, map[string]any{"stage": "payload"})
	}
	if err := verifier.Ensure(); err != nil {
		return inboundUnauthorized(err, map[string]any{"stage": "signature"})
	}
	return nil
}

type VerifierFunc func(ctx context.Context, event core.InboundEvent) error

func (f VerifierFunc) Verify(ctx context.Context, event core.InboundEvent) error {
	return f(ctx, event)
}

var (
	_ core.Verifier = (*SignatureVerifier)(nil)
	_ core.Verifier = VerifierFunc(nil)
)
