package inbound

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-slack-dispatch/core"
)

// Challenge answers a url_verification handshake. The challenge value is
// echoed verbatim and redelivery is suppressed.
func Challenge(event core.InboundEvent) (core.Response, error) {
	if event.Kind != core.EventKindHandshake {
		return core.Response{}, inboundBadInput("inbound: event is not a handshake", map[string]any{
			"kind": string(event.Kind),
		})
	}
	challenge := event.String("challenge")
	if strings.TrimSpace(challenge) == "" {
		return core.Response{}, inboundBadInput("inbound: handshake challenge is required", nil)
	}
	return core.Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			core.HeaderNoRetry: "1",
			"Content-Type":     "text/plain; charset=utf-8",
		},
		Body: challenge,
	}, nil
}
