package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/inbound"
)

const (
	RelayAcceptedMessage = "Request received and processing"
	RelayFallbackMessage = "Request received"
)

// Forwarder hands a raw delivery to the receiver unit.
type Forwarder interface {
	Forward(ctx context.Context, headers map[string]string, raw []byte) error
}

// Relay always answers 200 so the platform never retries because of the
// downstream unit. Handshakes are answered locally.
type Relay struct {
	Forwarder    Forwarder
	MaxBodyBytes int64
	Observer     core.Observer
}

func NewRelay(forwarder Forwarder) *Relay {
	return &Relay{Forwarder: forwarder, MaxBodyBytes: DefaultMaxBodyBytes}
}

func (rl *Relay) Routes(eventsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+eventsPath, rl)
	mux.HandleFunc("GET /healthz", ServeHealth)
	return mux
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := readBody(w, r, rl.MaxBodyBytes)
	if err != nil {
		rl.Observer.Warn(ctx, "httpapi: relay read body failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]string{"message": RelayFallbackMessage})
		return
	}
	headers := flattenHeaders(r.Header)

	if event, parseErr := core.ParseInboundEvent(headers, raw, time.Now()); parseErr == nil && event.Kind == core.EventKindHandshake {
		resp, challengeErr := inbound.Challenge(event)
		if challengeErr != nil {
			writeText(w, http.StatusBadRequest, "bad request")
			return
		}
		_ = writeResponse(w, resp)
		return
	}

	if rl.Forwarder == nil {
		rl.Observer.Error(ctx, "httpapi: relay forwarder is not configured", nil)
		writeJSON(w, http.StatusOK, map[string]string{"message": RelayFallbackMessage})
		return
	}
	if err := rl.Forwarder.Forward(ctx, headers, raw); err != nil {
		rl.Observer.Error(ctx, "httpapi: relay forward failed", map[string]any{
			"error":   err.Error(),
			"headers": core.RedactHeaders(headers),
		})
		writeJSON(w, http.StatusOK, map[string]string{"message": RelayFallbackMessage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": RelayAcceptedMessage})
}
