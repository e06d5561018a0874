package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/deferred"
	"github.com/goliatone/go-slack-dispatch/inbound"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// Handler serves platform deliveries. Local runs tasks received on the lazy
// endpoint; it is nil when this unit never receives invoked tasks.
type Handler struct {
	Receiver     *inbound.Receiver
	Local        core.TaskDispatcher
	LazyToken    string
	MaxBodyBytes int64
	Observer     core.Observer
	Now          func() time.Time
}

func NewHandler(receiver *inbound.Receiver, local core.TaskDispatcher) *Handler {
	return &Handler{
		Receiver:     receiver,
		Local:        local,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Routes mounts the events endpoint, the lazy endpoint when a local
// dispatcher is configured, and /healthz.
func (h *Handler) Routes(eventsPath, lazyPath string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+eventsPath, h.ServeEvents)
	if h.Local != nil && strings.TrimSpace(lazyPath) != "" {
		mux.HandleFunc("POST "+lazyPath, h.ServeLazy)
	}
	mux.HandleFunc("GET /healthz", ServeHealth)
	return mux
}

func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		h.Observer.Warn(ctx, "httpapi: read body failed", map[string]any{"error": err.Error()})
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	headers := flattenHeaders(r.Header)
	event, err := core.ParseInboundEvent(headers, raw, h.now())
	if err != nil {
		h.Observer.Warn(ctx, "httpapi: malformed event", map[string]any{
			"error":   err.Error(),
			"headers": core.RedactHeaders(headers),
		})
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	if h.Receiver == nil {
		writeText(w, http.StatusOK, "")
		return
	}

	// The acknowledgement is flushed before dispatch so the deadline does
	// not depend on the dispatcher.
	h.Receiver.Handle(ctx, event, func(resp core.Response) error {
		return writeResponse(w, resp)
	})
}

// ServeLazy accepts a task posted by an invoke-mode dispatcher and runs it
// locally. It answers 202 as soon as the task is handed off.
func (h *Handler) ServeLazy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !tokenMatches(r.Header.Get(deferred.HeaderDispatchToken), h.LazyToken) {
		h.Observer.Warn(ctx, "httpapi: lazy request rejected", nil)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	raw, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	task, err := core.DecodeTask(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task"})
		return
	}
	if h.Local == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "lazy processing disabled"})
		return
	}
	if err := h.Local.Dispatch(context.WithoutCancel(ctx), task); err != nil {
		h.Observer.Error(ctx, "httpapi: lazy dispatch failed", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		writeJSON(w, core.MapError(err).Code, map[string]string{"error": "dispatch failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func ServeHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key := range header {
		out[strings.ToLower(key)] = header.Get(key)
	}
	return out
}

func writeResponse(w http.ResponseWriter, resp core.Response) error {
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(status)
	if resp.Body != "" {
		if _, err := io.WriteString(w, resp.Body); err != nil {
			return err
		}
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func writeText(w http.ResponseWriter, status int, body string) {
	headers := map[string]string{}
	if body != "" {
		headers["Content-Type"] = "text/plain; charset=utf-8"
	}
	_ = writeResponse(w, core.Response{StatusCode: status, Headers: headers, Body: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		encoded = []byte(`{"error":"internal"}`)
	}
	_ = writeResponse(w, core.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(encoded),
	})
}

func tokenMatches(got, want string) bool {
	if strings.TrimSpace(want) == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
