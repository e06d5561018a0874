package deferred

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

const (
	HeaderDispatchToken  = "X-Dispatch-Token"
	DefaultInvokeTimeout = 2 * time.Second
)

// Invoker starts a secondary execution unit over HTTP. The unit replies 2xx
// as soon as it has accepted the task; the slow work runs there.
type Invoker struct {
	URL      string
	Token    string
	Client   *http.Client
	Timeout  time.Duration
	Observer core.Observer
}

func NewInvoker(url, token string) *Invoker {
	return &Invoker{URL: url, Token: token, Timeout: DefaultInvokeTimeout}
}

func (i *Invoker) Dispatch(ctx context.Context, task core.DeferredTask) (err error) {
	if err := task.Validate(); err != nil {
		return err
	}
	startedAt := time.Now()
	defer func() {
		i.Observer.Observe(ctx, startedAt, "deferred.invoke", err, map[string]any{
			"task_id": task.ID,
			"kind":    string(task.Kind),
			"mode":    core.DispatchModeInvoke,
		})
	}()
	payload, err := core.EncodeTask(task)
	if err != nil {
		return err
	}
	return i.post(ctx, map[string]string{"Content-Type": "application/json"}, payload, map[string]any{"task_id": task.ID})
}

// Forward relays a raw platform delivery with its original headers, used by
// the relay role to hand the event to the receiver unit.
func (i *Invoker) Forward(ctx context.Context, headers map[string]string, raw []byte) (err error) {
	startedAt := time.Now()
	defer func() {
		i.Observer.Observe(ctx, startedAt, "deferred.forward", err, nil)
	}()
	forwarded := make(map[string]string, len(headers))
	for key, value := range headers {
		if _, skip := hopHeaders[strings.ToLower(key)]; skip {
			continue
		}
		forwarded[key] = value
	}
	return i.post(ctx, forwarded, raw, nil)
}

var hopHeaders = map[string]struct{}{
	"host":              {},
	"connection":        {},
	"content-length":    {},
	"accept-encoding":   {},
	"transfer-encoding": {},
	"keep-alive":        {},
}

func (i *Invoker) post(ctx context.Context, headers map[string]string, body []byte, metadata map[string]any) error {
	if i == nil || strings.TrimSpace(i.URL) == "" {
		return dispatchInternal("deferred: invoke url is not configured", metadata)
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, i.URL, bytes.NewReader(body))
	if err != nil {
		return dispatchFailed("deferred: build invoke request", err, metadata)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if i.Token != "" {
		req.Header.Set(HeaderDispatchToken, i.Token)
	}

	resp, err := i.client().Do(req)
	if err != nil {
		return dispatchFailed("deferred: invoke request failed", err, metadata)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		md := map[string]any{"status": resp.StatusCode}
		for key, value := range metadata {
			md[key] = value
		}
		return dispatchFailed("deferred: invoke rejected", nil, md)
	}
	return nil
}

func (i *Invoker) client() *http.Client {
	if i.Client != nil {
		return i.Client
	}
	return http.DefaultClient
}

var _ core.TaskDispatcher = (*Invoker)(nil)
