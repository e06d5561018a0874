package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

// Responder writes the acknowledgement to the platform. Handle calls it
// before any deferred work is dispatched.
type Responder func(resp core.Response) error

type Receiver struct {
	Verifier      core.Verifier
	Claims        core.ClaimStore
	ClaimKey      ClaimKeyExtractor
	ClaimTTL      time.Duration
	Dispatcher    core.TaskDispatcher
	Status        core.StatusIndicator
	StatusText    string
	StatusTimeout time.Duration
	Observer      core.Observer
	Now           func() time.Time

	mu       sync.RWMutex
	commands map[string]CommandSpec
}

func NewReceiver(verifier core.Verifier, claims core.ClaimStore, dispatcher core.TaskDispatcher) *Receiver {
	return &Receiver{
		Verifier:      verifier,
		Claims:        claims,
		ClaimKey:      DefaultClaimKey,
		ClaimTTL:      DefaultClaimTTL,
		Dispatcher:    dispatcher,
		StatusText:    core.DefaultStatusText,
		StatusTimeout: time.Second,
		commands:      map[string]CommandSpec{},
	}
}

// Handle acknowledges the event, writes the acknowledgement through respond
// and only then dispatches the deferred task. Dispatch failures are logged
// and never change the acknowledgement.
func (r *Receiver) Handle(ctx context.Context, event core.InboundEvent, respond Responder) core.AckDecision {
	decision, err := r.Acknowledge(ctx, event)
	if err != nil {
		r.Observer.Warn(ctx, "inbound: event rejected", map[string]any{
			"kind":    string(event.Kind),
			"status":  decision.StatusCode,
			"error":   err.Error(),
			"headers": core.RedactHeaders(event.Headers),
		})
	}
	if respond != nil {
		if writeErr := respond(decision.Response); writeErr != nil {
			r.Observer.Error(ctx, "inbound: write acknowledgement failed", map[string]any{
				"kind":  string(event.Kind),
				"error": writeErr.Error(),
			})
		}
	}
	if dispatchErr := r.Defer(ctx, decision); dispatchErr != nil {
		return decision
	}
	if decision.Defer {
		decision.State = core.StateDeferred
	}
	return decision
}

// Acknowledge computes the deadline-bound response. It never performs the
// slow work and recovers from panics into a plain 200.
func (r *Receiver) Acknowledge(ctx context.Context, event core.InboundEvent) (decision core.AckDecision, err error) {
	if r == nil {
		return ackDecision(event.Kind, core.StateAckSent, http.StatusOK, ""), inboundInternal("inbound: receiver is nil", nil)
	}
	startedAt := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			decision = ackDecision(event.Kind, core.StateAckSent, http.StatusOK, "")
			err = inboundInternal(fmt.Sprintf("inbound: acknowledgement panicked: %v", recovered), map[string]any{
				"kind": string(event.Kind),
			})
		}
		r.Observer.Observe(ctx, startedAt, "inbound.ack", err, map[string]any{
			"kind":  string(event.Kind),
			"state": string(decision.State),
		})
	}()

	if event.Kind == core.EventKindHandshake {
		resp, challengeErr := Challenge(event)
		if challengeErr != nil {
			return rejectDecision(event.Kind, challengeErr), challengeErr
		}
		return core.AckDecision{Response: resp, Kind: event.Kind, State: core.StateHandshakeAnswered}, nil
	}

	if r.Verifier != nil {
		if verifyErr := r.Verifier.Verify(ctx, event); verifyErr != nil {
			if !core.HasTextCode(verifyErr, core.ErrorUnauthorized) {
				verifyErr = inboundUnauthorized(verifyErr, map[string]any{"kind": string(event.Kind)})
			}
			return rejectDecision(event.Kind, verifyErr), verifyErr
		}
	}

	if event.Kind != core.EventKindCommand && event.Kind != core.EventKindMessage {
		return ackDecision(event.Kind, core.StateAckSent, http.StatusOK, ""), nil
	}

	claimID, duplicate := r.claim(ctx, event)
	if duplicate {
		return ackDecision(event.Kind, core.StateDeduped, http.StatusOK, ""), nil
	}

	switch event.Kind {
	case core.EventKindCommand:
		decision, err = r.acknowledgeCommand(ctx, event)
	default:
		decision, err = r.acknowledgeMessage(ctx, event)
	}
	decision.ClaimID = claimID
	if !decision.Defer {
		r.settleClaim(ctx, claimID, nil)
	}
	return decision, err
}

// Defer hands the decision's task to the dispatcher. It returns the dispatch
// error for observation only.
func (r *Receiver) Defer(ctx context.Context, decision core.AckDecision) (err error) {
	if r == nil || !decision.Defer || decision.Task == nil {
		return nil
	}
	task := *decision.Task
	startedAt := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = inboundInternal(fmt.Sprintf("inbound: dispatch panicked: %v", recovered), map[string]any{
				"task_id": task.ID,
			})
		}
		r.settleClaim(ctx, decision.ClaimID, err)
		r.Observer.Observe(ctx, startedAt, "inbound.dispatch", err, map[string]any{
			"task_id": task.ID,
			"kind":    string(task.Kind),
		})
	}()

	if r.Dispatcher == nil {
		return inboundInternal("inbound: dispatcher is not configured", map[string]any{"task_id": task.ID})
	}
	if dispatchErr := r.Dispatcher.Dispatch(ctx, task); dispatchErr != nil {
		return inboundDispatchFailed(dispatchErr, map[string]any{
			"task_id": task.ID,
			"kind":    string(task.Kind),
		})
	}
	return nil
}

func (r *Receiver) claim(ctx context.Context, event core.InboundEvent) (string, bool) {
	if r.Claims == nil {
		return "", false
	}
	extractor := r.ClaimKey
	if extractor == nil {
		extractor = DefaultClaimKey
	}
	key := extractor(event)
	if key == "" {
		return "", false
	}
	ttl := r.ClaimTTL
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	claimID, accepted, err := r.Claims.Claim(ctx, key, ttl)
	if err != nil {
		r.Observer.Error(ctx, "inbound: claim failed, continuing without dedupe", map[string]any{
			"claim_key": key,
			"error":     err.Error(),
		})
		return "", false
	}
	if !accepted {
		r.Observer.Info(ctx, "inbound: duplicate delivery acknowledged", map[string]any{
			"claim_key": key,
			"retry_num": event.RetryAttempt(),
			"reason":    event.Header(core.HeaderRetryReason),
		})
		return "", true
	}
	return claimID, false
}

func (r *Receiver) settleClaim(ctx context.Context, claimID string, cause error) {
	if r.Claims == nil || claimID == "" {
		return
	}
	var err error
	if cause != nil {
		err = r.Claims.Fail(ctx, claimID, cause, r.now())
	} else {
		err = r.Claims.Complete(ctx, claimID)
	}
	if err != nil {
		r.Observer.Error(ctx, "inbound: settle claim failed", map[string]any{
			"claim_id": claimID,
			"error":    err.Error(),
		})
	}
}

func (r *Receiver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func ackDecision(kind core.EventKind, state core.EventState, status int, body string) core.AckDecision {
	headers := map[string]string{}
	if body != "" {
		headers["Content-Type"] = "text/plain; charset=utf-8"
	}
	return core.AckDecision{
		Response: core.Response{StatusCode: status, Headers: headers, Body: body},
		Kind:     kind,
		State:    state,
	}
}

func rejectDecision(kind core.EventKind, err error) core.AckDecision {
	status := http.StatusBadRequest
	message := "bad request"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth {
		status = http.StatusUnauthorized
		message = "unauthorized"
	}
	decision := ackDecision(kind, core.StateReceived, status, message)
	decision.Err = err
	return decision
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
