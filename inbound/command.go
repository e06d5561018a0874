package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

// CommandSpec describes the immediate answers of a slash command.
type CommandSpec struct {
	Name   string
	Usage  string
	Accept func(text string) string
}

// StartProcessCommand is the long-running demo command. An empty name falls
// back to /start-process.
func StartProcessCommand(name string) CommandSpec {
	name = strings.TrimSpace(name)
	if name == "" {
		name = core.DefaultStartProcessCommand
	}
	return CommandSpec{
		Name:  name,
		Usage: fmt.Sprintf(":x: Usage: %s (description here)", name),
		Accept: func(text string) string {
			return fmt.Sprintf("Accepted! (task: %s)", text)
		},
	}
}

func (r *Receiver) RegisterCommand(spec CommandSpec) error {
	if r == nil {
		return inboundInternal("inbound: receiver is nil", nil)
	}
	name := normalizeCommand(spec.Name)
	if name == "" {
		return inboundBadInput("inbound: command name is required", nil)
	}
	if spec.Accept == nil {
		return inboundBadInput("inbound: command accept text is required", map[string]any{"command": name})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commands == nil {
		r.commands = map[string]CommandSpec{}
	}
	if _, exists := r.commands[name]; exists {
		return core.NewError(
			fmt.Sprintf("inbound: command %q already registered", name),
			goerrors.CategoryConflict,
			core.ErrorDuplicate,
			map[string]any{"command": name},
		)
	}
	spec.Name = name
	r.commands[name] = spec
	return nil
}

func (r *Receiver) command(name string) (CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.commands[normalizeCommand(name)]
	return spec, ok
}

func (r *Receiver) acknowledgeCommand(ctx context.Context, event core.InboundEvent) (core.AckDecision, error) {
	name := normalizeCommand(event.String("command"))
	spec, ok := r.command(name)
	if !ok {
		r.Observer.Warn(ctx, "inbound: unsupported command", map[string]any{"command": name})
		return ackDecision(event.Kind, core.StateAckSent, http.StatusOK, fmt.Sprintf(":x: Unsupported command: %s", name)), nil
	}

	text := strings.TrimSpace(event.String("text"))
	if text == "" {
		usage := spec.Usage
		if usage == "" {
			usage = fmt.Sprintf(":x: Usage: %s", spec.Name)
		}
		return ackDecision(event.Kind, core.StateAckSent, http.StatusOK, usage), nil
	}

	task := core.DeferredTask{
		ID:      core.NewTaskID(event),
		Kind:    core.TaskKindCommand,
		Command: spec.Name,
		Text:    text,
		ReplyTarget: core.ReplyTarget{
			Channel:     firstNonEmpty(event.String("channel_id"), event.String("channel")),
			ResponseURL: event.String("response_url"),
			User:        event.String("user_id"),
		},
		Payload:   encodeBody(event.Body),
		CreatedAt: r.now(),
	}
	decision := ackDecision(event.Kind, core.StateAckSent, http.StatusOK, spec.Accept(text))
	decision.Defer = true
	decision.Task = &task
	return decision, nil
}

func normalizeCommand(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func encodeBody(body map[string]any) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return payload
}
