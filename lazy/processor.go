package lazy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

const (
	StageValidate = "validate"
	StageBackend  = "backend"
	StageCommand  = "command"
	StageReply    = "reply"

	DefaultCommandFailureText = "Sorry, the task could not be completed. Check the service logs for details."
)

// CommandHandler performs the slow part of a slash command and returns the
// completion text.
type CommandHandler interface {
	Handle(ctx context.Context, task core.DeferredTask) (string, error)
}

type CommandHandlerFunc func(ctx context.Context, task core.DeferredTask) (string, error)

func (f CommandHandlerFunc) Handle(ctx context.Context, task core.DeferredTask) (string, error) {
	return f(ctx, task)
}

type Processor struct {
	Generator          core.Generator
	Replier            core.Replier
	FallbackText       string
	CommandFailureText string
	Timeout            time.Duration
	Observer           core.Observer

	mu       sync.RWMutex
	commands map[string]CommandHandler
}

func NewProcessor(generator core.Generator, replier core.Replier) *Processor {
	return &Processor{
		Generator:          generator,
		Replier:            replier,
		FallbackText:       core.DefaultFallbackText,
		CommandFailureText: DefaultCommandFailureText,
		commands:           map[string]CommandHandler{},
	}
}

func (p *Processor) RegisterCommand(name string, handler CommandHandler) error {
	if p == nil {
		return core.NewError("lazy: processor is nil", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || handler == nil {
		return core.NewError("lazy: command name and handler are required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.commands == nil {
		p.commands = map[string]CommandHandler{}
	}
	if _, exists := p.commands[name]; exists {
		return core.NewError(
			fmt.Sprintf("lazy: command %q already registered", name),
			goerrors.CategoryConflict,
			core.ErrorDuplicate,
			map[string]any{"command": name},
		)
	}
	p.commands[name] = handler
	return nil
}

// Run executes one task. Dropped tasks produce no reply; every other task
// produces exactly one.
func (p *Processor) Run(ctx context.Context, task core.DeferredTask) (result core.ProcessingResult) {
	result = core.ProcessingResult{TaskID: task.ID, State: core.StateProcessing}
	if p == nil {
		result.Dropped = true
		result.DropReason = "processor is nil"
		return result
	}
	startedAt := time.Now()
	replyAttempted := false
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := core.NewError(fmt.Sprintf("lazy: task panicked: %v", recovered), goerrors.CategoryInternal, core.ErrorInternal, map[string]any{
				"task_id": task.ID,
			})
			result = p.fail(ctx, task, result, result.Stage, panicErr, p.fallbackFor(task))
			if !replyAttempted {
				replyAttempted = true
				result = p.deliver(ctx, task, result)
			}
		}
		var observed error
		if !result.Success && !result.Dropped {
			observed = result.Err
		}
		p.Observer.Observe(ctx, startedAt, "lazy.run", observed, map[string]any{
			"task_id":   task.ID,
			"kind":      string(task.Kind),
			"stage":     result.Stage,
			"state":     string(result.State),
			"dropped":   result.Dropped,
			"delivered": result.Delivered,
		})
	}()

	if reason := dropReason(task); reason != "" {
		result.Dropped = true
		result.DropReason = reason
		result.State = core.StateFilteredDropped
		result.Stage = StageValidate
		p.Observer.Info(ctx, "lazy: task dropped", map[string]any{
			"task_id": task.ID,
			"reason":  reason,
		})
		return result
	}

	switch task.Kind {
	case core.TaskKindCommand:
		result = p.runCommand(ctx, task, result)
	default:
		result = p.runMessage(ctx, task, result)
	}
	replyAttempted = true
	return p.deliver(ctx, task, result)
}

func (p *Processor) runMessage(ctx context.Context, task core.DeferredTask, result core.ProcessingResult) core.ProcessingResult {
	result.Stage = StageBackend
	if p.Generator == nil {
		return p.fail(ctx, task, result, StageBackend,
			core.NewError("lazy: backend is not configured", goerrors.CategoryInternal, core.ErrorBackendFailed, nil),
			p.fallbackText())
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	reply, err := p.Generator.Generate(callCtx, task.Text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = core.NewError("lazy: backend returned an empty reply", goerrors.CategoryOperation, core.ErrorBackendFailed, nil)
	}
	if err != nil {
		return p.fail(ctx, task, result, StageBackend, err, p.fallbackText())
	}
	result.Success = true
	result.ReplyText = reply
	return result
}

func (p *Processor) runCommand(ctx context.Context, task core.DeferredTask, result core.ProcessingResult) core.ProcessingResult {
	result.Stage = StageCommand
	p.mu.RLock()
	handler := p.commands[strings.ToLower(strings.TrimSpace(task.Command))]
	p.mu.RUnlock()
	if handler == nil {
		return p.fail(ctx, task, result, StageCommand,
			core.NewError(fmt.Sprintf("lazy: no handler for command %q", task.Command), goerrors.CategoryNotFound, core.ErrorBadInput, map[string]any{
				"command": task.Command,
			}),
			p.commandFailureText())
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	reply, err := handler.Handle(callCtx, task)
	if err != nil {
		return p.fail(ctx, task, result, StageCommand, err, p.commandFailureText())
	}
	result.Success = true
	result.ReplyText = reply
	return result
}

func (p *Processor) fail(ctx context.Context, task core.DeferredTask, result core.ProcessingResult, stage string, err error, fallback string) core.ProcessingResult {
	result.Success = false
	result.ReplyText = ""
	result.FallbackText = fallback
	result.Stage = stage
	result.Err = err
	p.Observer.Error(ctx, "lazy: task failed, replying with fallback", map[string]any{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"stage":   stage,
		"error":   err.Error(),
	})
	return result
}

func (p *Processor) deliver(ctx context.Context, task core.DeferredTask, result core.ProcessingResult) core.ProcessingResult {
	if p.Replier == nil {
		result.Err = core.NewError("lazy: replier is not configured", goerrors.CategoryInternal, core.ErrorInternal, map[string]any{
			"task_id": task.ID,
		})
		return result
	}
	if err := p.Replier.Reply(ctx, task.ReplyTarget, result.Text()); err != nil {
		p.Observer.Error(ctx, "lazy: reply delivery failed", map[string]any{
			"task_id": task.ID,
			"stage":   StageReply,
			"error":   err.Error(),
		})
		if result.Err == nil {
			result.Err = err
		}
		return result
	}
	result.Delivered = true
	if result.Success {
		result.State = core.StateRepliedSuccess
	} else {
		result.State = core.StateRepliedFallback
	}
	return result
}

func (p *Processor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout > 0 {
		return context.WithTimeout(ctx, p.Timeout)
	}
	return context.WithCancel(ctx)
}

func (p *Processor) fallbackFor(task core.DeferredTask) string {
	if task.Kind == core.TaskKindCommand {
		return p.commandFailureText()
	}
	return p.fallbackText()
}

func (p *Processor) fallbackText() string {
	if strings.TrimSpace(p.FallbackText) != "" {
		return p.FallbackText
	}
	return core.DefaultFallbackText
}

func (p *Processor) commandFailureText() string {
	if strings.TrimSpace(p.CommandFailureText) != "" {
		return p.CommandFailureText
	}
	return DefaultCommandFailureText
}

func dropReason(task core.DeferredTask) string {
	if err := task.Validate(); err != nil {
		return "invalid task: " + err.Error()
	}
	if task.OriginatesFromBot() {
		return "message originates from a bot"
	}
	if strings.TrimSpace(task.Text) == "" {
		return "task text is empty"
	}
	return ""
}
