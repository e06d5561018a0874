package slackdispatch

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-slack-dispatch/adapters/gojob"
	"github.com/goliatone/go-slack-dispatch/adapters/gologger"
	"github.com/goliatone/go-slack-dispatch/backend"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/deferred"
	"github.com/goliatone/go-slack-dispatch/httpapi"
	"github.com/goliatone/go-slack-dispatch/inbound"
	"github.com/goliatone/go-slack-dispatch/lazy"
	"github.com/goliatone/go-slack-dispatch/secrets"
	"github.com/goliatone/go-slack-dispatch/security"
	"github.com/goliatone/go-slack-dispatch/slackapi"
	sqlstore "github.com/goliatone/go-slack-dispatch/store/sql"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-job/queue/worker"
)

// Runtime is a fully wired dispatch unit. Receiver units serve the events
// endpoint (and the lazy endpoint when they accept invoked tasks); relay
// units only forward.
type Runtime struct {
	cfg      core.Config
	observer core.Observer
	handler  http.Handler

	receiver   *inbound.Receiver
	processor  *lazy.Processor
	dispatcher core.TaskDispatcher
	local      *deferred.InProcess
	queue      *deferred.MemoryQueue
	worker     *deferred.Worker
	pruner     *inbound.PruneLoop
	client     *persistence.Client

	workersStarted atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and wires the runtime for its role and dispatch mode.
// Credential or backend failures are returned and must stop startup.
func New(ctx context.Context, cfg core.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	_, logger := gologger.Resolve(cfg.ServiceName, options.loggerProvider, options.logger)
	metrics := options.metrics
	if metrics == nil {
		metrics = core.DiscardMetrics{}
	}
	rt := &Runtime{
		cfg:      cfg,
		observer: core.Observer{Logger: logger, Metrics: metrics, Prefix: "slack_dispatch"},
	}

	if cfg.Dispatch.Role == core.RoleRelay {
		rt.wireRelay(options)
		return rt, nil
	}
	if err := rt.wireReceiver(ctx, options); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wireRelay(options runtimeOptions) {
	forwarder := options.forwarder
	if forwarder == nil {
		invoker := deferred.NewInvoker(rt.cfg.Dispatch.InvokeURL, rt.cfg.Dispatch.InvokeToken)
		invoker.Timeout = rt.cfg.Dispatch.InvokeTimeout
		invoker.Observer = rt.observer
		forwarder = invoker
	}
	relay := httpapi.NewRelay(forwarder)
	relay.MaxBodyBytes = rt.cfg.HTTP.MaxBodyBytes
	relay.Observer = rt.observer
	rt.handler = relay.Routes(rt.cfg.HTTP.EventsPath)
}

func (rt *Runtime) wireReceiver(ctx context.Context, options runtimeOptions) error {
	cfg := rt.cfg

	store := options.secretStore
	if store == nil {
		built, err := buildSecretStore(cfg.Secrets, options.lookupEnv)
		if err != nil {
			return err
		}
		store = built
	}
	creds, err := secrets.LoadCredentials(ctx, store, secrets.CredentialRefs{
		SigningSecretID: cfg.Slack.SigningSecretID,
		BotTokenID:      cfg.Slack.TokenID,
	})
	if err != nil {
		return err
	}

	generator := options.generator
	if generator == nil {
		apiKey := ""
		if cfg.Backend.Provider != core.BackendBedrock {
			apiKey, err = secrets.ResolveField(ctx, store, cfg.Backend.APIKeyID, secrets.FieldAPIKey)
			if err != nil {
				return err
			}
		}
		generator, err = backend.New(ctx, cfg.Backend, apiKey)
		if err != nil {
			return err
		}
	}

	replier, status := options.replier, options.status
	if replier == nil || status == nil {
		client := slackapi.New(creds.BotToken, cfg.Slack.APIURL)
		if replier == nil {
			replier = client
		}
		if status == nil {
			status = client
		}
	}

	claims := options.claims
	if claims == nil {
		claims, err = rt.buildClaimStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
	}

	processor := lazy.NewProcessor(generator, replier)
	processor.FallbackText = cfg.Backend.FallbackText
	processor.CommandFailureText = cfg.Slack.CommandFailureText
	processor.Observer = rt.observer
	if err := processor.RegisterCommand(cfg.Slack.StartProcessName, lazy.NewLongProcess(cfg.Slack.StartProcessDelay)); err != nil {
		return err
	}
	rt.processor = processor
	command := lazy.NewRunTaskCommand(processor)

	rt.local = deferred.NewInProcess(command)
	rt.local.Timeout = cfg.Dispatch.TaskTimeout
	rt.local.Observer = rt.observer

	switch cfg.Dispatch.Mode {
	case core.DispatchModeQueue:
		rt.queue = deferred.NewMemoryQueue(cfg.Dispatch.QueueSize)
		rt.queue.OnDeadLetter = rt.reportDeadLetter
		dispatcher := deferred.NewQueue(rt.queue)
		dispatcher.Observer = rt.observer
		rt.dispatcher = dispatcher
		w, err := deferred.NewWorker(rt.queue, command, deferred.WorkerConfig{
			Concurrency: cfg.Dispatch.Workers,
			TaskTimeout: cfg.Dispatch.TaskTimeout,
			Policy:      gojob.DefaultRetryPolicy(),
			Hooks:       []worker.Hook{gojob.NewLogHook(rt.observer)},
			Observer:    rt.observer,
		})
		if err != nil {
			return err
		}
		rt.worker = w
	case core.DispatchModeInvoke:
		invoker := deferred.NewInvoker(cfg.Dispatch.InvokeURL, cfg.Dispatch.InvokeToken)
		invoker.Timeout = cfg.Dispatch.InvokeTimeout
		invoker.Observer = rt.observer
		rt.dispatcher = invoker
	default:
		rt.dispatcher = rt.local
	}

	var verifier core.Verifier
	if !cfg.Slack.SkipVerification {
		verifier = inbound.NewSignatureVerifier(creds.SigningSecret)
	} else {
		rt.observer.Warn(ctx, "slackdispatch: signature verification disabled", nil)
	}
	if pruner, ok := claims.(inbound.ClaimPruner); ok {
		rt.pruner = &inbound.PruneLoop{Store: pruner, Interval: cfg.Dispatch.ClaimTTL, Observer: rt.observer}
	}
	receiver := inbound.NewReceiver(verifier, claims, rt.dispatcher)
	receiver.ClaimTTL = cfg.Dispatch.ClaimTTL
	receiver.Status = status
	receiver.StatusText = cfg.Slack.StatusText
	receiver.StatusTimeout = cfg.Slack.StatusTimeout
	receiver.Observer = rt.observer
	if options.now != nil {
		receiver.Now = options.now
	}
	if err := receiver.RegisterCommand(inbound.StartProcessCommand(cfg.Slack.StartProcessName)); err != nil {
		return err
	}
	rt.receiver = receiver

	var local core.TaskDispatcher
	if strings.TrimSpace(cfg.Dispatch.InvokeToken) != "" {
		local = rt.local
	}
	handler := httpapi.NewHandler(receiver, local)
	handler.LazyToken = cfg.Dispatch.InvokeToken
	handler.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	handler.Observer = rt.observer
	handler.Now = options.now
	rt.handler = handler.Routes(cfg.HTTP.EventsPath, cfg.HTTP.LazyPath)
	return nil
}

func (rt *Runtime) buildClaimStore(ctx context.Context, cfg core.StoreConfig) (core.ClaimStore, error) {
	if cfg.Driver == core.StoreDriverMemory || cfg.Driver == "" {
		return inbound.NewMemoryClaimStore(), nil
	}
	client, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.client = client
	return sqlstore.NewClaimStoreFromPersistence(client)
}

// buildSecretStore layers sealing and caching over the configured backend.
func buildSecretStore(cfg core.SecretsConfig, lookup func(string) (string, bool)) (core.SecretStore, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var store core.SecretStore
	switch cfg.Backend {
	case core.SecretsBackendFile:
		store = secrets.NewFileStore(cfg.Dir)
	default:
		store = &secrets.EnvStore{Lookup: lookup}
	}

	if name := strings.TrimSpace(cfg.AppKeyEnv); name != "" {
		key, ok := lookup(name)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, core.NewError("slackdispatch: app key environment variable is empty", goerrors.CategoryValidation, core.ErrorConfigInvalid, map[string]any{
				"env": name,
			})
		}
		sealer, err := security.NewSealer([]byte(key))
		if err != nil {
			return nil, err
		}
		store = secrets.NewSealedStore(store, sealer)
	}

	if cfg.CacheTTL <= 0 {
		return store, nil
	}
	cacheService, err := secrets.NewCacheService(cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return secrets.NewCachedStore(store, cacheService)
}

func (rt *Runtime) Handler() http.Handler {
	if rt == nil {
		return nil
	}
	return rt.handler
}

func (rt *Runtime) Config() core.Config {
	if rt == nil {
		return core.Config{}
	}
	return rt.cfg
}

func (rt *Runtime) Receiver() *inbound.Receiver {
	if rt == nil {
		return nil
	}
	return rt.receiver
}

func (rt *Runtime) Processor() *lazy.Processor {
	if rt == nil {
		return nil
	}
	return rt.processor
}

func (rt *Runtime) Dispatcher() core.TaskDispatcher {
	if rt == nil {
		return nil
	}
	return rt.dispatcher
}

// RunWorkers starts the queue workers and the claim pruner, then blocks until
// ctx ends. Workers keep draining accepted tasks after ctx ends; Close stops
// them. It returns immediately when there is nothing to run.
func (rt *Runtime) RunWorkers(ctx context.Context) error {
	if rt == nil || (rt.worker == nil && rt.pruner == nil) {
		return nil
	}
	if rt.worker != nil {
		if err := rt.worker.Start(ctx); err != nil {
			return err
		}
		rt.workersStarted.Store(true)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	if rt.pruner != nil {
		group.Go(func() error {
			return rt.pruner.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})
	return group.Wait()
}

// DeadLetters returns queue tasks that were given up on.
func (rt *Runtime) DeadLetters() []deferred.DeadLetter {
	if rt == nil || rt.queue == nil {
		return nil
	}
	return rt.queue.DeadLetters()
}

func (rt *Runtime) reportDeadLetter(letter deferred.DeadLetter) {
	fields := map[string]any{"reason": letter.Reason}
	if letter.Message != nil {
		fields["task_id"] = letter.Message.IdempotencyKey
		fields["job_id"] = letter.Message.JobID
	}
	ctx := context.Background()
	rt.observer.Counter(ctx, core.MetricDeadLetter, 1, core.TaskTags("", core.DispatchModeQueue))
	rt.observer.Error(ctx, "slackdispatch: task dead-lettered", fields)
}

// Close stops accepting tasks and waits for accepted ones to finish: the
// in-process dispatcher within ctx and the queue within the drain timeout.
// It then releases the queue and the database.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	rt.closeOnce.Do(func() {
		if rt.local != nil {
			if err := rt.local.Close(ctx); err != nil {
				rt.closeErr = err
			}
		}
		if rt.queue != nil {
			if err := rt.drainQueue(ctx); err != nil && rt.closeErr == nil {
				rt.closeErr = err
			}
			rt.queue.Close()
		}
		if rt.client != nil {
			if err := rt.client.Close(); err != nil && rt.closeErr == nil {
				rt.closeErr = core.WrapError(err, goerrors.CategoryInternal, "slackdispatch: close store", core.ErrorInternal, nil)
			}
		}
	})
	return rt.closeErr
}

// drainQueue runs on a context detached from the caller so a cancelled
// shutdown signal does not abandon accepted tasks.
func (rt *Runtime) drainQueue(ctx context.Context) error {
	drainCtx := context.WithoutCancel(ctx)
	if timeout := rt.cfg.Dispatch.DrainTimeout; timeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, timeout)
		defer cancel()
	}
	var drainErr error
	if rt.workersStarted.Load() {
		if err := rt.queue.Drain(drainCtx); err != nil {
			rt.observer.Error(ctx, "slackdispatch: queue drain incomplete", map[string]any{
				"pending": rt.queue.Pending(),
				"error":   err.Error(),
			})
			drainErr = core.WrapError(err, goerrors.CategoryOperation, "slackdispatch: drain queue", core.ErrorDispatchFailed, map[string]any{
				"pending": rt.queue.Pending(),
			})
		}
	}
	if rt.worker != nil {
		if err := rt.worker.Stop(drainCtx); err != nil && drainErr == nil {
			drainErr = core.WrapError(err, goerrors.CategoryOperation, "slackdispatch: stop workers", core.ErrorDispatchFailed, nil)
		}
	}
	return drainErr
}

var _ inbound.ClaimPruner = (*sqlstore.ClaimStore)(nil)
