package slackdispatch

import (
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/httpapi"
)

type Option func(*runtimeOptions)

type runtimeOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	secretStore    core.SecretStore
	lookupEnv      func(string) (string, bool)
	generator      core.Generator
	replier        core.Replier
	status         core.StatusIndicator
	claims         core.ClaimStore
	forwarder      httpapi.Forwarder
	now            func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(o *runtimeOptions) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *runtimeOptions) { o.loggerProvider = provider }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *runtimeOptions) { o.metrics = metrics }
}

// WithSecretStore replaces the store built from the secrets config.
func WithSecretStore(store core.SecretStore) Option {
	return func(o *runtimeOptions) { o.secretStore = store }
}

// WithEnvLookup replaces os.LookupEnv for the env secret backend and the app
// key.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *runtimeOptions) { o.lookupEnv = lookup }
}

func WithGenerator(generator core.Generator) Option {
	return func(o *runtimeOptions) { o.generator = generator }
}

func WithReplier(replier core.Replier) Option {
	return func(o *runtimeOptions) { o.replier = replier }
}

func WithStatusIndicator(status core.StatusIndicator) Option {
	return func(o *runtimeOptions) { o.status = status }
}

func WithClaimStore(claims core.ClaimStore) Option {
	return func(o *runtimeOptions) { o.claims = claims }
}

// WithForwarder replaces the invoker a relay unit forwards to.
func WithForwarder(forwarder httpapi.Forwarder) Option {
	return func(o *runtimeOptions) { o.forwarder = forwarder }
}

func WithClock(now func() time.Time) Option {
	return func(o *runtimeOptions) { o.now = now }
}

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}
