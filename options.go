package entity

import (
	"github.com/goliatone/go-entity/config"
	"github.com/goliatone/go-entity/internal/hydrate"
	"github.com/goliatone/go-entity/pkg/activity"
	"github.com/goliatone/go-entity/rules"
)

// Option configures a Runtime.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	cfg          config.Config
	hooks        activity.Hooks
	channel      string
	verbs        []string
	metadata     map[string]any
	logger       OperationLogger
	authorizer   Authorizer
	rules        map[*Type]rules.Set
	payloadHooks []hydrate.PreHook
}

func applyOptions(opts []Option) runtimeConfig {
	cfg := runtimeConfig{
		cfg:   config.Default(),
		rules: map[*Type]rules.Set{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithConfig replaces the default configuration. Zero fields fall back to
// config.Default.
func WithConfig(cfg config.Config) Option {
	return func(rc *runtimeConfig) {
		rc.cfg = cfg.WithDefaults()
	}
}

// WithActivityHooks attaches hooks that receive entity lifecycle events.
// Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(rc *runtimeConfig) {
		rc.hooks = append(rc.hooks, normalized...)
	}
}

// WithActivityChannel overrides the channel stamped on emitted events.
func WithActivityChannel(channel string) Option {
	return func(rc *runtimeConfig) {
		rc.channel = channel
	}
}

// WithActivityVerbs limits emitted events to verbs, for example to drop
// property change events in high-volume imports.
func WithActivityVerbs(verbs ...string) Option {
	return func(rc *runtimeConfig) {
		rc.verbs = append(rc.verbs, verbs...)
	}
}

// WithActivityMetadata adds key/value pairs to every emitted event.
func WithActivityMetadata(metadata map[string]any) Option {
	return func(rc *runtimeConfig) {
		if rc.metadata == nil {
			rc.metadata = map[string]any{}
		}
		for key, value := range metadata {
			rc.metadata[key] = value
		}
	}
}

// WithOperationLogger reports portal, serializer and notification outcomes to
// logger. Repeated calls fan out to every logger.
func WithOperationLogger(logger OperationLogger) Option {
	return func(rc *runtimeConfig) {
		if logger == nil {
			return
		}
		if rc.logger == nil {
			rc.logger = logger
			return
		}
		rc.logger = OperationLoggers{rc.logger, logger}
	}
}

// WithAuthorizer sets the authorization collaborator. The default allows
// everything.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(rc *runtimeConfig) {
		rc.authorizer = authorizer
	}
}

// WithRules binds rules to t. Repeated calls append.
func WithRules(t *Type, set ...rules.Rule) Option {
	return func(rc *runtimeConfig) {
		if t == nil {
			return
		}
		rc.rules[t] = append(rc.rules[t], set...)
	}
}

// WithPayloadHook transforms decoded JSON payloads before deserialization,
// for example to migrate renamed properties.
func WithPayloadHook(hook hydrate.PreHook) Option {
	return func(rc *runtimeConfig) {
		if hook != nil {
			rc.payloadHooks = append(rc.payloadHooks, hook)
		}
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
