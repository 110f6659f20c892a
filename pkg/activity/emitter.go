package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events emitted without an explicit channel.
const DefaultChannel = "entity"

// Config controls activity emission defaults supplied by the runtime.
type Config struct {
	Enabled bool
	Channel string
	// Verbs limits emission to the listed verbs. Empty emits every verb.
	Verbs []string
	// Metadata is merged into every event. Event keys win on conflict.
	Metadata map[string]any
}

// Emitter stamps runtime defaults on events and fans them out to hooks.
type Emitter struct {
	hooks    Hooks
	enabled  bool
	channel  string
	verbs    verbSet
	metadata map[string]any
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalizedHooks := cloneHooks(hooks)
	return &Emitter{
		hooks:    normalizedHooks,
		enabled:  cfg.Enabled && len(normalizedHooks) > 0,
		channel:  channel,
		verbs:    newVerbSet(cfg.Verbs),
		metadata: cloneMap(cfg.Metadata),
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emits reports whether an event with verb would reach the hooks.
func (e *Emitter) Emits(verb string) bool {
	return e.Enabled() && e.verbs.has(verb)
}

// Emit forwards the event to all hooks, applying the default channel and
// metadata.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Emits(strings.TrimSpace(event.Verb)) {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if len(e.metadata) > 0 {
		merged := cloneMap(e.metadata)
		for key, value := range event.Metadata {
			merged[key] = value
		}
		event.Metadata = merged
	}
	return e.hooks.Notify(ctx, event)
}

func cloneHooks(hooks Hooks) Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	return Hooks(normalized)
}
