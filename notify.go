package entity

import (
	"context"
	"time"

	"github.com/goliatone/go-entity/pkg/activity"
)

const (
	verbPropertyChanged = activity.VerbPropertyChanged
	verbDirty           = activity.VerbDirty
	verbDeleted         = activity.VerbDeleted
	verbMarkedNew       = activity.VerbMarkedNew
	verbMarkedOld       = activity.VerbMarkedOld
	verbCreated         = activity.VerbCreated
	verbFetched         = activity.VerbFetched
	verbSaved           = activity.VerbSaved
)

func (b *Base) notify(verb string, input *activity.EntityEventInput) {
	if !b.bound() {
		return
	}
	var in activity.EntityEventInput
	if input != nil {
		in = *input
	}
	b.rt.emit(b.eventContext(), verb, b, in)
}

// SetContext attaches ctx to the entity for the events its later edits raise.
// Cancellation is dropped; only the values are kept. Portal calls set it.
func (b *Base) SetContext(ctx context.Context) {
	if ctx == nil {
		b.ctx = nil
		return
	}
	b.ctx = context.WithoutCancel(ctx)
}

// eventContext returns the nearest context attached to the entity or one of
// its parents.
func (b *Base) eventContext() context.Context {
	seen := map[*Base]struct{}{}
	for core := b; core != nil; {
		if _, ok := seen[core]; ok {
			break
		}
		seen[core] = struct{}{}
		if core.ctx != nil {
			return core.ctx
		}
		if core.parent == nil {
			break
		}
		core = core.parent.Core()
	}
	return context.Background()
}

func (b *Base) notifyPropertyChanged(name string, previous, value any) {
	b.notify(verbPropertyChanged, &activity.EntityEventInput{
		Property: name,
		OldValue: eventValue(previous),
		NewValue: eventValue(value),
	})
}

// eventValue keeps nested entities out of event metadata; hooks get a
// reference instead of the live object.
func eventValue(value any) any {
	e, ok := value.(Entity)
	if !ok {
		return value
	}
	core := e.Core()
	return map[string]any{
		ClassIdentifierKey: core.classIdentifier,
		"instanceId":       core.instanceID.String(),
	}
}

// emit delivers an event to the activity hooks. Hook failures never reach the
// caller; they are reported to the operation logger.
func (rt *Runtime) emit(ctx context.Context, verb string, b *Base, input activity.EntityEventInput) {
	if rt == nil || !rt.emitter.Emits(verb) {
		return
	}
	if input.ClassIdentifier == "" {
		input.ClassIdentifier = b.classIdentifier
	}
	if input.InstanceID == "" {
		input.InstanceID = b.instanceID.String()
	}
	if actor, ok := activity.ActorFromContext(ctx); ok && input.Actor == (activity.Actor{}) {
		input.Actor = actor
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now().UTC()
	}

	start := time.Now()
	if err := rt.emitter.Emit(ctx, activity.BuildEntityEvent(verb, input)); err != nil {
		rt.observe("notify:"+verb, b.classIdentifier, start, err)
	}
}
