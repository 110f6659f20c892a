package activity

import (
	"context"
	"strings"
	"time"
)

// Verbs emitted for entity lifecycle changes.
const (
	VerbPropertyChanged = "entity.property.changed"
	VerbDirty           = "entity.dirty"
	VerbDeleted         = "entity.deleted"
	VerbMarkedNew       = "entity.marked_new"
	VerbMarkedOld       = "entity.marked_old"
	VerbCreated         = "entity.created"
	VerbFetched         = "entity.fetched"
	VerbSaved           = "entity.saved"
)

// Actor identifies who triggered an event.
type Actor struct {
	ActorID  string
	UserID   string
	TenantID string
}

type actorKey struct{}

// WithActor stores actor on ctx for events emitted by portal operations.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// EntityEventInput describes the common fields for entity lifecycle events.
type EntityEventInput struct {
	Actor           Actor
	ClassIdentifier string
	InstanceID      string
	Channel         string
	DefinitionCode  string
	Recipients      []string
	Metadata        map[string]any
	Property        string
	OldValue        any
	NewValue        any
	OccurredAt      time.Time
}

// BuildEntityEvent constructs an activity event for verb. The object type is
// the class identifier and the object id the instance id.
func BuildEntityEvent(verb string, input EntityEventInput) Event {
	objectType := strings.TrimSpace(input.ClassIdentifier)
	if objectType == "" {
		objectType = "entity"
	}

	metadata := cloneMap(input.Metadata)
	if input.ClassIdentifier != "" {
		metadata = ensureMetadata(metadata)
		metadata["class_identifier"] = input.ClassIdentifier
	}
	if input.Property != "" {
		metadata = ensureMetadata(metadata)
		metadata["property"] = input.Property
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	objectID := strings.TrimSpace(input.InstanceID)
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.Actor.ActorID),
		UserID:         strings.TrimSpace(input.Actor.UserID),
		TenantID:       strings.TrimSpace(input.Actor.TenantID),
		ObjectType:     objectType,
		ObjectID:       objectID,
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
