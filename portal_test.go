package entity

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/goliatone/go-entity/pkg/activity"
	"github.com/goliatone/go-entity/rules"
)

func TestCreateWithIdentifierRunsCreateHook(t *testing.T) {
	recorder := &operationRecorder{}
	rt := newTestRuntime(t, WithOperationLogger(recorder))
	portal := NewPortal(rt)

	e, err := portal.CreateWithIdentifier(context.Background(), "Demo.Widget", map[string]any{"ignored": true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	widget, ok := e.(*Widget)
	if !ok {
		t.Fatalf("expected *Widget, got %T", e)
	}
	if got := widgetX.Get(widget); got != 1 {
		t.Fatalf("expected x == 1, got %d", got)
	}
	if !widget.IsNew() || widget.IsDirty() {
		t.Fatalf("expected new and clean after create, got new=%v dirty=%v", widget.IsNew(), widget.IsDirty())
	}
	if ops := recorder.operations(); !slices.Equal(ops, []string{"create"}) {
		t.Fatalf("unexpected operations %v", ops)
	}
	if recorder.events[0].Identifier != "Demo.Widget" || recorder.events[0].Err != nil {
		t.Fatalf("unexpected operation event %+v", recorder.events[0])
	}
}

func TestCreateFailures(t *testing.T) {
	recorder := &operationRecorder{}
	rt := newTestRuntime(t, WithOperationLogger(recorder))
	portal := NewPortal(rt)
	ctx := context.Background()

	if _, err := portal.CreateWithType(ctx, PersonType, nil); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented, got %v", err)
	}
	if _, err := portal.CreateWithIdentifier(ctx, "Demo.Gadget", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, event := range recorder.events {
		if event.Err == nil {
			t.Fatalf("expected failures to be logged with errors, got %+v", event)
		}
	}
	if len(recorder.events) != 2 {
		t.Fatalf("expected two logged operations, got %d", len(recorder.events))
	}
	if recorder.events[1].Identifier != "" {
		t.Fatalf("expected unresolved identifier left out of the event, got %q", recorder.events[1].Identifier)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := portal.CreateWithType(cancelled, WidgetType, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFetchMarksOld(t *testing.T) {
	rt := newTestRuntime(t)
	portal := NewPortal(rt)

	e, err := portal.FetchWithIdentifier(context.Background(), "Demo.Widget", 7)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := widgetX.Get(e); got != 7 {
		t.Fatalf("expected x == 7, got %d", got)
	}
	if e.Core().IsNew() || e.Core().IsDirty() {
		t.Fatalf("expected fetched entity to be old and clean")
	}
	if _, err := portal.FetchWithType(context.Background(), WidgetType, "seven"); err == nil {
		t.Fatalf("expected fetch hook error")
	}
	if _, err := portal.FetchWithType(context.Background(), AgeType, nil); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented fetch, got %v", err)
	}
}

func TestSaveDispatchesByState(t *testing.T) {
	recorder := &operationRecorder{}
	rt := newTestRuntime(t, WithOperationLogger(recorder))
	portal := NewPortal(rt)
	ctx := context.Background()

	e, err := portal.CreateWithType(ctx, WidgetType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	widget := e.(*Widget)

	if err := portal.Save(ctx, widget); !errors.Is(err, ErrNotSavable) {
		t.Fatalf("expected clean entity to be unsavable, got %v", err)
	}

	if err := widgetX.Set(widget, 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !widget.IsSavable(ctx) {
		t.Fatalf("expected dirty entity to be savable")
	}
	if err := portal.Save(ctx, widget); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if widget.inserts != 1 || widget.IsNew() || widget.IsDirty() || widget.IsBusy() {
		t.Fatalf("unexpected state after insert: inserts=%d new=%v dirty=%v", widget.inserts, widget.IsNew(), widget.IsDirty())
	}

	if err := widgetX.Set(widget, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := portal.Save(ctx, widget); err != nil {
		t.Fatalf("update: %v", err)
	}
	if widget.updates != 1 {
		t.Fatalf("expected update hook, got %d", widget.updates)
	}

	if err := widget.DeleteSelf(); err != nil {
		t.Fatalf("delete self: %v", err)
	}
	if err := portal.Save(ctx, widget); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if widget.deletes != 1 || !widget.IsNew() || widget.IsDeleted() {
		t.Fatalf("unexpected state after delete: deletes=%d new=%v deleted=%v", widget.deletes, widget.IsNew(), widget.IsDeleted())
	}

	want := []string{"create", "save:insert", "save:insert", "save:update", "save:delete"}
	if ops := recorder.operations(); !slices.Equal(ops, want) {
		t.Fatalf("unexpected operations:\nwant: %v\n got: %v", want, ops)
	}
}

func TestSaveDeletedNewEntitySkipsHook(t *testing.T) {
	rt := newTestRuntime(t)
	widget := mustNew[*Widget](t, rt, WidgetType)
	if err := widget.DeleteSelf(); err != nil {
		t.Fatalf("delete self: %v", err)
	}
	if err := NewPortal(rt).Save(context.Background(), widget); err != nil {
		t.Fatalf("save: %v", err)
	}
	if widget.deletes != 0 || widget.IsDeleted() || !widget.IsNew() {
		t.Fatalf("expected unsaved deleted entity to reset without delete hook")
	}
}

func TestSaveRefusesChildAndMissingHook(t *testing.T) {
	rt := newTestRuntime(t)
	person := mustNew[*Person](t, rt, PersonType)
	age := mustNew[*Age](t, rt, AgeType)
	age.MarkAsChild()
	if err := personAge.Set(person, age); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := NewPortal(rt).Save(context.Background(), age)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected child save to be refused, got %v", err)
	}

	// Person has no Insert hook.
	if err := NewPortal(rt).Save(context.Background(), person); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("expected unimplemented insert, got %v", err)
	}
	if person.IsBusy() {
		t.Fatalf("expected busy flag cleared after failure")
	}
}

func TestSaveHookErrorKeepsState(t *testing.T) {
	rt := newTestRuntime(t)
	widget := mustNew[*Widget](t, rt, WidgetType)
	widget.failSave = errors.New("disk full")
	if err := widgetX.Set(widget, 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := NewPortal(rt).Save(context.Background(), widget); !errors.Is(err, widget.failSave) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if !widget.IsNew() || !widget.IsDirty() || widget.IsBusy() {
		t.Fatalf("expected state unchanged after failed insert")
	}
}

func TestSaveChecksRules(t *testing.T) {
	rt := newTestRuntime(t, WithRules(WidgetType,
		rules.Expression("positive", "x", "x > 0", rules.WithDescription("x must be positive")),
	))
	widget := mustNew[*Widget](t, rt, WidgetType)
	if err := widgetX.Set(widget, -1); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := NewPortal(rt).Save(context.Background(), widget)
	if !errors.Is(err, ErrNotSavable) {
		t.Fatalf("expected invalid entity to be unsavable, got %v", err)
	}
	if widget.IsValid() || widget.IsSelfValid() {
		t.Fatalf("expected broken rule to invalidate entity")
	}
	broken := widget.BrokenRules()
	if len(broken) != 1 || broken[0].Property != "x" || broken[0].Description != "x must be positive" {
		t.Fatalf("unexpected broken rules %+v", broken)
	}

	if err := widgetX.Set(widget, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := NewPortal(rt).Save(context.Background(), widget); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !widget.IsValid() || widget.inserts != 1 {
		t.Fatalf("expected valid entity to be inserted")
	}
}

func TestChildRulesInvalidateParent(t *testing.T) {
	rt := newTestRuntime(t, WithRules(AgeType, rules.Predicate("adult", "value", "must be an adult",
		func(_ context.Context, rc rules.Context) bool {
			value, _ := rc.Snapshot["value"].(int)
			return value >= 18
		},
	)))
	person := mustNew[*Person](t, rt, PersonType)
	age := mustNew[*Age](t, rt, AgeType)
	if err := ageValue.Set(age, 12); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := personAge.Set(person, age); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := person.CheckRules(context.Background()); err != nil {
		t.Fatalf("check rules: %v", err)
	}
	if !person.IsSelfValid() || person.IsValid() {
		t.Fatalf("expected child violation to invalidate parent only through IsValid")
	}
	if person.IsSavable(context.Background()) {
		t.Fatalf("expected invalid graph to be unsavable")
	}
}

func TestSaveAuthorization(t *testing.T) {
	var seen []Action
	rt := newTestRuntime(t, WithAuthorizer(AuthorizerFunc(func(_ context.Context, action Action, _ Entity) bool {
		seen = append(seen, action)
		return action != ActionDelete
	})))
	portal := NewPortal(rt)
	ctx := context.Background()

	e, err := portal.FetchWithType(ctx, WidgetType, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := e.Core().DeleteSelf(); err != nil {
		t.Fatalf("delete self: %v", err)
	}
	if e.Core().IsSavable(ctx) {
		t.Fatalf("expected unauthorized delete to be unsavable")
	}
	if err := portal.Save(ctx, e); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if e.(*Widget).deletes != 0 {
		t.Fatalf("expected delete hook not to run")
	}
	if !slices.Contains(seen, ActionFetch) || !slices.Contains(seen, ActionDelete) {
		t.Fatalf("expected fetch and delete to be authorized, got %v", seen)
	}
}

func TestCreateUnauthorized(t *testing.T) {
	rt := newTestRuntime(t, WithAuthorizer(AuthorizerFunc(func(context.Context, Action, Entity) bool { return false })))
	if _, err := NewPortal(rt).CreateWithType(context.Background(), WidgetType, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestActivityEventsForLifecycle(t *testing.T) {
	capture := &activity.CaptureHook{}
	rt := newTestRuntime(t, WithActivityHooks(activity.Hooks{capture}), WithActivityChannel("audit"))
	portal := NewPortal(rt)
	ctx := activity.WithActor(context.Background(), activity.Actor{ActorID: "actor-1", TenantID: "tenant-1"})

	e, err := portal.CreateWithType(ctx, PersonType, nil)
	if !errors.Is(err, ErrUnimplemented) || e != nil {
		t.Fatalf("expected unimplemented create, got %v", err)
	}

	w, err := portal.CreateWithType(ctx, WidgetType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := widgetX.Set(w, 9); err != nil {
		t.Fatalf("set: %v", err)
	}

	if len(capture.Events) != 3 {
		t.Fatalf("expected created, dirty and property events, got %d", len(capture.Events))
	}
	created := capture.Events[0]
	if created.Verb != activity.VerbCreated || created.ActorID != "actor-1" || created.TenantID != "tenant-1" {
		t.Fatalf("unexpected created event %+v", created)
	}
	if created.ObjectType != "Demo.Widget" || created.ObjectID != w.Core().InstanceID().String() || created.Channel != "audit" {
		t.Fatalf("unexpected created event target %+v", created)
	}
	if capture.Events[1].Verb != activity.VerbDirty {
		t.Fatalf("expected dirty event, got %q", capture.Events[1].Verb)
	}
	changed := capture.Events[2]
	if changed.Verb != activity.VerbPropertyChanged {
		t.Fatalf("expected property event, got %q", changed.Verb)
	}
	if changed.Metadata["property"] != "x" || changed.Metadata["old_value"] != 1 || changed.Metadata["new_value"] != 9 {
		t.Fatalf("unexpected property metadata %+v", changed.Metadata)
	}
}

func TestActivityHookFailureIsLogged(t *testing.T) {
	recorder := &operationRecorder{}
	failing := activity.HookFunc(func(context.Context, activity.Event) error { return errors.New("sink down") })
	rt := newTestRuntime(t, WithActivityHooks(activity.Hooks{failing}), WithOperationLogger(recorder))
	widget := mustNew[*Widget](t, rt, WidgetType)

	if err := widget.MarkDeleted(); err != nil {
		t.Fatalf("expected hook failure to stay out of the lifecycle call, got %v", err)
	}
	if ops := recorder.operations(); !slices.Equal(ops, []string{"notify:" + activity.VerbDeleted}) {
		t.Fatalf("unexpected operations %v", ops)
	}
	if recorder.events[0].Err == nil {
		t.Fatalf("expected logged hook error")
	}
}

func TestActivityVerbFilterAndMetadata(t *testing.T) {
	capture := &activity.CaptureHook{}
	rt := newTestRuntime(t,
		WithActivityHooks(activity.Hooks{capture}),
		WithActivityVerbs(activity.VerbCreated, activity.VerbSaved),
		WithActivityMetadata(map[string]any{"service": "widgets"}),
	)
	portal := NewPortal(rt)
	ctx := context.Background()

	w, err := portal.CreateWithType(ctx, WidgetType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := widgetX.Set(w, 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := portal.Save(ctx, w); err != nil {
		t.Fatalf("save: %v", err)
	}

	if got := capture.Verbs(); !slices.Equal(got, []string{activity.VerbCreated, activity.VerbSaved}) {
		t.Fatalf("expected only created and saved events, got %v", got)
	}
	saved := capture.Events[1]
	if saved.Metadata["service"] != "widgets" || saved.Metadata["action"] != string(ActionInsert) {
		t.Fatalf("unexpected saved metadata %v", saved.Metadata)
	}
}

func TestMarkSavedDetachesDeletedChildren(t *testing.T) {
	rt := newTestRuntime(t)
	person := mustNew[*Person](t, rt, PersonType)
	age := mustNew[*Age](t, rt, AgeType)
	age.MarkAsChild()
	mustSet(t, personAge.Set(person, age))
	person.MarkSaved()

	if err := age.DeleteChild(); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if !person.IsDirty() {
		t.Fatalf("expected deleted child to dirty its parent")
	}

	person.MarkSaved()
	if person.IsDirty() || age.IsSelfDirty() {
		t.Fatalf("expected graph clean after save: parent=%v child=%v", person.IsDirty(), age.IsSelfDirty())
	}
	if personAge.Get(person) != nil || len(person.Children()) != 0 || age.Parent() != nil {
		t.Fatalf("expected deleted child detached from parent")
	}
	if err := NewPortal(rt).Save(context.Background(), person); !errors.Is(err, ErrNotSavable) {
		t.Fatalf("expected clean parent to be unsavable, got %v", err)
	}
}

func TestChangeEventsCarryPortalActor(t *testing.T) {
	capture := &activity.CaptureHook{}
	rt := newTestRuntime(t, WithActivityHooks(activity.Hooks{capture}), WithActivityVerbs(activity.VerbPropertyChanged))
	ctx, cancel := context.WithCancel(activity.WithActor(context.Background(), activity.Actor{ActorID: "actor-1"}))

	w, err := NewPortal(rt).CreateWithType(ctx, WidgetType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancel()
	mustSet(t, widgetX.Set(w, 5))
	if len(capture.Events) != 1 || capture.Events[0].ActorID != "actor-1" {
		t.Fatalf("expected property event with the create actor, got %+v", capture.Events)
	}

	person := mustNew[*Person](t, rt, PersonType)
	person.SetContext(activity.WithActor(context.Background(), activity.Actor{ActorID: "actor-2"}))
	age := mustNew[*Age](t, rt, AgeType)
	mustSet(t, personAge.Set(person, age))
	capture.Reset()
	mustSet(t, ageValue.Set(age, 30))

	bare := mustNew[*Age](t, rt, AgeType)
	mustSet(t, ageValue.Set(bare, 1))

	if len(capture.Events) != 2 {
		t.Fatalf("expected two property events, got %d", len(capture.Events))
	}
	if capture.Events[0].ActorID != "actor-2" {
		t.Fatalf("expected child event to use the parent context, got %+v", capture.Events[0])
	}
	if capture.Events[1].ActorID != "" {
		t.Fatalf("expected no actor without a context, got %q", capture.Events[1].ActorID)
	}
}
