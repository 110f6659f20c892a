// Package entity is a runtime for stateful business entities: objects that
// track their own creation, mutation and deletion lifecycle, expose typed
// properties through an accessor layer, form parent/child graphs and survive
// a serialization round trip with their concrete types restored.
//
// Types are declared once with Define and placed in a caller-owned
// identity.Namespace. A Runtime binds that namespace to a config.Config and
// the external collaborators (rules, authorization, activity hooks, logging):
//
//	scope := identity.Namespace{"Demo": identity.Namespace{"Widget": WidgetType}}
//	rt, err := entity.NewRuntime(scope)
//	portal := entity.NewPortal(rt)
//	w, err := portal.CreateWithIdentifier(ctx, "Demo.Widget", nil)
//
// Entities are not safe for concurrent mutation. The Runtime is.
package entity
