package entity

import (
	"context"

	"github.com/goliatone/go-entity/rules"
)

// IsNew reports whether the entity has not been persisted yet.
func (b *Base) IsNew() bool { return b.isNew }

// IsSelfDirty reports whether this entity, ignoring children, has changes.
func (b *Base) IsSelfDirty() bool { return b.isSelfDirty }

// IsDirty reports whether this entity or any registered child has changes.
func (b *Base) IsDirty() bool {
	return b.anyInGraph(func(core *Base) bool { return core.isSelfDirty })
}

// IsDeleted reports whether the entity is marked for deletion.
func (b *Base) IsDeleted() bool { return b.isDeleted }

// IsChild reports whether the entity is owned by a parent.
func (b *Base) IsChild() bool { return b.isChild }

// IsBusy reports whether a save is in progress.
func (b *Base) IsBusy() bool { return b.isBusy }

// IsLoading reports whether dirty tracking is suspended.
func (b *Base) IsLoading() bool { return b.isLoading }

// IsSelfValid reports whether this entity has no error-severity broken rules
// from its last CheckRules.
func (b *Base) IsSelfValid() bool { return !rules.HasErrors(b.brokenRules) }

// IsValid reports whether this entity and every registered child are valid.
func (b *Base) IsValid() bool {
	return !b.anyInGraph(func(core *Base) bool { return !core.IsSelfValid() })
}

// IsSavable reports whether Save would proceed: authorized, dirty, valid and
// not busy.
func (b *Base) IsSavable(ctx context.Context) bool {
	if !b.bound() {
		return false
	}
	return b.IsDirty() && b.IsValid() && !b.isBusy && b.rt.authorize(ctx, saveAction(b), b.self)
}

// BrokenRules returns the violations recorded by the last CheckRules.
func (b *Base) BrokenRules() []rules.BrokenRule {
	return append([]rules.BrokenRule(nil), b.brokenRules...)
}

// anyInGraph walks this entity and its children once each.
func (b *Base) anyInGraph(match func(*Base) bool) bool {
	seen := map[*Base]struct{}{}
	var visit func(core *Base) bool
	visit = func(core *Base) bool {
		if _, ok := seen[core]; ok {
			return false
		}
		seen[core] = struct{}{}
		if match(core) {
			return true
		}
		for _, child := range core.children {
			if visit(child.Core()) {
				return true
			}
		}
		return false
	}
	return visit(b)
}

// MarkNew flags the entity as unsaved and dirty and clears deletion.
func (b *Base) MarkNew() {
	b.isNew = true
	b.isDeleted = false
	b.MarkDirty(true)
	b.notify(verbMarkedNew, nil)
}

// MarkOld flags the entity as persisted and clean.
func (b *Base) MarkOld() {
	b.isNew = false
	b.MarkClean()
	b.notify(verbMarkedOld, nil)
}

// MarkDeleted flags the entity for deletion. Marking an already deleted
// entity fails with ErrInvalidStateTransition.
func (b *Base) MarkDeleted() error {
	if b.isDeleted {
		return b.stateError("MarkDeleted", "already deleted")
	}
	b.isDeleted = true
	b.MarkDirty(true)
	b.notify(verbDeleted, nil)
	return nil
}

// MarkClean clears the self dirty flag.
func (b *Base) MarkClean() {
	b.isSelfDirty = false
}

// MarkDirty sets the self dirty flag, notifying hooks unless suppressNotify.
func (b *Base) MarkDirty(suppressNotify bool) {
	b.isSelfDirty = true
	if !suppressNotify {
		b.notify(verbDirty, nil)
	}
}

// MarkAsChild flags the entity as owned by a parent.
func (b *Base) MarkAsChild() {
	b.isChild = true
}

// MarkBusy flags a save in progress. It fails while already busy.
func (b *Base) MarkBusy() error {
	if b.isBusy {
		return b.stateError("MarkBusy", "already busy")
	}
	b.isBusy = true
	return nil
}

// MarkIdle clears the busy flag.
func (b *Base) MarkIdle() {
	b.isBusy = false
}

// DeleteSelf marks a root entity deleted. Children must go through DeleteChild.
func (b *Base) DeleteSelf() error {
	if b.isChild {
		return b.stateError("DeleteSelf", "child entities must be deleted through DeleteChild")
	}
	return b.MarkDeleted()
}

// DeleteChild marks a child entity deleted. Roots must go through DeleteSelf.
func (b *Base) DeleteChild() error {
	if !b.isChild {
		return b.stateError("DeleteChild", "root entities must be deleted through DeleteSelf")
	}
	return b.MarkDeleted()
}

// Load runs fn with dirty tracking suspended and restores the previous mode
// afterwards, including when fn panics.
func (b *Base) Load(fn func() error) error {
	if fn == nil {
		return nil
	}
	previous := b.isLoading
	b.isLoading = true
	defer func() { b.isLoading = previous }()
	return fn()
}

// CheckRules evaluates the rules bound to this entity's type and to each
// registered child, replacing their broken rule lists.
func (b *Base) CheckRules(ctx context.Context) error {
	if !b.bound() {
		return ErrNotConstructed
	}
	seen := map[*Base]struct{}{}
	var check func(core *Base) error
	check = func(core *Base) error {
		if _, ok := seen[core]; ok {
			return nil
		}
		seen[core] = struct{}{}
		for _, child := range core.children {
			if err := check(child.Core()); err != nil {
				return err
			}
		}
		set := core.rt.rulesFor(core.typ)
		broken, err := set.Check(ctx, rules.Context{
			Identifier: core.classIdentifier,
			Snapshot:   core.snapshot(map[*Base]struct{}{}),
		})
		if err != nil {
			return err
		}
		core.brokenRules = broken
		return nil
	}
	return check(b)
}

// snapshot maps property names to values for rule evaluation, with nested
// entities flattened into maps.
func (b *Base) snapshot(seen map[*Base]struct{}) map[string]any {
	seen[b] = struct{}{}
	defer delete(seen, b)
	out := make(map[string]any, len(b.values))
	for name, value := range b.values {
		if child, ok := value.(Entity); ok {
			core := child.Core()
			if _, cyclic := seen[core]; cyclic {
				continue
			}
			out[name] = core.snapshot(seen)
			continue
		}
		out[name] = value
	}
	return out
}
