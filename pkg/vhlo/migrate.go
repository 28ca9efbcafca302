package vhlo

import (
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Migrate rewrites a module already expressed in the versioned vocabulary
// from one format version to another, composing single adjacent-version steps
// in the direction of travel. Both versions must be releases the registry
// knows about.
//
// Each step re-resolves the revision of every operation at the step's target
// version. An operation whose validity interval excludes a version on the
// path is a hard failure; migration past the removal release of a removed
// entity names that release.
func Migrate(module *hlir.Module, from, to Version, registry *Registry) error {
	if registry == nil {
		registry = NewRegistry()
	}
	for _, v := range []Version{from, to} {
		if !registry.Supports(v) {
			return errors.Errorf("version %s is not a known release (supported range %s to %s)",
				v, MinimumSupported, Current)
		}
	}
	at := from
	for !at.Equal(to) {
		var next Version
		var ok bool
		if at.Less(to) {
			next, ok = registry.Next(at)
		} else {
			next, ok = registry.Prev(at)
		}
		if !ok {
			return errors.Errorf("no migration step from version %s towards %s", at, to)
		}
		if err := migrateStep(module, next, registry); err != nil {
			return errors.WithMessagef(err, "migrating from version %s to %s", at, next)
		}
		klog.V(1).Infof("migrated module from version %s to %s", at, next)
		at = next
	}
	return nil
}

// migrateStep moves every versioned operation of the module to the revision
// legal at the given release.
func migrateStep(module *hlir.Module, target Version, registry *Registry) error {
	for _, fn := range module.Functions {
		for _, op := range fn.Operations() {
			if op.Dialect != hlir.VHLO {
				continue
			}
			revision, err := registry.RevisionAt(op.OpType, target)
			if err != nil {
				return errors.WithMessagef(err, "operation %s in function %q", op, fn.Name)
			}
			current, _ := op.IntAttr(hlir.AttrVersionRevision)
			if current != revision {
				op.SetAttr(hlir.AttrVersionRevision, revision)
			}
		}
	}
	return nil
}

// CheckDeprecated reports every operation whose opcode was removed from the
// current vocabulary and so can no longer be serialized at recent versions.
// When strict is set the first such operation is a hard failure; otherwise
// each one is logged as a warning and the module is left untouched.
func CheckDeprecated(module *hlir.Module, registry *Registry, strict bool) error {
	if registry == nil {
		registry = NewRegistry()
	}
	for _, fn := range module.Functions {
		for _, op := range fn.Operations() {
			interval, ok := registry.removedInterval(op.OpType)
			if !ok {
				continue
			}
			if strict {
				return errors.Errorf("operation %s in function %q uses deprecated opcode %s, removed in version %s",
					op, fn.Name, entityName(op.OpType), interval.RemovedIn)
			}
			klog.Warningf("operation %s in function %q uses deprecated opcode %s, removed in version %s: "+
				"it is only expressible at or below version %s",
				op, fn.Name, entityName(op.OpType), interval.RemovedIn, interval.Max)
		}
	}
	return nil
}

// CheckExpressible verifies every versioned operation of the module can be
// emitted at the target version, without mutating anything. It is used
// before serialization.
func CheckExpressible(module *hlir.Module, target Version, registry *Registry) error {
	if registry == nil {
		registry = NewRegistry()
	}
	for _, fn := range module.Functions {
		for _, op := range fn.Operations() {
			if op.Dialect != hlir.VHLO {
				continue
			}
			if _, err := registry.RevisionAt(op.OpType, target); err != nil {
				return errors.WithMessagef(err, "operation %s in function %q", op, fn.Name)
			}
		}
	}
	return nil
}
