package vhlo

import (
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/hlir/convert"
	"github.com/gohlo/hlir/pkg/hlir/rewrite"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Legalize converts a module from the source vocabulary into the versioned
// vocabulary at the given target version: every operation is first stamped
// with its current-version revision, then the module is migrated down (or up)
// to the target. After it succeeds no operation of the source vocabulary
// remains.
func Legalize(module *hlir.Module, target Version, registry *Registry) error {
	if registry == nil {
		registry = NewRegistry()
	}
	if !registry.Supports(target) {
		return errors.Errorf("version %s is not a known release (supported range %s to %s)",
			target, MinimumSupported, Current)
	}

	conversionTarget := convert.NewTarget().
		AddLegalDialect(hlir.VHLO).
		AddIllegalDialect(hlir.HLO)
	patterns := []rewrite.Pattern{toVersionedPattern{registry}}
	for _, fn := range module.Functions {
		if err := convert.Apply(fn, conversionTarget, nil, patterns, rewrite.Options{}); err != nil {
			return errors.WithMessagef(err, "legalizing function %q into the versioned vocabulary", fn.Name)
		}
	}
	return Migrate(module, Current, target, registry)
}

// Delegalize converts a module from the versioned vocabulary back into the
// source vocabulary, upgrading to the current version first so the source
// form always reflects current semantics. Removed entities are exempt from
// the upgrade: usage of a deprecated opcode is tolerated here, it only fails
// when serializing past its removal release.
func Delegalize(module *hlir.Module, from Version, registry *Registry) error {
	if registry == nil {
		registry = NewRegistry()
	}
	// Operations whose opcode was dropped from the vocabulary cannot travel
	// through their removal release; they convert to the source form directly
	// and skip the migration below.
	for _, fn := range module.Functions {
		for _, op := range fn.Operations() {
			if op.Dialect != hlir.VHLO {
				continue
			}
			interval, ok := registry.removedInterval(op.OpType)
			if !ok {
				continue
			}
			klog.V(1).Infof("operation %s in function %q predates its removal in version %s, converting directly",
				op, fn.Name, interval.RemovedIn)
			op.Dialect = hlir.HLO
			op.ClearAttr(hlir.AttrVersionRevision)
		}
	}
	if err := Migrate(module, from, Current, registry); err != nil {
		return err
	}

	conversionTarget := convert.NewTarget().
		AddLegalDialect(hlir.HLO).
		AddIllegalDialect(hlir.VHLO)
	patterns := []rewrite.Pattern{fromVersionedPattern{}}
	for _, fn := range module.Functions {
		if err := convert.Apply(fn, conversionTarget, nil, patterns, rewrite.Options{}); err != nil {
			return errors.WithMessagef(err, "legalizing function %q out of the versioned vocabulary", fn.Name)
		}
	}
	return nil
}

// toVersionedPattern moves one operation into the versioned vocabulary,
// stamping the revision legal at the current version.
type toVersionedPattern struct {
	registry *Registry
}

func (toVersionedPattern) Name() string { return "hlo-to-vhlo" }

func (toVersionedPattern) Benefit() int { return 1 }

func (p toVersionedPattern) MatchAndRewrite(r *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if op.Dialect != hlir.HLO {
		return false, nil
	}
	revision, err := p.registry.RevisionAt(op.OpType, Current)
	if err != nil {
		return false, errors.WithMessagef(err, "operation %s", op)
	}
	op.Dialect = hlir.VHLO
	op.SetAttr(hlir.AttrVersionRevision, revision)
	r.NotifyChanged(op)
	return true, nil
}

// fromVersionedPattern moves one operation back into the source vocabulary,
// dropping its revision stamp.
type fromVersionedPattern struct{}

func (fromVersionedPattern) Name() string { return "vhlo-to-hlo" }

func (fromVersionedPattern) Benefit() int { return 1 }

func (fromVersionedPattern) MatchAndRewrite(r *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if op.Dialect != hlir.VHLO {
		return false, nil
	}
	op.Dialect = hlir.HLO
	op.ClearAttr(hlir.AttrVersionRevision)
	r.NotifyChanged(op)
	return true, nil
}
