// Package convert implements the dialect conversion driver: it translates a
// function from a source vocabulary into a target vocabulary using
// legalization patterns plus a type converter, then verifies that every
// remaining operation is legal in the target.
//
// Unlike plain rewriting, conversion commits structural changes
// incrementally, so a partially converted operation can still participate in
// later matches. Any operation left illegal after all patterns are exhausted
// is a hard failure reported with the offending operation.
package convert

import (
	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/internal/utils"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/hlir/rewrite"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// TypeConverter maps source types to target types. The mapping may be
// one-to-one or one-to-many (for decomposed types); many-to-one mappings are
// expressed in-graph through materialization casts.
type TypeConverter interface {
	// Convert returns the target form(s) of the given source type. An empty
	// slice means the type is dropped; a single identical shape means the
	// type is already legal.
	Convert(shape shapes.Shape) ([]shapes.Shape, error)
}

// IdentityTypeConverter maps every type to itself. The hlo<->vhlo conversion
// uses it: both vocabularies share the tensor type structure.
type IdentityTypeConverter struct{}

// Convert implements TypeConverter.
func (IdentityTypeConverter) Convert(shape shapes.Shape) ([]shapes.Shape, error) {
	return []shapes.Shape{shape}, nil
}

// opKey identifies an opcode within a dialect.
type opKey struct {
	dialect hlir.Dialect
	opType  optypes.OpType
}

// Target describes which operations are legal after conversion.
type Target struct {
	legalDialects   utils.Set[hlir.Dialect]
	illegalDialects utils.Set[hlir.Dialect]
	legalOps        utils.Set[opKey]
	illegalOps      utils.Set[opKey]
	dynamicOps      map[opKey]func(op *hlir.Operation) bool
}

// NewTarget returns an empty conversion target.
func NewTarget() *Target {
	return &Target{
		legalDialects:   utils.MakeSet[hlir.Dialect](),
		illegalDialects: utils.MakeSet[hlir.Dialect](),
		legalOps:        utils.MakeSet[opKey](),
		illegalOps:      utils.MakeSet[opKey](),
		dynamicOps:      make(map[opKey]func(op *hlir.Operation) bool),
	}
}

// AddLegalDialect marks every operation of the dialects as legal.
func (t *Target) AddLegalDialect(dialects ...hlir.Dialect) *Target {
	t.legalDialects.Insert(dialects...)
	return t
}

// AddIllegalDialect marks every operation of the dialects as illegal unless
// explicitly overridden per-op.
func (t *Target) AddIllegalDialect(dialects ...hlir.Dialect) *Target {
	t.illegalDialects.Insert(dialects...)
	return t
}

// AddLegalOp marks one opcode as legal, overriding its dialect default.
func (t *Target) AddLegalOp(dialect hlir.Dialect, opType optypes.OpType) *Target {
	t.legalOps.Insert(opKey{dialect, opType})
	return t
}

// AddIllegalOp marks one opcode as illegal, overriding its dialect default.
func (t *Target) AddIllegalOp(dialect hlir.Dialect, opType optypes.OpType) *Target {
	t.illegalOps.Insert(opKey{dialect, opType})
	return t
}

// AddDynamicallyLegalOp marks one opcode as legal only when the callback
// accepts the concrete operation.
func (t *Target) AddDynamicallyLegalOp(dialect hlir.Dialect, opType optypes.OpType, isLegal func(op *hlir.Operation) bool) *Target {
	t.dynamicOps[opKey{dialect, opType}] = isLegal
	return t
}

// IsLegal returns whether the operation is legal in the target.
func (t *Target) IsLegal(op *hlir.Operation) bool {
	key := opKey{op.Dialect, op.OpType}
	if callback, ok := t.dynamicOps[key]; ok {
		return callback(op)
	}
	if t.illegalOps.Has(key) {
		return false
	}
	if t.legalOps.Has(key) {
		return true
	}
	if t.illegalDialects.Has(op.Dialect) {
		return false
	}
	return t.legalDialects.Has(op.Dialect)
}

// Apply converts the function to the target vocabulary.
//
// It first rewrites the entry argument types through the type converter
// (inserting materialization casts where consumers still expect the source
// type), then applies the legalization patterns to a fixed point, and finally
// verifies every remaining operation is legal -- aggregating all illegal
// operations into one error.
func Apply(fn *hlir.Function, target *Target, tc TypeConverter, patterns []rewrite.Pattern, opts rewrite.Options) error {
	if tc == nil {
		tc = IdentityTypeConverter{}
	}
	if err := convertArguments(fn, tc); err != nil {
		return err
	}

	result, err := rewrite.Apply(fn, patterns, opts)
	if err != nil {
		return err
	}
	if !result.Converged {
		klog.Warningf("conversion of function %q did not converge; verifying partial result", fn.Name)
	}

	var illegal error
	for _, op := range fn.Operations() {
		if !target.IsLegal(op) {
			illegal = multierr.Append(illegal,
				errors.Errorf("operation %s failed to legalize into the target vocabulary", op))
		}
	}
	if illegal != nil {
		return errors.WithMessagef(illegal, "conversion of function %q left illegal operations", fn.Name)
	}
	return nil
}

// convertArguments rewrites the function argument types to their target
// forms. When a converted argument changes type, consumers are rewired
// through an unrealized conversion cast recovering the source type, which
// later patterns are expected to fold away.
//
// One-to-many type decomposition is supported for in-graph values through the
// same cast mechanism, but not for function arguments.
func convertArguments(fn *hlir.Function, tc TypeConverter) error {
	for i, arg := range fn.Inputs {
		converted, err := tc.Convert(arg.Shape())
		if err != nil {
			return errors.WithMessagef(err, "converting type of argument #%d of function %q", i, fn.Name)
		}
		if len(converted) != 1 {
			return errors.Errorf("type of argument #%d of function %q decomposes into %d types: argument decomposition is not supported",
				i, fn.Name, len(converted))
		}
		if converted[0].Equal(arg.Shape()) {
			continue
		}
		oldShape := arg.Shape()
		arg.SetShape(converted[0])
		if !arg.HasUses() {
			continue
		}
		if _, err := fn.WrapArgumentUses(arg, oldShape, hlir.CastTargetName); err != nil {
			return err
		}
	}
	return nil
}
