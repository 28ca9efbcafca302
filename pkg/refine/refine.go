// Package refine implements the shape refinement engine: it iteratively
// propagates concrete shape information through a function, replacing
// dynamically shaped operations with their static counterparts once their
// shape operands become compile-time constants.
//
// The engine alternates refinement iterations with canonicalization/folding,
// because folding can turn a previously opaque shape operand into a constant
// and unlock further refinement. Within one run, value types only become
// more specific (extents go from unknown to known, never back); this
// monotonicity is what guarantees termination.
package refine

import (
	"slices"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/internal/shapeinference"
	"github.com/gohlo/hlir/pkg/canon"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// State of the engine over a whole run.
type State int

const (
	// Unrefined: the engine has not run.
	Unrefined State = iota
	// Iterating: an iteration is in progress (only observable internally).
	Iterating
	// FixedPoint: an iteration produced no type changes and no replacements.
	FixedPoint
	// Stalled: the iteration budget was exhausted before a fixed point. The
	// function is left partially refined; this is a diagnostic, not an
	// error.
	Stalled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unrefined:
		return "Unrefined"
	case Iterating:
		return "Iterating"
	case FixedPoint:
		return "FixedPoint"
	case Stalled:
		return "Stalled"
	}
	return "State(?)"
}

// Options configure one refinement run.
type Options struct {
	// MaxIterations bounds the outer refine/canonicalize loop. 0 means
	// DefaultMaxIterations.
	MaxIterations int
	// AllowFloatFolding is forwarded to the interleaved canonicalizer.
	// Integer folding (which shape arithmetic relies on) is always on.
	AllowFloatFolding bool
}

// DefaultMaxIterations is the default refinement budget.
const DefaultMaxIterations = 16

// Run refines the function until fixed point or until the budget runs out.
func Run(fn *hlir.Function, opts Options) (State, error) {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	canonOpts := canon.Options{AllowFloatFolding: opts.AllowFloatFolding}
	for iteration := 0; iteration < maxIterations; iteration++ {
		changed, err := refineIteration(fn)
		if err != nil {
			return Iterating, err
		}
		canonResult, err := canon.Apply(fn, canonOpts)
		if err != nil {
			return Iterating, err
		}
		if !changed && !canonResult.Changed() {
			klog.V(1).Infof("shape refinement of function %q reached fixed point after %d iterations",
				fn.Name, iteration+1)
			return FixedPoint, nil
		}
	}
	klog.Warningf("shape refinement of function %q stalled after %d iterations", fn.Name, maxIterations)
	return Stalled, nil
}

// refineIteration performs one pass over the live operations in
// producer-before-consumer order. It returns whether any type was refined or
// any operation replaced.
func refineIteration(fn *hlir.Function) (bool, error) {
	changed := false
	for _, op := range fn.TopologicalOrder() {
		if op.IsDead() {
			continue // Replaced earlier in this same iteration.
		}
		opChanged, err := refineOp(fn, op)
		if err != nil {
			return changed, err
		}
		changed = changed || opChanged
	}
	return changed, nil
}

// refineOp computes a candidate result type for one operation and applies it
// when it is strictly more specific. Dynamically shaped operations whose
// shape operands became constants are replaced by their static counterparts.
// An operation whose inference cannot narrow the type is left unchanged --
// that is not an error.
func refineOp(fn *hlir.Function, op *hlir.Operation) (bool, error) {
	if optypes.DynamicShapedOperations.Has(op.OpType) {
		return staticizeOp(fn, op)
	}

	candidate, ok, err := inferCandidate(op)
	if err != nil {
		return false, errors.WithMessagef(err, "inferring shape of %s", op)
	}
	if !ok {
		return false, nil
	}
	current := op.Outputs[0].Shape()
	refined, err := current.Refine(candidate)
	if err != nil {
		// A contradiction between the inferred and the declared type is a
		// structural error, not a refinement opportunity.
		return false, errors.WithMessagef(err, "operation %s", op)
	}
	if refined.Equal(current) {
		return false, nil
	}
	if !refined.IsStrictRefinementOf(current) {
		return false, errors.Errorf("non-monotonic type change on %s: %s does not refine %s", op, refined, current)
	}
	op.Outputs[0].SetShape(refined)
	return true, nil
}

// inferCandidate runs the per-opcode shape inference over the operand types.
func inferCandidate(op *hlir.Operation) (shapes.Shape, bool, error) {
	switch {
	case optypes.StandardBinaryOperations.Has(op.OpType):
		candidate, err := shapeinference.BinaryOp(op.OpType, op.Inputs[0].Shape(), op.Inputs[1].Shape())
		return candidate, true, err

	case optypes.StandardUnaryOperations.Has(op.OpType):
		candidate, err := shapeinference.UnaryOp(op.OpType, op.Inputs[0].Shape())
		return candidate, true, err

	case op.OpType == optypes.Compare:
		candidate, err := shapeinference.Compare(op.Inputs[0].Shape(), op.Inputs[1].Shape())
		return candidate, true, err

	case op.OpType == optypes.Select:
		candidate, err := shapeinference.Select(op.Inputs[0].Shape(), op.Inputs[1].Shape(), op.Inputs[2].Shape())
		return candidate, true, err

	case op.OpType == optypes.Convert:
		candidate, err := shapeinference.Convert(op.Inputs[0].Shape(), op.Outputs[0].Shape().DType)
		return candidate, true, err

	case op.OpType == optypes.Concatenate:
		dimension, ok := op.IntAttr(hlir.AttrDimension)
		if !ok {
			return shapes.Invalid(), false, nil
		}
		operands := make([]shapes.Shape, len(op.Inputs))
		for i, input := range op.Inputs {
			operands[i] = input.Shape()
		}
		candidate, err := shapeinference.Concatenate(dimension, operands...)
		return candidate, true, err

	case op.OpType == optypes.CustomCall:
		// Widening markers and conversion casts adopt their operand type once
		// it is known; the canonicalizer then drops them as identities.
		target, ok := op.StrAttr(hlir.AttrCallTarget)
		if !ok || (target != hlir.WrapperTargetName && target != hlir.CastTargetName) {
			return shapes.Invalid(), false, nil
		}
		if len(op.Inputs) != 1 || !op.Inputs[0].Shape().Compatible(op.Outputs[0].Shape()) {
			return shapes.Invalid(), false, nil
		}
		return op.Inputs[0].Shape(), true, nil

	case op.OpType == optypes.Transpose:
		permutation, ok := op.IntSliceAttr(hlir.AttrPermutation)
		if !ok || op.Inputs[0].Shape().Unranked {
			return shapes.Invalid(), false, nil
		}
		candidate, err := shapeinference.Transpose(op.Inputs[0].Shape(), permutation)
		return candidate, true, err
	}

	// Output legitimately depends on run-time data, the opcode fixes its own
	// result type (reshape, broadcast_in_dim, iota, constant...), or the
	// result deliberately stays wider (widening markers, calls).
	return shapes.Invalid(), false, nil
}

// staticizeOp replaces a dynamically shaped operation with its static
// counterpart when its shape operands are compile-time constants.
func staticizeOp(fn *hlir.Function, op *hlir.Operation) (bool, error) {
	counterpart := op.OpType.StaticCounterpart()
	if counterpart == optypes.Invalid {
		return false, nil
	}

	var newOp *hlir.Operation
	var err error
	switch op.OpType {
	case optypes.DynamicReshape:
		dims, ok := ExtractConstantShape(op.Inputs[1])
		if !ok {
			return false, nil
		}
		resultShape, err := shapeinference.Reshape(op.Inputs[0].Shape(), dims)
		if err != nil {
			return false, errors.WithMessagef(err, "staticizing %s", op)
		}
		if ok, err := checkMonotonic(op, resultShape); !ok {
			return false, err
		}
		newOp, err = fn.AddOp(op.Dialect, optypes.Reshape, []shapes.Shape{resultShape}, op.Inputs[0])
		if err != nil {
			return false, err
		}

	case optypes.DynamicIota:
		dims, ok := ExtractConstantShape(op.Inputs[0])
		if !ok {
			return false, nil
		}
		resultShape := shapes.Make(op.Outputs[0].Shape().DType, dims...)
		if ok, err := checkMonotonic(op, resultShape); !ok {
			return false, err
		}
		newOp, err = fn.AddOp(op.Dialect, optypes.Iota, []shapes.Shape{resultShape})
		if err != nil {
			return false, err
		}
		if dimension, ok := op.IntAttr(hlir.AttrIotaDimension); ok {
			newOp.SetAttr(hlir.AttrIotaDimension, dimension)
		}

	case optypes.DynamicBroadcastInDim:
		dims, ok := ExtractConstantShape(op.Inputs[1])
		if !ok {
			return false, nil
		}
		broadcastDimensions, ok := op.IntSliceAttr(hlir.AttrBroadcastDimensions)
		if !ok {
			return false, nil
		}
		resultShape, err := shapeinference.BroadcastInDim(op.Inputs[0].Shape(), dims, broadcastDimensions)
		if err != nil {
			return false, errors.WithMessagef(err, "staticizing %s", op)
		}
		if ok, err := checkMonotonic(op, resultShape); !ok {
			return false, err
		}
		newOp, err = fn.AddOp(op.Dialect, optypes.BroadcastInDim, []shapes.Shape{resultShape}, op.Inputs[0])
		if err != nil {
			return false, err
		}
		newOp.SetAttr(hlir.AttrBroadcastDimensions, slices.Clone(broadcastDimensions))

	case optypes.DynamicSlice:
		newOp, err = staticizeDynamicSlice(fn, op)
		if newOp == nil || err != nil {
			return false, err
		}

	case optypes.RealDynamicSlice:
		newOp, err = staticizeRealDynamicSlice(fn, op)
		if newOp == nil || err != nil {
			return false, err
		}

	case optypes.DynamicPad:
		newOp, err = staticizeDynamicPad(fn, op)
		if newOp == nil || err != nil {
			return false, err
		}

	default:
		return false, nil
	}

	if err := fn.ReplaceOpWithValues(op, newOp.Outputs...); err != nil {
		return false, err
	}
	return true, nil
}

// staticizeDynamicSlice resolves dynamic_slice once its start indices become
// constant. The slice extents are the static slice_sizes attribute; start
// indices are clamped into [0, dim-size] the way the operation clamps them at
// run time, which needs the operand extents to be static.
func staticizeDynamicSlice(fn *hlir.Function, op *hlir.Operation) (*hlir.Operation, error) {
	if len(op.Inputs) != 2 {
		return nil, nil
	}
	sizes, ok := op.IntSliceAttr(hlir.AttrSliceSizes)
	if !ok {
		return nil, nil
	}
	starts, ok := ExtractConstantShape(op.Inputs[1])
	if !ok {
		return nil, nil
	}
	operand := op.Inputs[0].Shape()
	if operand.Unranked || len(starts) != operand.Rank() || len(sizes) != operand.Rank() {
		return nil, nil
	}
	startIndices := make([]int64, operand.Rank())
	limits := make([]int64, operand.Rank())
	strides := make([]int64, operand.Rank())
	for i, start := range starts {
		dim := operand.Dimensions[i]
		if dim == shapes.DimUnknown {
			return nil, nil
		}
		clamped := min(max(int64(start), 0), int64(dim)-sizes[i])
		startIndices[i] = clamped
		limits[i] = clamped + sizes[i]
		strides[i] = 1
	}
	resultShape, err := shapeinference.Slice(operand, startIndices, limits, strides)
	if err != nil {
		return nil, errors.WithMessagef(err, "staticizing %s", op)
	}
	if ok, err := checkMonotonic(op, resultShape); !ok {
		return nil, err
	}
	newOp, err := fn.AddOp(op.Dialect, optypes.Slice, []shapes.Shape{resultShape}, op.Inputs[0])
	if err != nil {
		return nil, err
	}
	newOp.SetAttr(hlir.AttrStartIndices, startIndices)
	newOp.SetAttr(hlir.AttrLimitIndices, limits)
	newOp.SetAttr(hlir.AttrStrides, strides)
	return newOp, nil
}

func staticizeRealDynamicSlice(fn *hlir.Function, op *hlir.Operation) (*hlir.Operation, error) {
	if len(op.Inputs) != 4 {
		return nil, nil
	}
	starts, startsOk := ExtractConstantShape(op.Inputs[1])
	limits, limitsOk := ExtractConstantShape(op.Inputs[2])
	strides, stridesOk := ExtractConstantShape(op.Inputs[3])
	if !startsOk || !limitsOk || !stridesOk {
		return nil, nil
	}
	resultShape, err := shapeinference.Slice(op.Inputs[0].Shape(), toInt64(starts), toInt64(limits), toInt64(strides))
	if err != nil {
		return nil, errors.WithMessagef(err, "staticizing %s", op)
	}
	if ok, err := checkMonotonic(op, resultShape); !ok {
		return nil, err
	}
	newOp, err := fn.AddOp(op.Dialect, optypes.Slice, []shapes.Shape{resultShape}, op.Inputs[0])
	if err != nil {
		return nil, err
	}
	newOp.SetAttr(hlir.AttrStartIndices, toInt64(starts))
	newOp.SetAttr(hlir.AttrLimitIndices, toInt64(limits))
	newOp.SetAttr(hlir.AttrStrides, toInt64(strides))
	return newOp, nil
}

func staticizeDynamicPad(fn *hlir.Function, op *hlir.Operation) (*hlir.Operation, error) {
	if len(op.Inputs) < 4 {
		return nil, nil
	}
	low, lowOk := ExtractConstantShape(op.Inputs[2])
	high, highOk := ExtractConstantShape(op.Inputs[3])
	if !lowOk || !highOk {
		return nil, nil
	}
	resultShape, err := shapeinference.Pad(op.Inputs[0].Shape(), toInt64(low), toInt64(high))
	if err != nil {
		return nil, errors.WithMessagef(err, "staticizing %s", op)
	}
	if ok, err := checkMonotonic(op, resultShape); !ok {
		return nil, err
	}
	newOp, err := fn.AddOp(op.Dialect, optypes.Pad, []shapes.Shape{resultShape}, op.Inputs[0], op.Inputs[1])
	if err != nil {
		return nil, err
	}
	newOp.SetAttr(hlir.AttrPaddingLow, toInt64(low))
	newOp.SetAttr(hlir.AttrPaddingHigh, toInt64(high))
	return newOp, nil
}

// checkMonotonic verifies the static result type refines the dynamic
// operation's declared result type. A contradiction means the program lied
// about its types: a structural error.
func checkMonotonic(op *hlir.Operation, resultShape shapes.Shape) (bool, error) {
	current := op.Outputs[0].Shape()
	if !resultShape.IsRefinementOf(current) {
		return false, errors.Errorf("staticizing %s: inferred type %s contradicts declared type %s",
			op, resultShape, current)
	}
	return true, nil
}

func toInt64(values []int) []int64 {
	result := make([]int64, len(values))
	for i, v := range values {
		result[i] = int64(v)
	}
	return result
}
