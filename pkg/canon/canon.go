// Package canon implements canonicalization and constant folding: pure,
// opcode-local simplifications that remove redundant operations and fold
// operations over literal operands.
//
// All rules are side-effect free and order independent: applying them in any
// order reaches the same fixed point, modulo value naming. Floating point
// folding that could change results under a different rounding mode is only
// performed when Options.AllowFloatFolding is set; see fold.go for the exact
// policy.
package canon

import (
	"slices"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/hlir/rewrite"
	"github.com/gohlo/hlir/pkg/types/shapes"
)

// Options configure one canonicalization run.
type Options struct {
	// AllowFloatFolding permits folding floating point operations whose
	// result may differ under IEEE rounding mode or precision changes.
	AllowFloatFolding bool
	// MaxApplications caps the rewrite fuel; 0 uses the engine default.
	MaxApplications int
}

// Apply canonicalizes the function to a fixed point.
func Apply(fn *hlir.Function, opts Options) (rewrite.Result, error) {
	return rewrite.Apply(fn, Patterns(opts), rewrite.Options{MaxApplications: opts.MaxApplications})
}

// Patterns returns the canonicalization rule set. Benefits rank cheap
// erasures above foldings that allocate new literals.
func Patterns(opts Options) []rewrite.Pattern {
	return []rewrite.Pattern{
		&rewrite.PatternFunc{PatternName: "erase-dead-pure-op", PatternBenefit: 3, Fn: eraseDeadPureOp},
		&rewrite.PatternFunc{PatternName: "drop-identity-op", PatternBenefit: 2, Fn: dropIdentityOp},
		&rewrite.PatternFunc{PatternName: "collapse-reshape-chain", PatternBenefit: 1, Fn: collapseReshapeChain},
		&rewrite.PatternFunc{PatternName: "drop-binary-identity-operand", PatternBenefit: 1,
			Fn: func(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
				return dropBinaryIdentityOperand(rw, op, opts.AllowFloatFolding)
			}},
		&rewrite.PatternFunc{PatternName: "fold-select-of-constant-predicate", PatternBenefit: 1, Fn: foldSelectOfConstant},
		&rewrite.PatternFunc{PatternName: "fold-constants", PatternBenefit: 0,
			Fn: func(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
				return foldConstants(rw, op, opts.AllowFloatFolding)
			}},
	}
}

// pureOps are safe to erase when nothing uses their results.
func isPure(op *hlir.Operation) bool {
	switch op.OpType {
	case optypes.Return, optypes.Call, optypes.Composite, optypes.CustomCall:
		return false
	}
	return true
}

func eraseDeadPureOp(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if !isPure(op) {
		return false, nil
	}
	for _, output := range op.Outputs {
		if output.HasUses() {
			return false, nil
		}
	}
	if err := rw.EraseOp(op); err != nil {
		return false, err
	}
	return true, nil
}

// dropIdentityOp removes operations that provably return their operand
// unchanged: reshape/transpose/broadcast_in_dim/convert to the same type, and
// widening markers or conversion casts whose input and output types became
// equal.
func dropIdentityOp(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		return false, nil
	}
	input, output := op.Inputs[0], op.Outputs[0]
	identity := false
	switch op.OpType {
	case optypes.Reshape, optypes.Convert, optypes.BroadcastInDim:
		identity = input.Shape().Equal(output.Shape()) && input.Shape().IsStatic()
	case optypes.Transpose:
		if permutation, ok := op.IntSliceAttr(hlir.AttrPermutation); ok {
			identity = isIotaPermutation(permutation)
		}
	case optypes.CustomCall:
		if target, ok := op.StrAttr(hlir.AttrCallTarget); ok &&
			(target == hlir.WrapperTargetName || target == hlir.CastTargetName) {
			identity = input.Shape().Equal(output.Shape())
		}
	}
	if !identity {
		return false, nil
	}
	if err := rw.ReplaceOpWithValues(op, input); err != nil {
		return false, err
	}
	return true, nil
}

func isIotaPermutation(permutation []int64) bool {
	for i, axis := range permutation {
		if axis != int64(i) {
			return false
		}
	}
	return true
}

// collapseReshapeChain rewrites reshape(reshape(x)) to a single reshape of x.
func collapseReshapeChain(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if op.OpType != optypes.Reshape {
		return false, nil
	}
	producer := op.Inputs[0].DefiningOp()
	if producer == nil || producer.OpType != optypes.Reshape {
		return false, nil
	}
	_, err := rw.ReplaceOpWithNew(op, op.Dialect, optypes.Reshape,
		[]shapes.Shape{op.Outputs[0].Shape()}, producer.Inputs[0])
	if err != nil {
		return false, err
	}
	return true, nil
}

// dropBinaryIdentityOperand simplifies add(x, 0) and multiply(x, 1) (either
// operand order). For float dtypes this is gated on AllowFloatFolding:
// x + (-0.0) and NaN propagation make it lossy in the strict sense.
func dropBinaryIdentityOperand(rw *rewrite.Rewriter, op *hlir.Operation, allowFloat bool) (bool, error) {
	if op.OpType != optypes.Add && op.OpType != optypes.Multiply {
		return false, nil
	}
	if op.Outputs[0].Shape().DType.IsFloat() && !allowFloat {
		return false, nil
	}
	identity := int64(0)
	fIdentity := 0.0
	if op.OpType == optypes.Multiply {
		identity, fIdentity = 1, 1.0
	}
	for i, input := range op.Inputs {
		literal := constantLiteral(input)
		if literal == nil || !isSplat(literal, identity, fIdentity) {
			continue
		}
		other := op.Inputs[1-i]
		if !other.Shape().Equal(op.Outputs[0].Shape()) {
			continue // The constant side dictates the output shape; keep it.
		}
		if err := rw.ReplaceOpWithValues(op, other); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// foldSelectOfConstant folds select with a constant scalar predicate to the
// taken branch.
func foldSelectOfConstant(rw *rewrite.Rewriter, op *hlir.Operation) (bool, error) {
	if op.OpType != optypes.Select || len(op.Inputs) != 3 {
		return false, nil
	}
	literal := constantLiteral(op.Inputs[0])
	if literal == nil {
		return false, nil
	}
	pred, ok := literal.ScalarInt()
	if !ok {
		return false, nil
	}
	taken := op.Inputs[2]
	if pred != 0 {
		taken = op.Inputs[1]
	}
	if !taken.Shape().Equal(op.Outputs[0].Shape()) {
		return false, nil
	}
	if err := rw.ReplaceOpWithValues(op, taken); err != nil {
		return false, err
	}
	return true, nil
}

// constantLiteral returns the literal producing the value, or nil.
func constantLiteral(v *hlir.Value) *hlir.Literal {
	producer := v.DefiningOp()
	if producer == nil {
		return nil
	}
	return producer.IsConstant()
}

func isSplat(literal *hlir.Literal, intValue int64, floatValue float64) bool {
	if literal.IsInt() {
		if len(literal.Ints) == 0 {
			return false
		}
		return !slices.ContainsFunc(literal.Ints, func(v int64) bool { return v != intValue })
	}
	if len(literal.Floats) == 0 {
		return false
	}
	return !slices.ContainsFunc(literal.Floats, func(v float64) bool { return v != floatValue })
}
