package hlir

import (
	"github.com/gohlo/hlir/internal/optypes"
	"github.com/pkg/errors"
)

// Verify checks the structural validity of the function: no operand refers to
// a tombstoned producer or a foreign function, use-def edges are symmetric,
// opcode arities hold, and the producer-before-consumer order is realizable
// (no cycles).
//
// A failed check is a structural error: always fatal for the pass that
// triggered it.
func (fn *Function) Verify() error {
	for _, op := range fn.Operations() {
		if err := fn.verifyOp(op); err != nil {
			return err
		}
	}
	if ordered := fn.TopologicalOrder(); len(ordered) > 0 {
		seen := make(map[*Operation]bool, len(ordered))
		for _, op := range ordered {
			for _, input := range op.Inputs {
				if input.def != nil && !seen[input.def] {
					return errors.Errorf("operation %s consumes %s before its producer: the graph has a cycle", op, input)
				}
			}
			seen[op] = true
		}
	}
	return nil
}

func (fn *Function) verifyOp(op *Operation) error {
	for i, input := range op.Inputs {
		if input == nil {
			return errors.Errorf("operation %s has a nil operand #%d", op, i)
		}
		if input.fn != fn {
			return errors.Errorf("operation %s operand #%d belongs to another function", op, i)
		}
		if input.def != nil && input.def.dead {
			return errors.Errorf("operation %s operand #%d refers to erased operation: dangling use", op, i)
		}
		if _, ok := input.users[op]; !ok {
			return errors.Errorf("operation %s operand #%d missing from the value's use list", op, i)
		}
	}
	for i, output := range op.Outputs {
		if output.def != op || output.defIndex != i {
			return errors.Errorf("operation %s result #%d has a broken producer link", op, i)
		}
		for user := range output.users {
			if user.dead {
				return errors.Errorf("operation %s result #%d is used by erased operation %s", op, i, user)
			}
		}
	}
	return fn.verifyArity(op)
}

// verifyArity checks per-opcode operand and result counts.
func (fn *Function) verifyArity(op *Operation) error {
	wrong := func(want string) error {
		return errors.Errorf("operation %s: expected %s operands, got %d", op, want, len(op.Inputs))
	}
	switch {
	case op.OpType == optypes.Constant, op.OpType == optypes.Iota:
		if len(op.Inputs) != 0 {
			return wrong("0")
		}
	case optypes.StandardBinaryOperations.Has(op.OpType) || op.OpType == optypes.Compare:
		if len(op.Inputs) != 2 {
			return wrong("2")
		}
	case optypes.StandardUnaryOperations.Has(op.OpType),
		op.OpType == optypes.Reshape,
		op.OpType == optypes.Convert,
		op.OpType == optypes.Transpose,
		op.OpType == optypes.Slice,
		op.OpType == optypes.GetDimensionSize,
		op.OpType == optypes.BroadcastInDim:
		if len(op.Inputs) != 1 {
			return wrong("1")
		}
	case op.OpType == optypes.Select:
		if len(op.Inputs) != 3 {
			return wrong("3")
		}
	case op.OpType == optypes.DynamicReshape,
		op.OpType == optypes.DynamicBroadcastInDim,
		op.OpType == optypes.DynamicIota:
		want := 2
		if op.OpType == optypes.DynamicIota {
			want = 1
		}
		if len(op.Inputs) != want {
			return errors.Errorf("operation %s: expected %d operands, got %d", op, want, len(op.Inputs))
		}
	}
	if op.OpType != optypes.Return && op.OpType != optypes.Call &&
		op.OpType != optypes.Composite && op.OpType != optypes.CustomCall &&
		len(op.Outputs) != 1 {
		return errors.Errorf("operation %s: expected exactly 1 result, got %d", op, len(op.Outputs))
	}
	return nil
}
