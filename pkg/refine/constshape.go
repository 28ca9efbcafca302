package refine

import (
	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
)

// ExtractConstantShape attempts to extract concrete integer dimensions from a
// shape value: an operand that computes the target shape of a dynamic
// operation. It follows the small vocabulary of shape-computing operations
// (constants, concatenations of dimension sizes, arithmetic on them) and
// returns (dimensions, true) on success, or (nil, false) if the shape is
// truly dynamic.
func ExtractConstantShape(v *hlir.Value) ([]int, bool) {
	producer := v.DefiningOp()
	if producer == nil {
		return nil, false // Function arguments are never compile-time constants.
	}
	switch producer.OpType {
	case optypes.Constant:
		if literal := producer.IsConstant(); literal != nil {
			return literal.Ints1D()
		}

	case optypes.Concatenate:
		return extractConcatenated(producer)

	case optypes.Reshape, optypes.Convert:
		// Pass through to the input.
		if len(producer.Inputs) > 0 {
			return ExtractConstantShape(producer.Inputs[0])
		}

	case optypes.GetDimensionSize:
		return extractGetDimensionSize(producer)

	case optypes.Slice:
		return extractSlice(producer)

	case optypes.Gather:
		return extractGather(producer)

	case optypes.BroadcastInDim:
		return extractBroadcast(producer)

	case optypes.DynamicBroadcastInDim:
		return extractDynamicBroadcast(producer)

	case optypes.Multiply:
		return extractArith(producer, func(a, b int) (int, bool) { return a * b, true })

	case optypes.Divide:
		// Common in shape calculations, e.g. splitting attention heads.
		return extractArith(producer, func(a, b int) (int, bool) {
			if b == 0 {
				return 0, false
			}
			return a / b, true
		})

	case optypes.Select:
		return extractSelect(producer)

	case optypes.Compare:
		return extractCompare(producer)
	}

	// Not a shape-computing operation.
	return nil, false
}

// extractConcatenated extracts constant values from a Concatenate of
// constants, the common pattern when shape tensors are built from individual
// dimension values.
func extractConcatenated(op *hlir.Operation) ([]int, bool) {
	// Shape tensors are 1D, so only axis 0 concatenations qualify.
	if dim, ok := op.IntAttr(hlir.AttrDimension); ok && dim != 0 {
		return nil, false
	}
	var result []int
	for _, input := range op.Inputs {
		values, ok := ExtractConstantShape(input)
		if !ok {
			return nil, false
		}
		result = append(result, values...)
	}
	return result, true
}

// extractGetDimensionSize resolves GetDimensionSize when the queried
// dimension of the operand is statically known, even if the operand itself is
// not constant.
func extractGetDimensionSize(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 1 {
		return nil, false
	}
	dim, ok := op.IntAttr(hlir.AttrDimension)
	if !ok {
		return nil, false
	}
	operandShape := op.Inputs[0].Shape()
	if operandShape.Unranked || dim < 0 || int(dim) >= operandShape.Rank() {
		return nil, false
	}
	extent := operandShape.Dimensions[dim]
	if extent < 0 {
		return nil, false // Still symbolic.
	}
	return []int{extent}, true
}

func extractSlice(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 1 {
		return nil, false
	}
	values, ok := ExtractConstantShape(op.Inputs[0])
	if !ok {
		return nil, false
	}
	starts, hasStarts := op.IntSliceAttr(hlir.AttrStartIndices)
	limits, hasLimits := op.IntSliceAttr(hlir.AttrLimitIndices)
	if !hasStarts || !hasLimits || len(starts) != 1 || len(limits) != 1 {
		return nil, false
	}
	start, limit := int(starts[0]), int(limits[0])
	if start < 0 || limit > len(values) || start >= limit {
		return nil, false
	}
	return values[start:limit], true
}

// extractBroadcast resolves a scalar constant broadcast to a static 1D shape
// tensor, replicating the scalar.
func extractBroadcast(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 1 {
		return nil, false
	}
	values, ok := ExtractConstantShape(op.Inputs[0])
	if !ok {
		return nil, false
	}
	outputShape := op.Outputs[0].Shape()
	if len(values) == 1 && outputShape.Rank() == 1 && outputShape.Dimensions[0] >= 0 {
		result := make([]int, outputShape.Dimensions[0])
		for i := range result {
			result[i] = values[0]
		}
		return result, true
	}
	if len(values) > 1 && outputShape.Rank() == 1 && outputShape.Dimensions[0] == len(values) {
		return values, true
	}
	return nil, false
}

// extractGather resolves a single-element gather from a constant shape
// tensor, the pattern front-ends emit when they pick one dimension out of a
// shape value.
func extractGather(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 2 {
		return nil, false
	}
	operand, operandOk := ExtractConstantShape(op.Inputs[0])
	indices, indicesOk := ExtractConstantShape(op.Inputs[1])
	if !operandOk || !indicesOk || len(indices) != 1 {
		return nil, false
	}
	index := indices[0]
	if index < 0 || index >= len(operand) {
		return nil, false
	}
	return []int{operand[index]}, true
}

// extractDynamicBroadcast resolves a scalar constant broadcast through
// dynamic_broadcast_in_dim, replicating it across the target extent taken
// from the shape operand or, failing that, from the static result type.
func extractDynamicBroadcast(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 2 {
		return nil, false
	}
	values, ok := ExtractConstantShape(op.Inputs[0])
	if !ok || len(values) != 1 {
		return nil, false
	}
	size := -1
	if target, ok := ExtractConstantShape(op.Inputs[1]); ok && len(target) == 1 {
		size = target[0]
	} else if output := op.Outputs[0].Shape(); !output.Unranked && output.Rank() == 1 {
		size = output.Dimensions[0]
	}
	if size <= 0 {
		return nil, false
	}
	result := make([]int, size)
	for i := range result {
		result[i] = values[0]
	}
	return result, true
}

func extractArith(op *hlir.Operation, eval func(a, b int) (int, bool)) ([]int, bool) {
	if len(op.Inputs) != 2 {
		return nil, false
	}
	lhs, lhsOk := ExtractConstantShape(op.Inputs[0])
	rhs, rhsOk := ExtractConstantShape(op.Inputs[1])
	if !lhsOk || !rhsOk {
		return nil, false
	}
	// Scalar-with-scalar, element-wise, or scalar broadcast.
	n := max(len(lhs), len(rhs))
	if len(lhs) != n && len(lhs) != 1 || len(rhs) != n && len(rhs) != 1 {
		return nil, false
	}
	result := make([]int, n)
	for i := range result {
		a, b := lhs[broadcastLane(i, len(lhs))], rhs[broadcastLane(i, len(rhs))]
		v, ok := eval(a, b)
		if !ok {
			return nil, false
		}
		result[i] = v
	}
	return result, true
}

func broadcastLane(lane, length int) int {
	if length == 1 {
		return 0
	}
	return lane
}

// extractSelect resolves Select over constant shape operands, used by "-1
// dimension inference" style shape computations.
func extractSelect(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 3 {
		return nil, false
	}
	pred, predOk := ExtractConstantShape(op.Inputs[0])
	if !predOk {
		return nil, false
	}
	onTrue, onTrueOk := ExtractConstantShape(op.Inputs[1])
	onFalse, onFalseOk := ExtractConstantShape(op.Inputs[2])
	if len(pred) == 1 {
		if pred[0] != 0 && onTrueOk {
			return onTrue, true
		}
		if pred[0] == 0 && onFalseOk {
			return onFalse, true
		}
		return nil, false
	}
	if !onTrueOk || !onFalseOk {
		return nil, false
	}
	if len(onTrue) != len(pred) && len(onTrue) != 1 || len(onFalse) != len(pred) && len(onFalse) != 1 {
		return nil, false
	}
	result := make([]int, len(pred))
	for i := range result {
		if pred[i] != 0 {
			result[i] = onTrue[broadcastLane(i, len(onTrue))]
		} else {
			result[i] = onFalse[broadcastLane(i, len(onFalse))]
		}
	}
	return result, true
}

func extractCompare(op *hlir.Operation) ([]int, bool) {
	if len(op.Inputs) != 2 {
		return nil, false
	}
	direction, ok := op.StrAttr(hlir.AttrComparisonDirection)
	if !ok {
		return nil, false
	}
	lhs, lhsOk := ExtractConstantShape(op.Inputs[0])
	rhs, rhsOk := ExtractConstantShape(op.Inputs[1])
	if !lhsOk || !rhsOk {
		return nil, false
	}
	n := max(len(lhs), len(rhs))
	if len(lhs) != n && len(lhs) != 1 || len(rhs) != n && len(rhs) != 1 {
		return nil, false
	}
	result := make([]int, n)
	for i := range result {
		a, b := lhs[broadcastLane(i, len(lhs))], rhs[broadcastLane(i, len(rhs))]
		var truth bool
		switch direction {
		case "EQ":
			truth = a == b
		case "NE":
			truth = a != b
		case "LT":
			truth = a < b
		case "LE":
			truth = a <= b
		case "GT":
			truth = a > b
		case "GE":
			truth = a >= b
		default:
			return nil, false
		}
		if truth {
			result[i] = 1
		}
	}
	return result, true
}
