// Package shapeinference calculates the shape resulting from operations and
// validates their inputs.
//
// It defines a BinaryOp function for shape inference of the standard binary
// operations. Most unary functions don't change the shape; the remaining
// operations each get their own inference function.
//
// Dynamic dimensions (shapes.DimUnknown) are propagated: a result dimension
// is known whenever the inputs pin it down, and two shapes are considered
// compatible when every pair of corresponding dimensions agrees or at least
// one side is unknown.
package shapeinference

import (
	"slices"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
)

// shapesCompatible returns whether the two shapes could describe the same
// value: same dtype and rank, dimensions equal or unknown on either side.
func shapesCompatible(a, b shapes.Shape) bool {
	return a.Compatible(b)
}

// merge combines the dimension knowledge of two compatible shapes.
func merge(a, b shapes.Shape) (shapes.Shape, error) {
	return a.Refine(b)
}

// BinaryOp infers the result shape of the standard binary operations.
// Both operands must have the same dtype, and either the same (compatible)
// shape or one of them must be a scalar, which broadcasts to the other.
func BinaryOp(op optypes.OpType, lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if !optypes.StandardBinaryOperations.Has(op) {
		return shapes.Invalid(), errors.Errorf("operation %s is not a standard binary operation", op)
	}
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("binary op %s with mismatched dtypes %s vs %s", op, lhs.DType, rhs.DType)
	}
	if op == optypes.And || op == optypes.Or || op == optypes.Xor {
		if lhs.DType.IsFloat() {
			return shapes.Invalid(), errors.Errorf("logical op %s does not accept float dtype %s", op, lhs.DType)
		}
	}
	return broadcastPair(op, lhs, rhs)
}

func broadcastPair(op optypes.OpType, lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if lhs.Unranked {
		return rhs.Clone(), nil
	}
	if rhs.Unranked {
		return lhs.Clone(), nil
	}
	if lhs.IsScalar() {
		return rhs.Clone(), nil
	}
	if rhs.IsScalar() {
		return lhs.Clone(), nil
	}
	if !shapesCompatible(lhs, rhs) {
		return shapes.Invalid(), errors.Errorf("binary op %s with incompatible shapes %s vs %s", op, lhs, rhs)
	}
	return merge(lhs, rhs)
}

// UnaryOp infers the result shape of the standard unary operations: same as
// the input, after validating the dtype against the operation class.
func UnaryOp(op optypes.OpType, operand shapes.Shape) (shapes.Shape, error) {
	if !optypes.StandardUnaryOperations.Has(op) {
		return shapes.Invalid(), errors.Errorf("operation %s is not a standard unary operation", op)
	}
	if optypes.FloatOperations.Has(op) && !operand.DType.IsFloat() {
		return shapes.Invalid(), errors.Errorf("unary op %s requires a float operand, got %s", op, operand.DType)
	}
	if optypes.BooleanOperations.Has(op) && operand.DType.IsFloat() {
		return shapes.Invalid(), errors.Errorf("unary op %s requires a boolean or integer operand, got %s", op, operand.DType)
	}
	if op == optypes.Negate && operand.DType.IsUnsigned() {
		return shapes.Invalid(), errors.Errorf("unary op %s does not accept unsigned dtype %s", op, operand.DType)
	}
	return operand.Clone(), nil
}

// Compare infers the result shape of a compare operation: the broadcast of
// the operand shapes with a boolean dtype.
func Compare(lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("compare with mismatched dtypes %s vs %s", lhs.DType, rhs.DType)
	}
	output, err := broadcastPair(optypes.Compare, lhs, rhs)
	if err != nil {
		return shapes.Invalid(), err
	}
	output.DType = dtypes.Bool
	return output, nil
}

// Select infers the result shape of a select operation. The predicate must be
// boolean and either a scalar or shaped like the branches.
func Select(pred, onTrue, onFalse shapes.Shape) (shapes.Shape, error) {
	if pred.DType != dtypes.Bool {
		return shapes.Invalid(), errors.Errorf("select predicate must be boolean, got %s", pred.DType)
	}
	if onTrue.DType != onFalse.DType {
		return shapes.Invalid(), errors.Errorf("select branches with mismatched dtypes %s vs %s", onTrue.DType, onFalse.DType)
	}
	if !shapesCompatible(onTrue, onFalse) {
		return shapes.Invalid(), errors.Errorf("select branches with incompatible shapes %s vs %s", onTrue, onFalse)
	}
	output, err := merge(onTrue, onFalse)
	if err != nil {
		return shapes.Invalid(), err
	}
	if !pred.IsScalar() && !pred.Unranked {
		predShaped := pred.Clone()
		predShaped.DType = output.DType
		if !shapesCompatible(predShaped, output) {
			return shapes.Invalid(), errors.Errorf("select predicate shape %s incompatible with branch shape %s", pred, output)
		}
	}
	return output, nil
}

// Convert infers the result shape of a convert operation: the operand shape
// with the target element type.
func Convert(operand shapes.Shape, target dtypes.DType) (shapes.Shape, error) {
	if target == dtypes.InvalidDType {
		return shapes.Invalid(), errors.New("convert to invalid dtype")
	}
	output := operand.Clone()
	output.DType = target
	return output, nil
}

// Reshape infers the result shape of a static reshape to the given
// dimensions. When the operand is fully static the element counts must match.
func Reshape(operand shapes.Shape, dimensions []int) (shapes.Shape, error) {
	output := shapes.Make(operand.DType, slices.Clone(dimensions)...)
	if operand.IsStatic() && output.IsStatic() && operand.Size() != output.Size() {
		return shapes.Invalid(), errors.Errorf("reshape from %s to %s changes the element count (%d vs %d)",
			operand, output, operand.Size(), output.Size())
	}
	return output, nil
}

// BroadcastInDim infers the result shape of a broadcast_in_dim to the given
// output dimensions, checking the operand dimensions map correctly.
func BroadcastInDim(operand shapes.Shape, outputDimensions []int, broadcastDimensions []int64) (shapes.Shape, error) {
	if !operand.Unranked {
		if len(broadcastDimensions) != operand.Rank() {
			return shapes.Invalid(), errors.Errorf("broadcast_in_dim: %d broadcast dimensions for an operand of rank %d",
				len(broadcastDimensions), operand.Rank())
		}
		for i, target := range broadcastDimensions {
			if target < 0 || int(target) >= len(outputDimensions) {
				return shapes.Invalid(), errors.Errorf("broadcast_in_dim: broadcast dimension #%d (%d) out of range for output rank %d",
					i, target, len(outputDimensions))
			}
			operandDim := operand.Dimensions[i]
			outputDim := outputDimensions[target]
			if operandDim != shapes.DimUnknown && outputDim != shapes.DimUnknown &&
				operandDim != 1 && operandDim != outputDim {
				return shapes.Invalid(), errors.Errorf("broadcast_in_dim: operand dimension #%d (%d) does not broadcast to output dimension #%d (%d)",
					i, operandDim, target, outputDim)
			}
		}
	}
	return shapes.Make(operand.DType, slices.Clone(outputDimensions)...), nil
}

// Concatenate infers the result shape of concatenating the operands along the
// given dimension.
func Concatenate(dimension int64, operands ...shapes.Shape) (shapes.Shape, error) {
	if len(operands) == 0 {
		return shapes.Invalid(), errors.New("concatenate requires at least one operand")
	}
	output := operands[0].Clone()
	if output.Unranked {
		return output, nil
	}
	if dimension < 0 || int(dimension) >= output.Rank() {
		return shapes.Invalid(), errors.Errorf("concatenate dimension %d out of range for rank %d", dimension, output.Rank())
	}
	for _, operand := range operands[1:] {
		if operand.DType != output.DType {
			return shapes.Invalid(), errors.Errorf("concatenate with mismatched dtypes %s vs %s", output.DType, operand.DType)
		}
		if operand.Unranked {
			output.Dimensions[dimension] = shapes.DimUnknown
			continue
		}
		if operand.Rank() != output.Rank() {
			return shapes.Invalid(), errors.Errorf("concatenate with mismatched ranks %d vs %d", output.Rank(), operand.Rank())
		}
		for axis := range output.Dimensions {
			if int64(axis) == dimension {
				if output.Dimensions[axis] == shapes.DimUnknown || operand.Dimensions[axis] == shapes.DimUnknown {
					output.Dimensions[axis] = shapes.DimUnknown
				} else {
					output.Dimensions[axis] += operand.Dimensions[axis]
				}
				continue
			}
			if output.Dimensions[axis] != operand.Dimensions[axis] {
				if output.Dimensions[axis] == shapes.DimUnknown {
					output.Dimensions[axis] = operand.Dimensions[axis]
				} else if operand.Dimensions[axis] != shapes.DimUnknown {
					return shapes.Invalid(), errors.Errorf("concatenate with incompatible shapes at axis %d", axis)
				}
			}
		}
	}
	return output, nil
}

// Slice infers the result shape of a static slice.
func Slice(operand shapes.Shape, starts, limits, strides []int64) (shapes.Shape, error) {
	if operand.Unranked {
		return shapes.Invalid(), errors.New("slice of an unranked operand")
	}
	rank := operand.Rank()
	if len(starts) != rank || len(limits) != rank || (len(strides) != 0 && len(strides) != rank) {
		return shapes.Invalid(), errors.Errorf("slice parameters must have one entry per dimension (rank %d), got starts=%d, limits=%d, strides=%d",
			rank, len(starts), len(limits), len(strides))
	}
	output := operand.Clone()
	for axis := range output.Dimensions {
		stride := int64(1)
		if len(strides) > 0 {
			stride = strides[axis]
		}
		if stride <= 0 {
			return shapes.Invalid(), errors.Errorf("slice stride at axis %d must be positive, got %d", axis, stride)
		}
		start, limit := starts[axis], limits[axis]
		if start < 0 || limit < start {
			return shapes.Invalid(), errors.Errorf("slice range [%d, %d) at axis %d is invalid", start, limit, axis)
		}
		if operand.Dimensions[axis] != shapes.DimUnknown && limit > int64(operand.Dimensions[axis]) {
			return shapes.Invalid(), errors.Errorf("slice limit %d at axis %d out of bounds for dimension %d",
				limit, axis, operand.Dimensions[axis])
		}
		output.Dimensions[axis] = int((limit - start + stride - 1) / stride)
	}
	return output, nil
}

// Transpose infers the result shape of a transpose with the given
// permutation.
func Transpose(operand shapes.Shape, permutation []int64) (shapes.Shape, error) {
	if operand.Unranked {
		return shapes.Invalid(), errors.New("transpose of an unranked operand")
	}
	if len(permutation) != operand.Rank() {
		return shapes.Invalid(), errors.Errorf("transpose permutation has %d entries for an operand of rank %d",
			len(permutation), operand.Rank())
	}
	output := operand.Clone()
	seen := make([]bool, operand.Rank())
	for i, axis := range permutation {
		if axis < 0 || int(axis) >= operand.Rank() || seen[axis] {
			return shapes.Invalid(), errors.Errorf("transpose permutation %v is not a permutation of the operand axes", permutation)
		}
		seen[axis] = true
		output.Dimensions[i] = operand.Dimensions[axis]
	}
	return output, nil
}

// Pad infers the result shape of a static pad operation.
func Pad(operand shapes.Shape, low, high []int64) (shapes.Shape, error) {
	if operand.Unranked {
		return shapes.Invalid(), errors.New("pad of an unranked operand")
	}
	rank := operand.Rank()
	if len(low) != rank || len(high) != rank {
		return shapes.Invalid(), errors.Errorf("pad amounts must have one entry per dimension (rank %d), got low=%d, high=%d",
			rank, len(low), len(high))
	}
	output := operand.Clone()
	for axis := range output.Dimensions {
		if output.Dimensions[axis] == shapes.DimUnknown {
			continue
		}
		padded := int64(output.Dimensions[axis]) + low[axis] + high[axis]
		if padded < 0 {
			return shapes.Invalid(), errors.Errorf("pad at axis %d yields negative dimension %d", axis, padded)
		}
		output.Dimensions[axis] = int(padded)
	}
	return output, nil
}

// GetDimensionSize always yields a scalar i32.
func GetDimensionSize(operand shapes.Shape, dimension int64) (shapes.Shape, error) {
	if !operand.Unranked && (dimension < 0 || int(dimension) >= operand.Rank()) {
		return shapes.Invalid(), errors.Errorf("get_dimension_size dimension %d out of range for rank %d",
			dimension, operand.Rank())
	}
	return shapes.Make(dtypes.Int32), nil
}
