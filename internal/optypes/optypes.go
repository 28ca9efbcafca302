// Package optypes defines OpType and lists the operations supported by hlir.
package optypes

import (
	"strings"
	"sync"

	"github.com/gohlo/hlir/internal/utils"
)

// OpType is an enum of the operations the hlir vocabulary supports.
type OpType int

//go:generate go tool enumer -type OpType optypes.go

const (
	Invalid OpType = iota
	Constant
	Iota
	DynamicIota

	Add
	Subtract
	Multiply
	Divide
	Remainder
	Power
	Maximum
	Minimum
	And
	Or
	Xor

	Not
	Negate
	Abs
	Sign
	Ceil
	Floor
	Sqrt
	Rsqrt
	Exponential
	Log
	Logistic
	Tanh
	Cosine
	Sine

	Convert
	Compare
	Select

	Reshape
	DynamicReshape
	BroadcastInDim
	DynamicBroadcastInDim
	Slice
	DynamicSlice
	RealDynamicSlice
	Pad
	DynamicPad
	Concatenate
	GetDimensionSize
	Transpose
	Gather

	UnaryEinsum // Deprecated: kept only for version migration of old serialized programs.

	Call
	Composite
	CustomCall
	Return
)

var (
	// StandardBinaryOperations have two operands of the same rank (or a scalar)
	// and an output shape following the standard broadcasting rules.
	StandardBinaryOperations = utils.SetWith(
		Add,
		Subtract,
		Multiply,
		Divide,
		Remainder,
		Power,
		Maximum,
		Minimum,
		And,
		Or,
		Xor,
	)

	// StandardUnaryOperations have a single operand, and the output shape is the
	// same as the input.
	StandardUnaryOperations = utils.SetWith(
		Not,
		Negate,
		Abs,
		Sign,
		Ceil,
		Floor,
		Sqrt,
		Rsqrt,
		Exponential,
		Log,
		Logistic,
		Tanh,
		Cosine,
		Sine,
	)

	// BooleanOperations only accept boolean (i1) inputs.
	BooleanOperations = utils.SetWith(
		Not,
	)

	// FloatOperations only operate on floating point inputs.
	FloatOperations = utils.SetWith(
		Ceil,
		Floor,
		Sqrt,
		Rsqrt,
		Exponential,
		Log,
		Logistic,
		Tanh,
		Cosine,
		Sine,
	)

	// DynamicShapedOperations take their output shape (or part of it) as a
	// run-time operand. Each has a statically shaped counterpart that the shape
	// refinement engine replaces it with once the shape operand is a constant.
	DynamicShapedOperations = utils.SetWith(
		DynamicIota,
		DynamicReshape,
		DynamicBroadcastInDim,
		DynamicSlice,
		RealDynamicSlice,
		DynamicPad,
	)
)

// StaticCounterpart returns the statically shaped equivalent of a dynamic
// operation, or Invalid if the operation has none.
func (op OpType) StaticCounterpart() OpType {
	switch op {
	case DynamicIota:
		return Iota
	case DynamicReshape:
		return Reshape
	case DynamicBroadcastInDim:
		return BroadcastInDim
	case DynamicSlice, RealDynamicSlice:
		return Slice
	case DynamicPad:
		return Pad
	}
	return Invalid
}

var (
	hloNamesOnce sync.Once
	hloNames     []string
	hloNameToOp  map[string]OpType
)

func buildHLONames() {
	hloNames = make([]string, len(OpTypeValues()))
	hloNameToOp = make(map[string]OpType, len(hloNames))
	for _, op := range OpTypeValues() {
		name := camelToSnake(op.String())
		hloNames[op] = name
		hloNameToOp[name] = op
	}
}

// HLOName returns the snake_case operation name used in the textual and
// serialized forms, e.g. DynamicReshape -> "dynamic_reshape".
func (op OpType) HLOName() string {
	hloNamesOnce.Do(buildHLONames)
	if op < 0 || int(op) >= len(hloNames) {
		return "invalid"
	}
	return hloNames[op]
}

// FromHLOName converts a snake_case operation name back to its OpType.
// It returns Invalid for unknown names.
func FromHLOName(name string) OpType {
	hloNamesOnce.Do(buildHLONames)
	return hloNameToOp[name]
}

// camelToSnake converts CamelCase op names to the snake_case used by the
// textual format. Acronym-free names only.
func camelToSnake(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r - 'A' + 'a')
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
