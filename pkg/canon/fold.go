package canon

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/hlir/rewrite"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Float folding policy: an operation is "lossy" when its result could differ
// under a change of IEEE rounding mode or intermediate precision. Negate,
// Abs and Sign are exact and always foldable; every other floating point
// operation (including Add) is folded only when AllowFloatFolding is set.
// Float32 (and the 16-bit formats, which round through float32) are computed
// with math32 to match single precision runtime kernels.

var exactFloatUnaryOps = map[optypes.OpType]bool{
	optypes.Negate: true,
	optypes.Abs:    true,
	optypes.Sign:   true,
}

// foldConstants folds operations whose operands are all literals into a
// single constant operation.
func foldConstants(rw *rewrite.Rewriter, op *hlir.Operation, allowFloat bool) (bool, error) {
	if len(op.Outputs) != 1 || !op.Outputs[0].Shape().IsStatic() {
		return false, nil
	}
	literals := make([]*hlir.Literal, len(op.Inputs))
	for i, input := range op.Inputs {
		literals[i] = constantLiteral(input)
		if literals[i] == nil || !literals[i].Shape.IsStatic() {
			return false, nil
		}
	}

	var folded *hlir.Literal
	var err error
	switch {
	case optypes.StandardBinaryOperations.Has(op.OpType) && len(literals) == 2:
		folded, err = foldBinary(op, literals[0], literals[1], allowFloat)
	case op.OpType == optypes.Compare && len(literals) == 2:
		folded, err = foldCompare(op, literals[0], literals[1], allowFloat)
	case optypes.StandardUnaryOperations.Has(op.OpType) && len(literals) == 1:
		folded, err = foldUnary(op, literals[0], allowFloat)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if folded == nil {
		return false, nil // Folding declined (lossy and not allowed, or value-dependent trap).
	}
	constant, err := rw.Constant(folded)
	if err != nil {
		return false, err
	}
	if err := rw.ReplaceOpWithValues(op, constant); err != nil {
		return false, err
	}
	return true, nil
}

// broadcastIndex maps an output lane to an operand lane: operands are either
// the full output size or a scalar splat.
func broadcastIndex(lane, operandLen int) int {
	if operandLen == 1 {
		return 0
	}
	return lane
}

func foldBinary(op *hlir.Operation, lhs, rhs *hlir.Literal, allowFloat bool) (*hlir.Literal, error) {
	outputShape := op.Outputs[0].Shape()
	size := outputShape.Size()
	if !lanesCompatible(size, lhs) || !lanesCompatible(size, rhs) {
		return nil, nil
	}
	if !outputShape.DType.IsFloat() {
		values := make([]int64, size)
		for lane := range values {
			a := lhs.Ints[broadcastIndex(lane, len(lhs.Ints))]
			b := rhs.Ints[broadcastIndex(lane, len(rhs.Ints))]
			v, ok, err := evalIntBinary(op.OpType, a, b)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			values[lane] = v
		}
		return &hlir.Literal{Shape: outputShape.Clone(), Ints: values}, nil
	}
	if !allowFloat {
		return nil, nil
	}
	values := make([]float64, size)
	for lane := range values {
		a := lhs.Floats[broadcastIndex(lane, len(lhs.Floats))]
		b := rhs.Floats[broadcastIndex(lane, len(rhs.Floats))]
		v, ok := evalFloatBinary(op.OpType, outputShape.DType, a, b)
		if !ok {
			return nil, nil
		}
		values[lane] = roundToDType(outputShape.DType, v)
	}
	return &hlir.Literal{Shape: outputShape.Clone(), Floats: values}, nil
}

func foldCompare(op *hlir.Operation, lhs, rhs *hlir.Literal, allowFloat bool) (*hlir.Literal, error) {
	direction, ok := op.StrAttr(hlir.AttrComparisonDirection)
	if !ok {
		return nil, errors.Errorf("compare operation %s is missing the %s attribute", op, hlir.AttrComparisonDirection)
	}
	if lhs.Shape.DType.IsFloat() && !allowFloat {
		return nil, nil
	}
	outputShape := op.Outputs[0].Shape()
	size := outputShape.Size()
	if !lanesCompatible(size, lhs) || !lanesCompatible(size, rhs) {
		return nil, nil
	}
	values := make([]int64, size)
	for lane := range values {
		var result bool
		if lhs.IsInt() {
			a := lhs.Ints[broadcastIndex(lane, len(lhs.Ints))]
			b := rhs.Ints[broadcastIndex(lane, len(rhs.Ints))]
			result, ok = compareOrdered(direction, a, b)
		} else {
			a := lhs.Floats[broadcastIndex(lane, len(lhs.Floats))]
			b := rhs.Floats[broadcastIndex(lane, len(rhs.Floats))]
			result, ok = compareOrdered(direction, a, b)
		}
		if !ok {
			return nil, errors.Errorf("unknown comparison direction %q on %s", direction, op)
		}
		if result {
			values[lane] = 1
		}
	}
	return &hlir.Literal{Shape: outputShape.Clone(), Ints: values}, nil
}

func foldUnary(op *hlir.Operation, operand *hlir.Literal, allowFloat bool) (*hlir.Literal, error) {
	outputShape := op.Outputs[0].Shape()
	size := outputShape.Size()
	if !lanesCompatible(size, operand) {
		return nil, nil
	}
	if !outputShape.DType.IsFloat() {
		values := make([]int64, size)
		for lane := range values {
			v, ok := evalIntUnary(op.OpType, outputShape.DType, operand.Ints[broadcastIndex(lane, len(operand.Ints))])
			if !ok {
				return nil, nil
			}
			values[lane] = v
		}
		return &hlir.Literal{Shape: outputShape.Clone(), Ints: values}, nil
	}
	if !allowFloat && !exactFloatUnaryOps[op.OpType] {
		return nil, nil
	}
	values := make([]float64, size)
	for lane := range values {
		v, ok := evalFloatUnary(op.OpType, outputShape.DType, operand.Floats[broadcastIndex(lane, len(operand.Floats))])
		if !ok {
			return nil, nil
		}
		values[lane] = roundToDType(outputShape.DType, v)
	}
	return &hlir.Literal{Shape: outputShape.Clone(), Floats: values}, nil
}

func lanesCompatible(size int, literal *hlir.Literal) bool {
	n := len(literal.Ints) + len(literal.Floats)
	return n == size || n == 1
}

func evalIntBinary(op optypes.OpType, a, b int64) (int64, bool, error) {
	switch op {
	case optypes.Add:
		return a + b, true, nil
	case optypes.Subtract:
		return a - b, true, nil
	case optypes.Multiply:
		return a * b, true, nil
	case optypes.Divide:
		if b == 0 {
			return 0, false, nil // Leave the runtime trap in place.
		}
		return a / b, true, nil
	case optypes.Remainder:
		if b == 0 {
			return 0, false, nil
		}
		return a % b, true, nil
	case optypes.Maximum:
		return max(a, b), true, nil
	case optypes.Minimum:
		return min(a, b), true, nil
	case optypes.And:
		return a & b, true, nil
	case optypes.Or:
		return a | b, true, nil
	case optypes.Xor:
		return a ^ b, true, nil
	case optypes.Power:
		if b < 0 {
			return 0, false, nil
		}
		result := int64(1)
		for i := int64(0); i < b; i++ {
			result *= a
		}
		return result, true, nil
	}
	return 0, false, nil
}

func evalFloatBinary(op optypes.OpType, dtype dtypes.DType, a, b float64) (float64, bool) {
	if dtype == dtypes.Float64 {
		switch op {
		case optypes.Add:
			return a + b, true
		case optypes.Subtract:
			return a - b, true
		case optypes.Multiply:
			return a * b, true
		case optypes.Divide:
			return a / b, true
		case optypes.Remainder:
			return math.Mod(a, b), true
		case optypes.Maximum:
			return math.Max(a, b), true
		case optypes.Minimum:
			return math.Min(a, b), true
		case optypes.Power:
			return math.Pow(a, b), true
		}
		return 0, false
	}
	// Float32 and the 16-bit formats compute in single precision.
	a32, b32 := float32(a), float32(b)
	switch op {
	case optypes.Add:
		return float64(a32 + b32), true
	case optypes.Subtract:
		return float64(a32 - b32), true
	case optypes.Multiply:
		return float64(a32 * b32), true
	case optypes.Divide:
		return float64(a32 / b32), true
	case optypes.Remainder:
		return float64(math32.Mod(a32, b32)), true
	case optypes.Maximum:
		return float64(math32.Max(a32, b32)), true
	case optypes.Minimum:
		return float64(math32.Min(a32, b32)), true
	case optypes.Power:
		return float64(math32.Pow(a32, b32)), true
	}
	return 0, false
}

func evalIntUnary(op optypes.OpType, dtype dtypes.DType, a int64) (int64, bool) {
	switch op {
	case optypes.Negate:
		return -a, true
	case optypes.Abs:
		if dtype.IsUnsigned() {
			return a, true
		}
		if a < 0 {
			return -a, true
		}
		return a, true
	case optypes.Sign:
		switch {
		case a > 0:
			return 1, true
		case a < 0:
			return -1, true
		}
		return 0, true
	case optypes.Not:
		if dtype == dtypes.Bool {
			if a == 0 {
				return 1, true
			}
			return 0, true
		}
		return ^a, true
	}
	return 0, false
}

func evalFloatUnary(op optypes.OpType, dtype dtypes.DType, a float64) (float64, bool) {
	if dtype == dtypes.Float64 {
		switch op {
		case optypes.Negate:
			return -a, true
		case optypes.Abs:
			return math.Abs(a), true
		case optypes.Sign:
			return signFloat(a), true
		case optypes.Ceil:
			return math.Ceil(a), true
		case optypes.Floor:
			return math.Floor(a), true
		case optypes.Sqrt:
			return math.Sqrt(a), true
		case optypes.Rsqrt:
			return 1 / math.Sqrt(a), true
		case optypes.Exponential:
			return math.Exp(a), true
		case optypes.Log:
			return math.Log(a), true
		case optypes.Logistic:
			return 1 / (1 + math.Exp(-a)), true
		case optypes.Tanh:
			return math.Tanh(a), true
		case optypes.Cosine:
			return math.Cos(a), true
		case optypes.Sine:
			return math.Sin(a), true
		}
		return 0, false
	}
	a32 := float32(a)
	switch op {
	case optypes.Negate:
		return float64(-a32), true
	case optypes.Abs:
		return float64(math32.Abs(a32)), true
	case optypes.Sign:
		return signFloat(a), true
	case optypes.Ceil:
		return float64(math32.Ceil(a32)), true
	case optypes.Floor:
		return float64(math32.Floor(a32)), true
	case optypes.Sqrt:
		return float64(math32.Sqrt(a32)), true
	case optypes.Rsqrt:
		return float64(1 / math32.Sqrt(a32)), true
	case optypes.Exponential:
		return float64(math32.Exp(a32)), true
	case optypes.Log:
		return float64(math32.Log(a32)), true
	case optypes.Logistic:
		return float64(1 / (1 + math32.Exp(-a32))), true
	case optypes.Tanh:
		return float64(math32.Tanh(a32)), true
	case optypes.Cosine:
		return float64(math32.Cos(a32)), true
	case optypes.Sine:
		return float64(math32.Sin(a32)), true
	}
	return 0, false
}

func signFloat(a float64) float64 {
	switch {
	case a > 0:
		return 1
	case a < 0:
		return -1
	}
	return a // Preserves signed zero and NaN.
}

// roundToDType rounds a folded float64 through the storage dtype, so folded
// f16/bf16/f32 constants hold exactly the value the runtime would.
func roundToDType(dtype dtypes.DType, v float64) float64 {
	bits, err := dtypes.Float64ToBits(dtype, v)
	if err != nil {
		return v
	}
	rounded, err := dtypes.BitsToFloat64(dtype, bits)
	if err != nil {
		return v
	}
	return rounded
}

func compareOrdered[T constraints.Ordered](direction string, a, b T) (bool, bool) {
	switch direction {
	case "EQ":
		return a == b, true
	case "NE":
		return a != b, true
	case "LT":
		return a < b, true
	case "LE":
		return a <= b, true
	case "GT":
		return a > b, true
	case "GE":
		return a >= b, true
	}
	return false, false
}
