package hlir

import (
	"fmt"
	"strings"

	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
)

// Literal is a materialized tensor constant: the value attribute of a
// constant operation.
//
// Integer and boolean elements are stored in Ints, floating point elements in
// Floats (widened to float64 -- the dtype still records the storage type).
// Exactly one of the two slices is used, in row-major order.
type Literal struct {
	Shape  shapes.Shape
	Ints   []int64
	Floats []float64
}

// NewIntLiteral creates a Literal of an integer (or boolean) dtype.
func NewIntLiteral(dtype dtypes.DType, dimensions []int, values ...int64) (*Literal, error) {
	if dtype.IsFloat() {
		return nil, errors.Errorf("NewIntLiteral called with float dtype %s", dtype)
	}
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(values) {
		return nil, errors.Errorf("literal of shape %s requires %d elements, got %d", shape, shape.Size(), len(values))
	}
	return &Literal{Shape: shape, Ints: values}, nil
}

// NewFloatLiteral creates a Literal of a floating point dtype.
func NewFloatLiteral(dtype dtypes.DType, dimensions []int, values ...float64) (*Literal, error) {
	if !dtype.IsFloat() {
		return nil, errors.Errorf("NewFloatLiteral called with non-float dtype %s", dtype)
	}
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(values) {
		return nil, errors.Errorf("literal of shape %s requires %d elements, got %d", shape, shape.Size(), len(values))
	}
	return &Literal{Shape: shape, Floats: values}, nil
}

// NewScalarLiteral creates a rank-0 Literal from a Go scalar.
func NewScalarLiteral(dtype dtypes.DType, value any) (*Literal, error) {
	switch v := value.(type) {
	case int:
		return NewIntLiteral(dtype, nil, int64(v))
	case int64:
		return NewIntLiteral(dtype, nil, v)
	case bool:
		b := int64(0)
		if v {
			b = 1
		}
		return NewIntLiteral(dtype, nil, b)
	case float32:
		return NewFloatLiteral(dtype, nil, float64(v))
	case float64:
		return NewFloatLiteral(dtype, nil, v)
	}
	return nil, errors.Errorf("unsupported scalar literal value type %T", value)
}

// IsInt returns whether the literal stores integer (or boolean) elements.
func (l *Literal) IsInt() bool { return !l.Shape.DType.IsFloat() }

// Ints1D returns the elements as a []int when the literal is an integer
// scalar or 1D tensor -- the form shape operands take. Returns false
// otherwise.
func (l *Literal) Ints1D() ([]int, bool) {
	if l.IsInt() && l.Shape.Rank() <= 1 {
		result := make([]int, len(l.Ints))
		for i, v := range l.Ints {
			result[i] = int(v)
		}
		return result, true
	}
	return nil, false
}

// ScalarInt returns the value of an integer scalar literal.
func (l *Literal) ScalarInt() (int64, bool) {
	if l.IsInt() && l.Shape.IsScalar() && len(l.Ints) == 1 {
		return l.Ints[0], true
	}
	return 0, false
}

// Equal returns whether the two literals hold the same shape and elements.
func (l *Literal) Equal(other *Literal) bool {
	if l == nil || other == nil {
		return l == other
	}
	if !l.Shape.Equal(other.Shape) || len(l.Ints) != len(other.Ints) || len(l.Floats) != len(other.Floats) {
		return false
	}
	for i, v := range l.Ints {
		if other.Ints[i] != v {
			return false
		}
	}
	for i, v := range l.Floats {
		if other.Floats[i] != v {
			return false
		}
	}
	return true
}

// String renders the literal in dense<...> form.
func (l *Literal) String() string {
	var sb strings.Builder
	sb.WriteString("dense<")
	if l.IsInt() {
		writeDense(&sb, l.Ints)
	} else {
		writeDense(&sb, l.Floats)
	}
	fmt.Fprintf(&sb, "> : %s", l.Shape)
	return sb.String()
}

func writeDense[T int64 | float64](sb *strings.Builder, values []T) {
	if len(values) == 1 {
		fmt.Fprintf(sb, "%v", values[0])
		return
	}
	sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%v", v)
	}
	sb.WriteByte(']')
}
