// Package shapes defines the Shape of tensor values: an element type (DType)
// plus dimensions that are static, partially dynamic (DimUnknown) or fully
// unranked.
//
// Shapes are immutable value types, structurally compared: two shapes with the
// same structure are the same shape.
package shapes

import (
	"slices"

	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/pkg/errors"
)

// DimUnknown is the value used to represent dimensions whose extent is not
// known at compile time, rendered as "?".
const DimUnknown = -1

// Shape of a tensor value.
//
// A scalar has rank 0 (empty Dimensions). An unranked shape has Unranked set
// and no Dimensions.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
	Unranked   bool
}

// Make returns a Shape with the given dtype and dimensions. No dimensions
// means a scalar.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	return Shape{DType: dtype, Dimensions: dimensions}
}

// MakeUnranked returns an unranked Shape of the given dtype.
func MakeUnranked(dtype dtypes.DType) Shape {
	return Shape{DType: dtype, Unranked: true}
}

// Invalid returns an invalid shape, usually returned along an error.
func Invalid() Shape { return Shape{} }

// Ok returns whether the shape holds a valid dtype.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape. Only meaningful for ranked shapes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape is ranked with rank 0.
func (s Shape) IsScalar() bool { return !s.Unranked && s.Rank() == 0 }

// IsStatic returns whether the shape is ranked and every dimension is known.
func (s Shape) IsStatic() bool {
	if s.Unranked {
		return false
	}
	for _, dim := range s.Dimensions {
		if dim < 0 {
			return false
		}
	}
	return true
}

// Size returns the number of elements, or DimUnknown if any dimension is
// dynamic or the shape is unranked.
func (s Shape) Size() int {
	if !s.IsStatic() {
		return DimUnknown
	}
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	s.Dimensions = slices.Clone(s.Dimensions)
	return s
}

// Equal returns whether the two shapes are structurally identical.
func (s Shape) Equal(other Shape) bool {
	return s.DType == other.DType &&
		s.Unranked == other.Unranked &&
		slices.Equal(s.Dimensions, other.Dimensions)
}

// Compatible returns whether the two shapes could describe the same run-time
// value: same dtype, and every pair of corresponding dimensions either equal
// or at least one of them unknown. An unranked shape is compatible with any
// ranked shape of the same dtype.
func (s Shape) Compatible(other Shape) bool {
	if s.DType != other.DType {
		return false
	}
	if s.Unranked || other.Unranked {
		return true
	}
	if s.Rank() != other.Rank() {
		return false
	}
	for i, dim := range s.Dimensions {
		otherDim := other.Dimensions[i]
		if dim != otherDim && dim != DimUnknown && otherDim != DimUnknown {
			return false
		}
	}
	return true
}

// IsRefinementOf returns whether s carries at least as much information as
// wider, without contradicting it: same dtype, and s only turns unknown
// extents of wider into known ones (never the reverse, never changing a known
// extent).
//
// Every shape is a refinement of itself.
func (s Shape) IsRefinementOf(wider Shape) bool {
	if s.DType != wider.DType {
		return false
	}
	if wider.Unranked {
		return true
	}
	if s.Unranked {
		return false
	}
	if s.Rank() != wider.Rank() {
		return false
	}
	for i, dim := range s.Dimensions {
		widerDim := wider.Dimensions[i]
		if widerDim != DimUnknown && dim != widerDim {
			return false
		}
		if dim == DimUnknown && widerDim != DimUnknown {
			return false
		}
	}
	return true
}

// IsStrictRefinementOf returns whether s refines wider and adds information.
func (s Shape) IsStrictRefinementOf(wider Shape) bool {
	return s.IsRefinementOf(wider) && !s.Equal(wider)
}

// Refine merges the information of the two compatible shapes, keeping known
// extents from either side. It errors if the shapes contradict each other
// (refinement must be monotonic: extents only go from unknown to known).
func (s Shape) Refine(other Shape) (Shape, error) {
	if s.DType != other.DType {
		return Invalid(), errors.Errorf("cannot refine shape %s with %s: different dtypes", s, other)
	}
	if s.Unranked {
		return other.Clone(), nil
	}
	if other.Unranked {
		return s.Clone(), nil
	}
	if s.Rank() != other.Rank() {
		return Invalid(), errors.Errorf("cannot refine shape %s with %s: different ranks", s, other)
	}
	refined := s.Clone()
	for i, dim := range other.Dimensions {
		switch {
		case dim == DimUnknown:
		case refined.Dimensions[i] == DimUnknown:
			refined.Dimensions[i] = dim
		case refined.Dimensions[i] != dim:
			return Invalid(), errors.Errorf("cannot refine shape %s with %s: dimension %d contradicts", s, other, i)
		}
	}
	return refined, nil
}

// String implements fmt.Stringer, returning the HLO textual form.
func (s Shape) String() string { return s.ToHLO() }
