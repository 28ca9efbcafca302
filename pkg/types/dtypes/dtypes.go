// Package dtypes defines the element types supported by hlir tensor types.
//
// It only carries the type descriptors needed by shape inference, folding and
// the versioned serialization; it is not a full tensor type system.
package dtypes

import (
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is the enum of element types of a tensor.
type DType int

//go:generate go tool enumer -type DType dtypes.go

const (
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	BFloat16
	Float32
	Float64
)

// hloNames maps each DType to its HLO textual element type name.
var hloNames = map[DType]string{
	Bool:     "i1",
	Int8:     "i8",
	Int16:    "i16",
	Int32:    "i32",
	Int64:    "i64",
	Uint8:    "ui8",
	Uint16:   "ui16",
	Uint32:   "ui32",
	Uint64:   "ui64",
	Float16:  "f16",
	BFloat16: "bf16",
	Float32:  "f32",
	Float64:  "f64",
}

// ToHLO returns the HLO textual representation of the DType, e.g. "f32".
func (dtype DType) ToHLO() string {
	if name, ok := hloNames[dtype]; ok {
		return name
	}
	return "INVALID"
}

// FromHLO parses an HLO element type name, e.g. "f32", back to a DType.
func FromHLO(name string) (DType, error) {
	for dtype, hloName := range hloNames {
		if hloName == name {
			return dtype, nil
		}
	}
	return InvalidDType, errors.Errorf("unknown element type %q", name)
}

// IsFloat returns whether the DType is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == BFloat16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether the DType is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype >= Int8 && dtype <= Uint64
}

// IsUnsigned returns whether the DType is an unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	return dtype >= Uint8 && dtype <= Uint64
}

// SizeInBits of one element of the given DType.
func (dtype DType) SizeInBits() int {
	switch dtype {
	case Bool:
		return 1
	case Int8, Uint8:
		return 8
	case Int16, Uint16, Float16, BFloat16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64:
		return 64
	}
	return 0
}

// Float64ToBits converts a float64 to the raw bits of the given float DType.
// Used when materializing folded floating point constants.
func Float64ToBits(dtype DType, v float64) (uint64, error) {
	switch dtype {
	case Float16:
		return uint64(float16.Fromfloat32(float32(v)).Bits()), nil
	case BFloat16:
		// bfloat16 is float32 with the mantissa truncated to 7 bits.
		return uint64(math.Float32bits(float32(v)) >> 16), nil
	case Float32:
		return uint64(math.Float32bits(float32(v))), nil
	case Float64:
		return math.Float64bits(v), nil
	}
	return 0, errors.Errorf("dtype %s is not a float type", dtype)
}

// BitsToFloat64 converts raw bits of the given float DType to a float64.
func BitsToFloat64(dtype DType, bits uint64) (float64, error) {
	switch dtype {
	case Float16:
		return float64(float16.Frombits(uint16(bits)).Float32()), nil
	case BFloat16:
		return float64(math.Float32frombits(uint32(bits) << 16)), nil
	case Float32:
		return float64(math.Float32frombits(uint32(bits))), nil
	case Float64:
		return math.Float64frombits(bits), nil
	}
	return 0, errors.Errorf("dtype %s is not a float type", dtype)
}
