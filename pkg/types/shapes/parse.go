package shapes

import (
	"strconv"
	"strings"

	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/pkg/errors"
)

// Parse parses the HLO textual representation of a tensor type, the inverse
// of Shape.ToHLO. Examples: "tensor<2x3xf32>", "tensor<?x4xi32>",
// "tensor<f64>" (scalar) and "tensor<*xf32>" (unranked).
func Parse(text string) (Shape, error) {
	trimmed := strings.TrimSpace(text)
	inner, ok := strings.CutPrefix(trimmed, "tensor<")
	if !ok {
		return Invalid(), errors.Errorf("invalid tensor type %q: missing \"tensor<\" prefix", text)
	}
	inner, ok = strings.CutSuffix(inner, ">")
	if !ok {
		return Invalid(), errors.Errorf("invalid tensor type %q: missing closing '>'", text)
	}

	parts := strings.Split(inner, "x")
	elementName := parts[len(parts)-1]
	dtype, err := dtypes.FromHLO(elementName)
	if err != nil {
		return Invalid(), errors.WithMessagef(err, "invalid tensor type %q", text)
	}
	dimParts := parts[:len(parts)-1]

	if len(dimParts) == 1 && dimParts[0] == "*" {
		return MakeUnranked(dtype), nil
	}
	dimensions := make([]int, len(dimParts))
	for i, part := range dimParts {
		if part == "?" {
			dimensions[i] = DimUnknown
			continue
		}
		dim, err := strconv.Atoi(part)
		if err != nil || dim < 0 {
			return Invalid(), errors.Errorf("invalid tensor type %q: bad dimension %q", text, part)
		}
		dimensions[i] = dim
	}
	return Shape{DType: dtype, Dimensions: dimensions}, nil
}

// ParseList parses a comma-separated list of tensor types, e.g.
// "tensor<1x2xf32>, tensor<?x4xi32>". An empty string yields an empty list.
//
// This is the textual format the shape refinement entry point accepts for the
// target types of the entry function arguments.
func ParseList(text string) ([]Shape, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	result := make([]Shape, len(parts))
	for i, part := range parts {
		shape, err := Parse(part)
		if err != nil {
			return nil, errors.WithMessagef(err, "type #%d of list", i)
		}
		result[i] = shape
	}
	return result, nil
}
