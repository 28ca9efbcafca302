package shapes

import (
	"fmt"
	"io"
	"strings"
)

// ToHLO returns the HLO textual representation of the shape's type,
// e.g. "tensor<2x3xf32>" or "tensor<?x4xi32>".
func (s Shape) ToHLO() string {
	var sb strings.Builder
	_ = s.WriteHLO(&sb)
	return sb.String()
}

// WriteHLO writes the HLO textual representation of the shape's type to the
// given writer.
func (s Shape) WriteHLO(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	w("tensor<")
	if s.Unranked {
		w("*x")
	} else {
		for _, dim := range s.Dimensions {
			// '?' marks dynamic/unknown dimensions.
			if dim < 0 {
				w("?")
			} else {
				w("%d", dim)
			}
			w("x")
		}
	}
	w("%s", s.DType.ToHLO())
	w(">")
	return err
}
