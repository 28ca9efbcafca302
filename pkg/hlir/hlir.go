// Package hlir implements the op graph the hlir passes operate on: a Module
// of Functions, each a sequence of Operations connected by typed Values in
// use-def form.
//
// Operations live in a per-function arena and are addressed by stable
// indices; erasing an operation tombstones its slot instead of freeing it, so
// mutation during traversal never invalidates iteration. Passes mutate the
// graph in place through the Function API, which keeps use-def edges valid at
// every step.
package hlir

// Dialect names a vocabulary of operations.
type Dialect int

const (
	// HLO is the source vocabulary: the high-level tensor operation dialect.
	HLO Dialect = iota
	// VHLO is the versioned vocabulary used by the stable serialized form.
	VHLO
)

// String implements fmt.Stringer.
func (d Dialect) String() string {
	switch d {
	case HLO:
		return "hlo"
	case VHLO:
		return "vhlo"
	}
	return "invalid"
}
