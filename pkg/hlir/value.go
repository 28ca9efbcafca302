package hlir

import (
	"fmt"
	"io"
	"sort"

	"github.com/gohlo/hlir/pkg/types/shapes"
)

// Value represents a typed edge in the graph, like `%0` or `%arg0`: it has
// exactly one producer (an operation result or a function argument) and zero
// or more consumers (operand positions of other operations).
//
// Identity is the Value pointer; names only matter for rendering.
type Value struct {
	fn    *Function
	name  string
	shape shapes.Shape

	// def is the operation that produced this value, nil for function
	// arguments. defIndex is the index in def.Outputs; argIndex the position
	// in the function's arguments when def == nil.
	def      *Operation
	defIndex int
	argIndex int

	// users are the operations consuming this value in one or more operand
	// positions.
	users map[*Operation]struct{}
}

// Shape returns the shape of the value.
func (v *Value) Shape() shapes.Shape { return v.shape }

// Function the value belongs to.
func (v *Value) Function() *Function { return v.fn }

// DefiningOp returns the operation producing this value, or nil if the value
// is a function argument.
func (v *Value) DefiningOp() *Operation { return v.def }

// IsArgument returns whether the value is a function argument.
func (v *Value) IsArgument() bool { return v.def == nil }

// ArgumentIndex returns the position of the value in the function arguments.
// Only meaningful when IsArgument.
func (v *Value) ArgumentIndex() int { return v.argIndex }

// Users returns the operations consuming this value, in arena order so
// traversal is deterministic.
func (v *Value) Users() []*Operation {
	users := make([]*Operation, 0, len(v.users))
	for op := range v.users {
		users = append(users, op)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].id < users[j].id })
	return users
}

// HasUses returns whether any live operation consumes this value.
func (v *Value) HasUses() bool { return len(v.users) > 0 }

// Write writes the value reference in textual format to the given writer.
func (v *Value) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%%%s", v.name)
	return err
}

// String implements fmt.Stringer.
func (v *Value) String() string { return "%" + v.name }
