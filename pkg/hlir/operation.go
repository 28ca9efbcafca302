package hlir

import (
	"fmt"
	"io"
	"strings"

	"github.com/gohlo/hlir/internal/optypes"
)

// Operation is a node of the graph: an opcode, ordered operand values,
// ordered result values and named attributes.
//
// Operations are owned by the Function that contains them and must only be
// created and mutated through the Function API, which maintains the use-def
// edges.
type Operation struct {
	// id is the stable arena index of the operation within its function.
	id int
	fn *Function

	// dead marks a tombstoned (erased) arena slot.
	dead bool

	OpType  optypes.OpType
	Dialect Dialect

	Inputs     []*Value
	Outputs    []*Value
	Attributes map[string]any
}

// Function that owns the operation.
func (op *Operation) Function() *Function { return op.fn }

// ID returns the stable arena index of the operation.
func (op *Operation) ID() int { return op.id }

// IsDead reports whether the operation was erased.
func (op *Operation) IsDead() bool { return op.dead }

// Name returns the dialect-qualified opcode name, e.g. "hlo.dynamic_reshape"
// or, for versioned operations, "vhlo.dynamic_reshape_v1" (the revision comes
// from the AttrVersionRevision attribute, defaulting to 1).
func (op *Operation) Name() string {
	name := op.Dialect.String() + "." + op.OpType.HLOName()
	if op.Dialect == VHLO {
		revision := int64(1)
		if r, ok := op.IntAttr(AttrVersionRevision); ok {
			revision = r
		}
		name = fmt.Sprintf("%s_v%d", name, revision)
	}
	return name
}

// Attribute names used by the passes.
const (
	// AttrValue holds the *Literal of a constant operation.
	AttrValue = "value"
	// AttrVersionRevision is the versioned-dialect revision of an operation.
	AttrVersionRevision = "vhlo.revision"
	// AttrCallTarget is the target name of a custom_call operation.
	AttrCallTarget = "call_target_name"
	// AttrCallee is the symbol reference of a call operation.
	AttrCallee = "callee"
	// AttrCompositeName is the fully qualified name of a composite operation.
	AttrCompositeName = "name"
	// AttrDecomposition is the symbol reference of the function implementing
	// a composite operation.
	AttrDecomposition = "decomposition"
	// AttrComparisonDirection holds one of EQ, NE, LT, LE, GT, GE.
	AttrComparisonDirection = "comparison_direction"
	// AttrIotaDimension is the dimension an iota operation fills.
	AttrIotaDimension = "iota_dimension"
	// AttrBroadcastDimensions maps operand to result dimensions of a
	// broadcast_in_dim operation.
	AttrBroadcastDimensions = "broadcast_dimensions"
	// AttrDimension is the axis attribute of concatenate and
	// get_dimension_size.
	AttrDimension = "dimension"
	// AttrStartIndices, AttrLimitIndices and AttrStrides parametrize a static
	// slice operation.
	AttrStartIndices = "start_indices"
	AttrLimitIndices = "limit_indices"
	AttrStrides      = "strides"
	// AttrSliceSizes holds the per-dimension extents of a dynamic_slice
	// operation; only its start indices are run-time values.
	AttrSliceSizes = "slice_sizes"
	// AttrPermutation is the dimension permutation of a transpose operation.
	AttrPermutation = "permutation"
	// AttrPaddingLow and AttrPaddingHigh parametrize a static pad operation.
	AttrPaddingLow  = "edge_padding_low"
	AttrPaddingHigh = "edge_padding_high"
)

// Distinguished custom_call targets used by the passes.
const (
	// CastTargetName marks an unrealized conversion cast inserted by the
	// dialect conversion driver while types are in flight.
	CastTargetName = "builtin.unrealized_conversion_cast"
	// WrapperTargetName marks the type-widening marker the argument
	// refinement front-end inserts after each refined argument.
	WrapperTargetName = "hlir.shape_refinement_wrapper"
)

// ReplaceOperand swaps the operand at the given position for newValue,
// keeping the use lists of both values correct.
func (op *Operation) ReplaceOperand(index int, newValue *Value) error {
	if index < 0 || index >= len(op.Inputs) {
		return fmt.Errorf("operation %s has no operand #%d", op, index)
	}
	if newValue == nil || newValue.fn != op.fn {
		return fmt.Errorf("operation %s: replacement for operand #%d is not part of the same function", op, index)
	}
	old := op.Inputs[index]
	if old == newValue {
		return nil
	}
	op.Inputs[index] = newValue
	newValue.users[op] = struct{}{}
	for _, input := range op.Inputs {
		if input == old {
			return nil // Another operand position still uses the old value.
		}
	}
	delete(old.users, op)
	return nil
}

// IntAttr returns the attribute with the given name as an int64.
func (op *Operation) IntAttr(name string) (int64, bool) {
	attr, ok := op.Attributes[name]
	if !ok {
		return 0, false
	}
	value, ok := attr.(int64)
	return value, ok
}

// IntSliceAttr returns the attribute with the given name as a []int64.
func (op *Operation) IntSliceAttr(name string) ([]int64, bool) {
	attr, ok := op.Attributes[name]
	if !ok {
		return nil, false
	}
	value, ok := attr.([]int64)
	return value, ok
}

// StrAttr returns the attribute with the given name as a string.
func (op *Operation) StrAttr(name string) (string, bool) {
	attr, ok := op.Attributes[name]
	if !ok {
		return "", false
	}
	value, ok := attr.(string)
	return value, ok
}

// LiteralAttr returns the attribute with the given name as a *Literal.
func (op *Operation) LiteralAttr(name string) (*Literal, bool) {
	attr, ok := op.Attributes[name]
	if !ok {
		return nil, false
	}
	value, ok := attr.(*Literal)
	return value, ok
}

// SetAttr sets a named attribute. Allowed value types: int64, float64, bool,
// string, []int64, []float64 and *Literal.
func (op *Operation) SetAttr(name string, value any) {
	if op.Attributes == nil {
		op.Attributes = make(map[string]any)
	}
	op.Attributes[name] = value
}

// AttrNames returns the attribute names in sorted order.
func (op *Operation) AttrNames() []string {
	return sortedAttrNames(op.Attributes)
}

// ClearAttr removes a named attribute, if set.
func (op *Operation) ClearAttr(name string) {
	delete(op.Attributes, name)
}

// IsConstant returns the literal held by a constant operation, or nil.
func (op *Operation) IsConstant() *Literal {
	if op.OpType != optypes.Constant {
		return nil
	}
	literal, _ := op.LiteralAttr(AttrValue)
	return literal
}

// Write renders the operation as one line of textual format.
func (op *Operation) Write(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	w("  ")
	if len(op.Outputs) > 0 {
		for i, output := range op.Outputs {
			if i > 0 {
				w(", ")
			}
			w("%s", output)
		}
		w(" = ")
	}
	w("%q(", op.Name())
	for i, input := range op.Inputs {
		if i > 0 {
			w(", ")
		}
		w("%s", input)
	}
	w(")")
	if len(op.Attributes) > 0 {
		w(" {")
		for i, name := range sortedAttrNames(op.Attributes) {
			if i > 0 {
				w(", ")
			}
			w("%s = %v", name, op.Attributes[name])
		}
		w("}")
	}
	w(" : (")
	for i, input := range op.Inputs {
		if i > 0 {
			w(", ")
		}
		w("%s", input.Shape())
	}
	w(") -> ")
	if len(op.Outputs) == 0 {
		w("()")
	} else if len(op.Outputs) == 1 {
		w("%s", op.Outputs[0].Shape())
	} else {
		w("(")
		for i, output := range op.Outputs {
			if i > 0 {
				w(", ")
			}
			w("%s", output.Shape())
		}
		w(")")
	}
	return err
}

// String implements fmt.Stringer, returning the one-line textual form.
func (op *Operation) String() string {
	var sb strings.Builder
	_ = op.Write(&sb)
	return strings.TrimSpace(sb.String())
}
