package hlir

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/internal/utils"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
)

// Function is a region of the graph: an ordered arena of operations with
// typed arguments and results, like a `func.func`.
type Function struct {
	// Name of the function, without any "@" prefix.
	Name string

	// IsPublic marks the function as visible outside the module. The entry
	// function of a module is its first public function.
	IsPublic bool

	module *Module

	// Inputs are the argument values of the function.
	Inputs []*Value

	// ops is the operation arena. Slots are stable: erased operations are
	// tombstoned (op.dead) and never reused, so in-flight iteration remains
	// valid while the graph mutates.
	ops []*Operation

	numValues int
}

// Module the function belongs to.
func (fn *Function) Module() *Module { return fn.module }

// newValue creates a new unique value within the function's scope.
func (fn *Function) newValue(shape shapes.Shape) *Value {
	v := &Value{
		fn:    fn,
		name:  strconv.Itoa(fn.numValues),
		shape: shape,
		users: make(map[*Operation]struct{}),
	}
	fn.numValues++
	return v
}

// AddArgument appends a new argument value of the given shape.
func (fn *Function) AddArgument(name string, shape shapes.Shape) *Value {
	if name == "" {
		name = "arg" + strconv.Itoa(len(fn.Inputs))
	}
	v := &Value{
		fn:       fn,
		name:     utils.NormalizeIdentifier(name),
		shape:    shape,
		argIndex: len(fn.Inputs),
		users:    make(map[*Operation]struct{}),
	}
	fn.Inputs = append(fn.Inputs, v)
	return v
}

// AddOp appends a new operation with the given result shapes and operands.
// All operands must belong to this function.
func (fn *Function) AddOp(dialect Dialect, opType optypes.OpType, resultShapes []shapes.Shape, inputs ...*Value) (*Operation, error) {
	for i, input := range inputs {
		if input == nil || input.fn != fn {
			return nil, errors.Errorf("cannot add operation %s to function %q: operand #%d is not part of the function",
				opType, fn.Name, i)
		}
		if input.def != nil && input.def.dead {
			return nil, errors.Errorf("cannot add operation %s to function %q: operand #%d was produced by an erased operation",
				opType, fn.Name, i)
		}
	}
	op := &Operation{
		id:      len(fn.ops),
		fn:      fn,
		OpType:  opType,
		Dialect: dialect,
		Inputs:  append([]*Value(nil), inputs...),
	}
	op.Outputs = make([]*Value, len(resultShapes))
	for i, shape := range resultShapes {
		v := fn.newValue(shape)
		v.def = op
		v.defIndex = i
		op.Outputs[i] = v
	}
	for _, input := range inputs {
		input.users[op] = struct{}{}
	}
	fn.ops = append(fn.ops, op)
	return op, nil
}

// Constant appends a constant operation holding the given literal and returns
// its result value.
func (fn *Function) Constant(literal *Literal) (*Value, error) {
	if literal == nil {
		return nil, errors.New("constant literal cannot be nil")
	}
	op, err := fn.AddOp(HLO, optypes.Constant, []shapes.Shape{literal.Shape})
	if err != nil {
		return nil, err
	}
	op.SetAttr(AttrValue, literal)
	return op.Outputs[0], nil
}

// Return appends the return operation of the function.
func (fn *Function) Return(values ...*Value) (*Operation, error) {
	if ret := fn.ReturnOp(); ret != nil {
		return nil, errors.Errorf("function %q already returned", fn.Name)
	}
	return fn.AddOp(HLO, optypes.Return, nil, values...)
}

// ReturnOp returns the live return operation of the function, or nil.
func (fn *Function) ReturnOp() *Operation {
	for i := len(fn.ops) - 1; i >= 0; i-- {
		op := fn.ops[i]
		if !op.dead && op.OpType == optypes.Return {
			return op
		}
	}
	return nil
}

// ResultTypes returns the shapes of the function results, taken from the
// operands of the return operation.
func (fn *Function) ResultTypes() []shapes.Shape {
	ret := fn.ReturnOp()
	if ret == nil {
		return nil
	}
	result := make([]shapes.Shape, len(ret.Inputs))
	for i, input := range ret.Inputs {
		result[i] = input.Shape()
	}
	return result
}

// Operations returns a snapshot of the live operations in arena order.
// The snapshot stays valid while the graph mutates (erased operations are
// only tombstoned), so it is safe to rewrite while ranging over it.
func (fn *Function) Operations() []*Operation {
	result := make([]*Operation, 0, len(fn.ops))
	for _, op := range fn.ops {
		if !op.dead {
			result = append(result, op)
		}
	}
	return result
}

// NumLiveOps returns the number of live (non-tombstoned) operations.
func (fn *Function) NumLiveOps() int {
	count := 0
	for _, op := range fn.ops {
		if !op.dead {
			count++
		}
	}
	return count
}

// OpByID returns the operation at the given arena index, even if tombstoned.
func (fn *Function) OpByID(id int) *Operation {
	if id < 0 || id >= len(fn.ops) {
		return nil
	}
	return fn.ops[id]
}

// EraseOp tombstones the operation. It fails if any of its results still has
// uses -- erasing it would leave dangling consumers.
func (fn *Function) EraseOp(op *Operation) error {
	if op.fn != fn {
		return errors.Errorf("cannot erase operation %s: not part of function %q", op, fn.Name)
	}
	if op.dead {
		return nil
	}
	for _, output := range op.Outputs {
		if output.HasUses() {
			return errors.Errorf("cannot erase operation %s: result %s still has %d uses",
				op, output, len(output.users))
		}
	}
	for _, input := range op.Inputs {
		delete(input.users, op)
	}
	op.dead = true
	return nil
}

// ReplaceAllUsesWith rewires every consumer of old to use new instead.
func (fn *Function) ReplaceAllUsesWith(old, new *Value) error {
	if old.fn != fn || new.fn != fn {
		return errors.Errorf("cannot replace uses of %s: values not part of function %q", old, fn.Name)
	}
	if old == new {
		return nil
	}
	for _, user := range old.Users() {
		for i, input := range user.Inputs {
			if input == old {
				user.Inputs[i] = new
				new.users[user] = struct{}{}
			}
		}
		delete(old.users, user)
	}
	return nil
}

// ReplaceOpWithValues rewires all uses of the operation's results to the given
// replacement values (one per result) and erases the operation.
func (fn *Function) ReplaceOpWithValues(op *Operation, replacements ...*Value) error {
	if len(replacements) != len(op.Outputs) {
		return errors.Errorf("cannot replace operation %s: %d replacement values for %d results",
			op, len(replacements), len(op.Outputs))
	}
	for i, output := range op.Outputs {
		if err := fn.ReplaceAllUsesWith(output, replacements[i]); err != nil {
			return err
		}
	}
	return fn.EraseOp(op)
}

// WrapArgumentUses inserts a custom_call with the given target name right
// after the argument, producing widerShape, and rewires all existing
// consumers of the argument through it. Used when an argument type was
// narrowed but the rest of the graph still expects the original wider type.
func (fn *Function) WrapArgumentUses(arg *Value, widerShape shapes.Shape, targetName string) (*Operation, error) {
	if arg.fn != fn || !arg.IsArgument() {
		return nil, errors.Errorf("value %s is not an argument of function %q", arg, fn.Name)
	}
	users := arg.Users()
	wrapper, err := fn.AddOp(HLO, optypes.CustomCall, []shapes.Shape{widerShape}, arg)
	if err != nil {
		return nil, err
	}
	wrapper.SetAttr(AttrCallTarget, targetName)
	for _, user := range users {
		for i, input := range user.Inputs {
			if input == arg {
				if err := user.ReplaceOperand(i, wrapper.Outputs[0]); err != nil {
					return nil, err
				}
			}
		}
	}
	return wrapper, nil
}

// TopologicalOrder returns the live operations sorted producer-before-
// consumer, breaking ties by arena index so the order is deterministic.
// Operations stuck in a cycle (which the verifier rejects) are appended at
// the end in arena order.
func (fn *Function) TopologicalOrder() []*Operation {
	live := fn.Operations()
	pending := make(map[*Operation]int, len(live)) // op -> unsatisfied operand producers
	for _, op := range live {
		count := 0
		seen := utils.MakeSet[*Operation]()
		for _, input := range op.Inputs {
			if input.def != nil && !input.def.dead && !seen.Has(input.def) {
				seen.Insert(input.def)
				count++
			}
		}
		pending[op] = count
	}
	ready := make([]*Operation, 0, len(live))
	for _, op := range live {
		if pending[op] == 0 {
			ready = append(ready, op)
		}
	}
	result := make([]*Operation, 0, len(live))
	emitted := utils.MakeSet[*Operation]()
	for len(ready) > 0 {
		// ready is kept sorted by construction: ops are appended in arena
		// order and consumers always have larger... not guaranteed after
		// rewrites, so sort explicitly.
		sort.Slice(ready, func(i, j int) bool { return ready[i].id < ready[j].id })
		op := ready[0]
		ready = ready[1:]
		result = append(result, op)
		emitted.Insert(op)
		// A user consuming several results of op was counted once above, so
		// it is decremented once here too.
		notified := utils.MakeSet[*Operation]()
		for _, output := range op.Outputs {
			for _, user := range output.Users() {
				if user.dead || emitted.Has(user) || notified.Has(user) {
					continue
				}
				notified.Insert(user)
				pending[user]--
				if pending[user] == 0 {
					ready = append(ready, user)
				}
			}
		}
	}
	if len(result) < len(live) {
		for _, op := range live {
			if !emitted.Has(op) {
				result = append(result, op)
			}
		}
	}
	return result
}

// Write renders the function in textual format.
func (fn *Function) Write(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	w("func.func ")
	if fn.IsPublic {
		w("public ")
	}
	w("@%s(", fn.Name)
	for i, input := range fn.Inputs {
		if i > 0 {
			w(", ")
		}
		w("%s: %s", input, input.Shape())
	}
	w(") -> (")
	for i, result := range fn.ResultTypes() {
		if i > 0 {
			w(", ")
		}
		w("%s", result)
	}
	w(") {\n")
	for _, op := range fn.Operations() {
		if err != nil {
			return err
		}
		err = op.Write(writer)
		w("\n")
	}
	w("}\n")
	return err
}

// String implements fmt.Stringer.
func (fn *Function) String() string {
	var sb strings.Builder
	_ = fn.Write(&sb)
	return sb.String()
}

func sortedAttrNames(attributes map[string]any) []string {
	names := make([]string, 0, len(attributes))
	for name := range attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
