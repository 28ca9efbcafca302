package hlir

import (
	"maps"

	"github.com/gohlo/hlir/pkg/types/shapes"
)

// SetShape overwrites the shape of the value. Callers are responsible for
// keeping the graph type-correct; the shape refinement engine additionally
// enforces that changes are monotonic refinements.
func (v *Value) SetShape(shape shapes.Shape) {
	v.shape = shape
}

// Clone returns a deep copy of the module. The copy shares no mutable state
// with the original, so the two can be transformed independently.
func (m *Module) Clone() *Module {
	clone := NewModule()
	for _, fn := range m.Functions {
		fn.cloneInto(clone)
	}
	return clone
}

func (fn *Function) cloneInto(m *Module) *Function {
	clone := m.NewFunction(fn.Name, fn.IsPublic)
	clone.numValues = fn.numValues
	valueMap := make(map[*Value]*Value, fn.numValues)
	cloneValue := func(v *Value) *Value {
		nv := &Value{
			fn:       clone,
			name:     v.name,
			shape:    v.shape.Clone(),
			argIndex: v.argIndex,
			users:    make(map[*Operation]struct{}, len(v.users)),
		}
		valueMap[v] = nv
		return nv
	}
	for _, input := range fn.Inputs {
		clone.Inputs = append(clone.Inputs, cloneValue(input))
	}
	// First pass creates every operation and its result values; operands are
	// wired in a second pass because rewrites can leave an operation ahead of
	// its producer in arena order.
	for _, op := range fn.ops {
		newOp := &Operation{
			id:      op.id,
			fn:      clone,
			dead:    op.dead,
			OpType:  op.OpType,
			Dialect: op.Dialect,
		}
		if op.Attributes != nil {
			newOp.Attributes = maps.Clone(op.Attributes)
		}
		newOp.Outputs = make([]*Value, len(op.Outputs))
		for i, output := range op.Outputs {
			nv := cloneValue(output)
			nv.def = newOp
			nv.defIndex = i
			newOp.Outputs[i] = nv
		}
		clone.ops = append(clone.ops, newOp)
	}
	for opIdx, op := range fn.ops {
		newOp := clone.ops[opIdx]
		newOp.Inputs = make([]*Value, len(op.Inputs))
		for i, input := range op.Inputs {
			nv := valueMap[input]
			newOp.Inputs[i] = nv
			if !newOp.dead {
				nv.users[newOp] = struct{}{}
			}
		}
	}
	return clone
}
