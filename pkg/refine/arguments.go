package refine

import (
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
)

// RefineArguments narrows the entry function argument types to the given
// target types, typically the concrete input shapes known at compile time.
//
// Each target type must refine the corresponding declared type: same dtype,
// same rank once ranked, and every already-known extent preserved. Consumers
// of a narrowed argument are rewired through a widening wrapper producing the
// original declared type, so the function body stays type-correct until Run
// propagates the narrowed types and the canonicalizer drops the wrappers.
func RefineArguments(fn *hlir.Function, targetTypes []shapes.Shape) error {
	if len(targetTypes) != len(fn.Inputs) {
		return errors.Errorf("function %q has %d arguments, but %d refinement types were given",
			fn.Name, len(fn.Inputs), len(targetTypes))
	}
	for i, target := range targetTypes {
		arg := fn.Inputs[i]
		declared := arg.Shape()
		if !target.IsRefinementOf(declared) {
			return errors.Errorf("refinement type %s of argument #%d of function %q does not refine its declared type %s",
				target, i, fn.Name, declared)
		}
		if target.Equal(declared) {
			continue
		}
		arg.SetShape(target)
		if !arg.HasUses() {
			continue
		}
		if _, err := fn.WrapArgumentUses(arg, declared, hlir.WrapperTargetName); err != nil {
			return err
		}
	}
	return nil
}
