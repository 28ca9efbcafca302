// Package composite inlines composite operations: a composite is an opaque
// named abstraction carrying a reference to the function that implements it,
// and decomposition replaces the abstraction with a plain call to that
// function.
package composite

import (
	"strings"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/internal/utils"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options configure a decomposition run.
type Options struct {
	// Exclude holds fully qualified composite names to leave untouched.
	Exclude utils.Set[string]
}

// ParseExclusions parses the comma separated exclusion list format used on
// the command line, e.g. "tensorflow.uniform_quantize,my.custom_op".
func ParseExclusions(text string) utils.Set[string] {
	exclude := utils.MakeSet[string]()
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			exclude.Insert(name)
		}
	}
	return exclude
}

// Decompose replaces every composite operation in the module whose name is
// not excluded with a call to its decomposition function, passing operands
// through positionally.
//
// A composite without a decomposition attribute, referencing a function the
// module does not contain, or whose result types differ from the
// decomposition's is a hard failure.
func Decompose(module *hlir.Module, opts Options) error {
	for _, fn := range module.Functions {
		for _, op := range fn.Operations() {
			if op.OpType != optypes.Composite {
				continue
			}
			if err := decomposeOp(module, fn, op, opts); err != nil {
				return errors.WithMessagef(err, "function %q", fn.Name)
			}
		}
	}
	return nil
}

func decomposeOp(module *hlir.Module, fn *hlir.Function, op *hlir.Operation, opts Options) error {
	name, ok := op.StrAttr(hlir.AttrCompositeName)
	if !ok {
		return errors.Errorf("composite operation %s carries no name", op)
	}
	if opts.Exclude.Has(name) {
		klog.V(1).Infof("composite %q excluded from decomposition", name)
		return nil
	}
	decomposition, ok := op.StrAttr(hlir.AttrDecomposition)
	if !ok {
		return errors.Errorf("composite %q (operation %s) carries no decomposition", name, op)
	}
	callee := module.FindFunction(decomposition)
	if callee == nil {
		return errors.Errorf("composite %q names decomposition @%s, which is not in the module", name, decomposition)
	}
	if len(callee.Inputs) != len(op.Inputs) {
		return errors.Errorf("decomposition signature mismatch for composite %q: @%s takes %d arguments, composite has %d operands",
			name, decomposition, len(callee.Inputs), len(op.Inputs))
	}
	calleeResults := callee.ResultTypes()
	if len(calleeResults) != len(op.Outputs) {
		return errors.Errorf("decomposition signature mismatch for composite %q: @%s returns %d values, composite has %d results",
			name, decomposition, len(calleeResults), len(op.Outputs))
	}
	for i, result := range calleeResults {
		if !result.Equal(op.Outputs[i].Shape()) {
			return errors.Errorf("decomposition signature mismatch for composite %q: result #%d is %s in @%s but %s on the composite",
				name, i, result, decomposition, op.Outputs[i].Shape())
		}
	}

	call, err := fn.AddOp(op.Dialect, optypes.Call, calleeResults, op.Inputs...)
	if err != nil {
		return err
	}
	call.SetAttr(hlir.AttrCallee, decomposition)
	return fn.ReplaceOpWithValues(op, call.Outputs...)
}
