// Package rewrite implements the pattern-driven graph rewrite engine: it
// applies a benefit-ranked set of local rewrite rules to a function until no
// rule applies or the iteration budget runs out.
//
// A pattern failing to match is silent; only whole-pass failures surface.
// Exhausting the budget is a non-fatal diagnostic (Result.Converged == false)
// and leaves the graph in the last applied state.
package rewrite

import (
	"sort"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pattern is one local rewrite rule.
//
// MatchAndRewrite inspects the operation rooted at op and, if it matches,
// rewrites the graph through rw and returns true. Returning (false, nil)
// means "no match" and is never an error.
type Pattern interface {
	// Name identifies the pattern in diagnostics and in Result counts.
	Name() string
	// Benefit ranks the pattern: higher benefit patterns are tried first.
	// Equal-benefit patterns are tried in registration order.
	Benefit() int
	MatchAndRewrite(rw *Rewriter, op *hlir.Operation) (bool, error)
}

// PatternFunc is a convenience Pattern implemented by a function.
type PatternFunc struct {
	PatternName    string
	PatternBenefit int
	Fn             func(rw *Rewriter, op *hlir.Operation) (bool, error)
}

// Name implements Pattern.
func (p *PatternFunc) Name() string { return p.PatternName }

// Benefit implements Pattern.
func (p *PatternFunc) Benefit() int { return p.PatternBenefit }

// MatchAndRewrite implements Pattern.
func (p *PatternFunc) MatchAndRewrite(rw *Rewriter, op *hlir.Operation) (bool, error) {
	return p.Fn(rw, op)
}

// Options configure one engine run.
type Options struct {
	// MaxApplications is the fuel: the maximum number of successful pattern
	// applications before the engine gives up converging. 0 means
	// DefaultMaxApplications.
	MaxApplications int
}

// DefaultMaxApplications is the default rewrite fuel.
const DefaultMaxApplications = 10_000

// Result reports what one engine run did.
type Result struct {
	// Applications counts successful applications per pattern name.
	Applications map[string]int
	// Total is the number of successful pattern applications.
	Total int
	// Converged is false when the fuel ran out before reaching a fixed
	// point. The graph is left in the last applied state: this is a
	// diagnostic, not an error.
	Converged bool
}

// Changed returns whether any pattern applied.
func (r Result) Changed() bool { return r.Total > 0 }

// Rewriter is handed to patterns to mutate the graph; it keeps the engine's
// worklist in sync with the mutations.
type Rewriter struct {
	fn       *hlir.Function
	worklist []int
	inQueue  map[int]bool
}

// Fn returns the function being rewritten.
func (rw *Rewriter) Fn() *hlir.Function { return rw.fn }

func (rw *Rewriter) enqueue(op *hlir.Operation) {
	if op == nil || op.IsDead() || rw.inQueue[op.ID()] {
		return
	}
	rw.inQueue[op.ID()] = true
	rw.worklist = append(rw.worklist, op.ID())
}

// notifyUsers re-enqueues every consumer of the value.
func (rw *Rewriter) notifyUsers(v *hlir.Value) {
	for _, user := range v.Users() {
		rw.enqueue(user)
	}
}

// NotifyChanged re-schedules an operation mutated in place, plus its
// consumers.
func (rw *Rewriter) NotifyChanged(op *hlir.Operation) {
	rw.enqueue(op)
	for _, output := range op.Outputs {
		rw.notifyUsers(output)
	}
}

// AddOp creates a new operation and schedules it for examination.
func (rw *Rewriter) AddOp(dialect hlir.Dialect, opType optypes.OpType, resultShapes []shapes.Shape, inputs ...*hlir.Value) (*hlir.Operation, error) {
	op, err := rw.fn.AddOp(dialect, opType, resultShapes, inputs...)
	if err != nil {
		return nil, err
	}
	rw.enqueue(op)
	return op, nil
}

// Constant creates a new constant operation and schedules its users.
func (rw *Rewriter) Constant(literal *hlir.Literal) (*hlir.Value, error) {
	v, err := rw.fn.Constant(literal)
	if err != nil {
		return nil, err
	}
	rw.enqueue(v.DefiningOp())
	return v, nil
}

// ReplaceOpWithValues rewires all uses of op's results to the replacement
// values and erases op, re-scheduling the affected consumers and the
// producers of op's former operands (they may have become dead).
func (rw *Rewriter) ReplaceOpWithValues(op *hlir.Operation, replacements ...*hlir.Value) error {
	producers := make([]*hlir.Operation, 0, len(op.Inputs))
	for _, input := range op.Inputs {
		producers = append(producers, input.DefiningOp())
	}
	if err := rw.fn.ReplaceOpWithValues(op, replacements...); err != nil {
		return err
	}
	for _, replacement := range replacements {
		rw.notifyUsers(replacement)
		rw.enqueue(replacement.DefiningOp())
	}
	for _, producer := range producers {
		rw.enqueue(producer)
	}
	return nil
}

// ReplaceOpWithNew creates a new operation and uses its results to replace
// op's. Result counts must match.
func (rw *Rewriter) ReplaceOpWithNew(op *hlir.Operation, dialect hlir.Dialect, opType optypes.OpType, resultShapes []shapes.Shape, inputs ...*hlir.Value) (*hlir.Operation, error) {
	if len(resultShapes) != len(op.Outputs) {
		return nil, errors.Errorf("cannot replace operation %s: new operation has %d results, old has %d",
			op, len(resultShapes), len(op.Outputs))
	}
	newOp, err := rw.AddOp(dialect, opType, resultShapes, inputs...)
	if err != nil {
		return nil, err
	}
	if err := rw.ReplaceOpWithValues(op, newOp.Outputs...); err != nil {
		return nil, err
	}
	return newOp, nil
}

// EraseOp erases a use-less operation, re-scheduling the producers of its
// operands.
func (rw *Rewriter) EraseOp(op *hlir.Operation) error {
	producers := make([]*hlir.Operation, 0, len(op.Inputs))
	for _, input := range op.Inputs {
		producers = append(producers, input.DefiningOp())
	}
	if err := rw.fn.EraseOp(op); err != nil {
		return err
	}
	for _, producer := range producers {
		rw.enqueue(producer)
	}
	return nil
}

// Apply runs the patterns over the function until fixed point or until the
// fuel is exhausted.
//
// Patterns are tried in descending benefit order; equal benefits keep their
// registration order, so scheduling is deterministic.
func Apply(fn *hlir.Function, patterns []Pattern, opts Options) (Result, error) {
	maxApplications := opts.MaxApplications
	if maxApplications <= 0 {
		maxApplications = DefaultMaxApplications
	}
	ranked := make([]Pattern, len(patterns))
	copy(ranked, patterns)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Benefit() > ranked[j].Benefit() })

	rw := &Rewriter{
		fn:      fn,
		inQueue: make(map[int]bool),
	}
	for _, op := range fn.Operations() {
		rw.enqueue(op)
	}

	result := Result{Applications: make(map[string]int), Converged: true}
	for len(rw.worklist) > 0 {
		id := rw.worklist[0]
		rw.worklist = rw.worklist[1:]
		rw.inQueue[id] = false
		op := fn.OpByID(id)
		if op == nil || op.IsDead() {
			continue
		}
		for _, pattern := range ranked {
			changed, err := pattern.MatchAndRewrite(rw, op)
			if err != nil {
				return result, errors.WithMessagef(err, "pattern %q on operation %s", pattern.Name(), op)
			}
			if !changed {
				continue
			}
			result.Applications[pattern.Name()]++
			result.Total++
			if result.Total >= maxApplications {
				klog.Warningf("rewrite of function %q did not converge within %d applications", fn.Name, maxApplications)
				result.Converged = false
				return result, nil
			}
			break // The op may be gone; pick the next worklist entry.
		}
	}
	if klog.V(2).Enabled() && result.Total > 0 {
		klog.Infof("rewrite of function %q applied %d patterns", fn.Name, result.Total)
	}
	return result, nil
}
