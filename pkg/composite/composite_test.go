package composite

import (
	"testing"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/internal/utils"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var f32x2 = shapes.Make(dtypes.Float32, 2)

// buildModule returns a module with main calling a composite "foo.bar" whose
// decomposition is @foo_bar_impl. resultShape lets tests introduce a
// signature mismatch.
func buildModule(t *testing.T, resultShape shapes.Shape) (*hlir.Module, *hlir.Operation) {
	t.Helper()
	module := hlir.NewModule()

	impl := module.NewFunction("foo_bar_impl", false)
	a := impl.AddArgument("a", f32x2)
	neg, err := impl.AddOp(hlir.HLO, optypes.Negate, []shapes.Shape{f32x2}, a)
	require.NoError(t, err)
	_, err = impl.Return(neg.Outputs[0])
	require.NoError(t, err)

	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", f32x2)
	comp, err := fn.AddOp(hlir.HLO, optypes.Composite, []shapes.Shape{resultShape}, x)
	require.NoError(t, err)
	comp.SetAttr(hlir.AttrCompositeName, "foo.bar")
	comp.SetAttr(hlir.AttrDecomposition, "foo_bar_impl")
	_, err = fn.Return(comp.Outputs[0])
	require.NoError(t, err)
	return module, comp
}

func TestDecompose(t *testing.T) {
	module, comp := buildModule(t, f32x2)
	require.NoError(t, Decompose(module, Options{}))
	require.NoError(t, module.Verify())
	assert.True(t, comp.IsDead())

	call := module.Main().ReturnOp().Inputs[0].DefiningOp()
	require.NotNil(t, call)
	assert.Equal(t, optypes.Call, call.OpType)
	callee, ok := call.StrAttr(hlir.AttrCallee)
	require.True(t, ok)
	assert.Equal(t, "foo_bar_impl", callee)

	// Operands pass through positionally; result types match exactly.
	require.Len(t, call.Inputs, 1)
	assert.Equal(t, module.Main().Inputs[0], call.Inputs[0])
	require.Len(t, call.Outputs, 1)
	assert.True(t, call.Outputs[0].Shape().Equal(f32x2))
}

func TestDecomposeHonorsExclusions(t *testing.T) {
	module, comp := buildModule(t, f32x2)
	opts := Options{Exclude: utils.SetWith("foo.bar")}
	require.NoError(t, Decompose(module, opts))
	assert.False(t, comp.IsDead(), "excluded composite must be left unmodified")
	assert.Equal(t, optypes.Composite, comp.OpType)
}

func TestDecomposeSignatureMismatch(t *testing.T) {
	module, _ := buildModule(t, shapes.Make(dtypes.Float32, 3))
	err := Decompose(module, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decomposition signature mismatch")
	assert.Contains(t, err.Error(), "foo.bar")
}

func TestDecomposeMissingFunction(t *testing.T) {
	module, comp := buildModule(t, f32x2)
	comp.SetAttr(hlir.AttrDecomposition, "nowhere")
	err := Decompose(module, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "@nowhere")
}

func TestDecomposeMissingDecomposition(t *testing.T) {
	module, comp := buildModule(t, f32x2)
	comp.ClearAttr(hlir.AttrDecomposition)
	err := Decompose(module, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no decomposition")
}

func TestParseExclusions(t *testing.T) {
	exclude := ParseExclusions("foo.bar, baz.qux,,")
	assert.True(t, exclude.Has("foo.bar"))
	assert.True(t, exclude.Has("baz.qux"))
	assert.Len(t, exclude, 2)

	assert.Empty(t, ParseExclusions(""))
}
