package canon

import (
	"testing"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// returnedLiteral runs canonicalization and returns the literal feeding the
// return, or nil if the returned value is not a constant.
func returnedLiteral(t *testing.T, fn *hlir.Function, opts Options) *hlir.Literal {
	t.Helper()
	_, err := Apply(fn, opts)
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	ret := fn.ReturnOp()
	require.NotNil(t, ret)
	require.Len(t, ret.Inputs, 1)
	producer := ret.Inputs[0].DefiningOp()
	if producer == nil {
		return nil
	}
	return producer.IsConstant()
}

func intConst(t *testing.T, fn *hlir.Function, value int64) *hlir.Value {
	t.Helper()
	literal, err := hlir.NewScalarLiteral(dtypes.Int32, value)
	require.NoError(t, err)
	v, err := fn.Constant(literal)
	require.NoError(t, err)
	return v
}

func floatConst(t *testing.T, fn *hlir.Function, value float64) *hlir.Value {
	t.Helper()
	literal, err := hlir.NewScalarLiteral(dtypes.Float32, value)
	require.NoError(t, err)
	v, err := fn.Constant(literal)
	require.NoError(t, err)
	return v
}

func TestFoldIntAdd(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	scalar := shapes.Make(dtypes.Int32)
	add, err := fn.AddOp(hlir.HLO, optypes.Add, []shapes.Shape{scalar},
		intConst(t, fn, 2), intConst(t, fn, 3))
	require.NoError(t, err)
	_, err = fn.Return(add.Outputs[0])
	require.NoError(t, err)

	literal := returnedLiteral(t, fn, Options{})
	require.NotNil(t, literal, "add of integer constants must fold")
	v, ok := literal.ScalarInt()
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, 2, fn.NumLiveOps(), "folded constant + return:\n%s", fn)
}

func TestFoldFloatAddGated(t *testing.T) {
	build := func() *hlir.Function {
		module := hlir.NewModule()
		fn := module.NewFunction("main", true)
		scalar := shapes.Make(dtypes.Float32)
		add, err := fn.AddOp(hlir.HLO, optypes.Add, []shapes.Shape{scalar},
			floatConst(t, fn, 2), floatConst(t, fn, 3))
		require.NoError(t, err)
		_, err = fn.Return(add.Outputs[0])
		require.NoError(t, err)
		return fn
	}

	// Disabled: the float add stays unfolded.
	assert.Nil(t, returnedLiteral(t, build(), Options{}))

	// Enabled: add(const 2.0, const 3.0) folds to const 5.0.
	literal := returnedLiteral(t, build(), Options{AllowFloatFolding: true})
	require.NotNil(t, literal)
	require.Len(t, literal.Floats, 1)
	assert.Equal(t, 5.0, literal.Floats[0])
}

func TestFloatNegateFoldsWithoutFlag(t *testing.T) {
	// Sign-flip is exact in IEEE arithmetic, so it is never gated.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	scalar := shapes.Make(dtypes.Float32)
	neg, err := fn.AddOp(hlir.HLO, optypes.Negate, []shapes.Shape{scalar}, floatConst(t, fn, 2.5))
	require.NoError(t, err)
	_, err = fn.Return(neg.Outputs[0])
	require.NoError(t, err)

	literal := returnedLiteral(t, fn, Options{})
	require.NotNil(t, literal)
	require.Len(t, literal.Floats, 1)
	assert.Equal(t, -2.5, literal.Floats[0])
}

func TestDivisionByZeroNotFolded(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	scalar := shapes.Make(dtypes.Int32)
	div, err := fn.AddOp(hlir.HLO, optypes.Divide, []shapes.Shape{scalar},
		intConst(t, fn, 7), intConst(t, fn, 0))
	require.NoError(t, err)
	_, err = fn.Return(div.Outputs[0])
	require.NoError(t, err)

	assert.Nil(t, returnedLiteral(t, fn, Options{}), "integer division by zero must not fold")
}

func TestDropIdentityReshape(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	shape := shapes.Make(dtypes.Float32, 2, 3)
	x := fn.AddArgument("x", shape)
	reshape, err := fn.AddOp(hlir.HLO, optypes.Reshape, []shapes.Shape{shape}, x)
	require.NoError(t, err)
	_, err = fn.Return(reshape.Outputs[0])
	require.NoError(t, err)

	_, err = Apply(fn, Options{})
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	assert.Equal(t, 1, fn.NumLiveOps())
	assert.Equal(t, x, fn.ReturnOp().Inputs[0])
}

func TestCollapseReshapeChain(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 6))
	r1, err := fn.AddOp(hlir.HLO, optypes.Reshape, []shapes.Shape{shapes.Make(dtypes.Float32, 2, 3)}, x)
	require.NoError(t, err)
	r2, err := fn.AddOp(hlir.HLO, optypes.Reshape, []shapes.Shape{shapes.Make(dtypes.Float32, 3, 2)}, r1.Outputs[0])
	require.NoError(t, err)
	_, err = fn.Return(r2.Outputs[0])
	require.NoError(t, err)

	_, err = Apply(fn, Options{})
	require.NoError(t, err)
	require.NoError(t, fn.Verify())

	// One reshape directly from x remains.
	require.Equal(t, 2, fn.NumLiveOps(), "%s", fn)
	final := fn.ReturnOp().Inputs[0].DefiningOp()
	require.NotNil(t, final)
	assert.Equal(t, optypes.Reshape, final.OpType)
	assert.Equal(t, x, final.Inputs[0])
	assert.True(t, final.Outputs[0].Shape().Equal(shapes.Make(dtypes.Float32, 3, 2)))
}

func TestDropAddZero(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	shape := shapes.Make(dtypes.Int32, 3)
	x := fn.AddArgument("x", shape)
	zero, err := hlir.NewIntLiteral(dtypes.Int32, []int{3}, 0, 0, 0)
	require.NoError(t, err)
	zeroValue, err := fn.Constant(zero)
	require.NoError(t, err)
	add, err := fn.AddOp(hlir.HLO, optypes.Add, []shapes.Shape{shape}, x, zeroValue)
	require.NoError(t, err)
	_, err = fn.Return(add.Outputs[0])
	require.NoError(t, err)

	_, err = Apply(fn, Options{})
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	assert.Equal(t, 1, fn.NumLiveOps(), "add of splat zero and the dead constant must go:\n%s", fn)
	assert.Equal(t, x, fn.ReturnOp().Inputs[0])
}

func TestFoldSelectOfConstantPredicate(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	shape := shapes.Make(dtypes.Float32, 2)
	x := fn.AddArgument("x", shape)
	y := fn.AddArgument("y", shape)
	predicate, err := hlir.NewScalarLiteral(dtypes.Bool, true)
	require.NoError(t, err)
	predValue, err := fn.Constant(predicate)
	require.NoError(t, err)
	sel, err := fn.AddOp(hlir.HLO, optypes.Select, []shapes.Shape{shape}, predValue, x, y)
	require.NoError(t, err)
	_, err = fn.Return(sel.Outputs[0])
	require.NoError(t, err)

	_, err = Apply(fn, Options{})
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	assert.Equal(t, x, fn.ReturnOp().Inputs[0], "true predicate selects the first branch")
}

func TestFoldCompare(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	cmp, err := fn.AddOp(hlir.HLO, optypes.Compare, []shapes.Shape{shapes.Make(dtypes.Bool)},
		intConst(t, fn, 2), intConst(t, fn, 3))
	require.NoError(t, err)
	cmp.SetAttr(hlir.AttrComparisonDirection, "LT")
	_, err = fn.Return(cmp.Outputs[0])
	require.NoError(t, err)

	literal := returnedLiteral(t, fn, Options{})
	require.NotNil(t, literal)
	v, ok := literal.ScalarInt()
	require.True(t, ok)
	assert.Equal(t, int64(1), v, "2 < 3")
}

func TestIdempotence(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	scalar := shapes.Make(dtypes.Int32)
	add, err := fn.AddOp(hlir.HLO, optypes.Add, []shapes.Shape{scalar},
		intConst(t, fn, 2), intConst(t, fn, 3))
	require.NoError(t, err)
	mul, err := fn.AddOp(hlir.HLO, optypes.Multiply, []shapes.Shape{scalar},
		add.Outputs[0], intConst(t, fn, 4))
	require.NoError(t, err)
	_, err = fn.Return(mul.Outputs[0])
	require.NoError(t, err)

	first, err := Apply(fn, Options{})
	require.NoError(t, err)
	assert.True(t, first.Changed())
	rendered := fn.String()

	second, err := Apply(fn, Options{})
	require.NoError(t, err)
	assert.False(t, second.Changed(), "canonicalization must be idempotent at fixed point")
	assert.Equal(t, rendered, fn.String())
}
