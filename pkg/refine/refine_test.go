package refine

import (
	"testing"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shapeConst(t *testing.T, fn *hlir.Function, dims ...int64) *hlir.Value {
	t.Helper()
	literal, err := hlir.NewIntLiteral(dtypes.Int32, []int{len(dims)}, dims...)
	require.NoError(t, err)
	v, err := fn.Constant(literal)
	require.NoError(t, err)
	return v
}

func TestDynamicReshapeBecomesStatic(t *testing.T) {
	// dynamic_reshape of tensor<6xf32> with constant target shape [2, 3]
	// refines to a static reshape producing tensor<2x3xf32>.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 6))
	targetShape := shapeConst(t, fn, 2, 3)
	dynReshape, err := fn.AddOp(hlir.HLO, optypes.DynamicReshape,
		[]shapes.Shape{shapes.Make(dtypes.Float32, shapes.DimUnknown, shapes.DimUnknown)},
		x, targetShape)
	require.NoError(t, err)
	_, err = fn.Return(dynReshape.Outputs[0])
	require.NoError(t, err)

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)
	require.NoError(t, fn.Verify())

	final := fn.ReturnOp().Inputs[0].DefiningOp()
	require.NotNil(t, final)
	assert.Equal(t, optypes.Reshape, final.OpType)
	assert.True(t, final.Outputs[0].Shape().Equal(shapes.Make(dtypes.Float32, 2, 3)),
		"result type is %s", final.Outputs[0].Shape())
	assert.Equal(t, x, final.Inputs[0])
	assert.Equal(t, 2, fn.NumLiveOps(), "shape constant must be cleaned up:\n%s", fn)
}

func TestDynamicSliceBecomesStatic(t *testing.T) {
	// dynamic_slice of tensor<4xf32> with constant start indices refines to a
	// static slice with the slice_sizes extents.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 4))
	starts := shapeConst(t, fn, 1)
	dynSlice, err := fn.AddOp(hlir.HLO, optypes.DynamicSlice,
		[]shapes.Shape{shapes.Make(dtypes.Float32, shapes.DimUnknown)}, x, starts)
	require.NoError(t, err)
	dynSlice.SetAttr(hlir.AttrSliceSizes, []int64{2})
	_, err = fn.Return(dynSlice.Outputs[0])
	require.NoError(t, err)

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)
	require.NoError(t, fn.Verify())

	final := fn.ReturnOp().Inputs[0].DefiningOp()
	require.NotNil(t, final)
	assert.Equal(t, optypes.Slice, final.OpType)
	assert.True(t, final.Outputs[0].Shape().Equal(shapes.Make(dtypes.Float32, 2)),
		"result type is %s", final.Outputs[0].Shape())
	startIndices, ok := final.IntSliceAttr(hlir.AttrStartIndices)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, startIndices)
	limits, ok := final.IntSliceAttr(hlir.AttrLimitIndices)
	require.True(t, ok)
	assert.Equal(t, []int64{3}, limits)
}

func TestDynamicSliceClampsStartIndices(t *testing.T) {
	// Start indices past the end clamp to dim-size, as at run time.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 4))
	starts := shapeConst(t, fn, 9)
	dynSlice, err := fn.AddOp(hlir.HLO, optypes.DynamicSlice,
		[]shapes.Shape{shapes.Make(dtypes.Float32, shapes.DimUnknown)}, x, starts)
	require.NoError(t, err)
	dynSlice.SetAttr(hlir.AttrSliceSizes, []int64{3})
	_, err = fn.Return(dynSlice.Outputs[0])
	require.NoError(t, err)

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)

	final := fn.ReturnOp().Inputs[0].DefiningOp()
	require.Equal(t, optypes.Slice, final.OpType)
	startIndices, _ := final.IntSliceAttr(hlir.AttrStartIndices)
	assert.Equal(t, []int64{1}, startIndices)
	limits, _ := final.IntSliceAttr(hlir.AttrLimitIndices)
	assert.Equal(t, []int64{4}, limits)
}

func TestArgumentRefinementPropagates(t *testing.T) {
	// Refining a tensor<?xf32> argument to tensor<4xf32> inserts a widening
	// marker; after full refinement every internal use reports tensor<4xf32>
	// and the marker is gone.
	wide := shapes.Make(dtypes.Float32, shapes.DimUnknown)
	narrow := shapes.Make(dtypes.Float32, 4)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", wide)
	neg, err := fn.AddOp(hlir.HLO, optypes.Negate, []shapes.Shape{wide}, x)
	require.NoError(t, err)
	abs, err := fn.AddOp(hlir.HLO, optypes.Abs, []shapes.Shape{wide}, neg.Outputs[0])
	require.NoError(t, err)
	_, err = fn.Return(abs.Outputs[0])
	require.NoError(t, err)

	require.NoError(t, RefineArguments(fn, []shapes.Shape{narrow}))

	// The marker keeps the body type-correct before refinement runs.
	wrapper := x.Users()[0]
	assert.Equal(t, optypes.CustomCall, wrapper.OpType)
	assert.True(t, wrapper.Outputs[0].Shape().Equal(wide))

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)
	require.NoError(t, fn.Verify())

	for _, op := range fn.Operations() {
		assert.NotEqual(t, optypes.CustomCall, op.OpType, "marker should have been removed:\n%s", fn)
		for _, output := range op.Outputs {
			assert.True(t, output.Shape().Equal(narrow), "%s still has type %s", op, output.Shape())
		}
	}
	assert.Equal(t, neg, x.Users()[0], "negate should consume the argument directly again")
}

func TestRefineArgumentsErrors(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	fn.AddArgument("x", shapes.Make(dtypes.Float32, shapes.DimUnknown))

	err := RefineArguments(fn, nil)
	require.Error(t, err, "arity mismatch is a hard error")
	assert.Contains(t, err.Error(), "1 arguments")

	err = RefineArguments(fn, []shapes.Shape{shapes.Make(dtypes.Int32, 4)})
	require.Error(t, err, "a dtype change is not a refinement")

	err = RefineArguments(fn, []shapes.Shape{shapes.Make(dtypes.Float32, 4, 4)})
	require.Error(t, err, "a rank change is not a refinement")
}

func TestIdempotenceAtFixedPoint(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 6))
	targetShape := shapeConst(t, fn, 3, 2)
	dynReshape, err := fn.AddOp(hlir.HLO, optypes.DynamicReshape,
		[]shapes.Shape{shapes.Make(dtypes.Float32, shapes.DimUnknown, shapes.DimUnknown)},
		x, targetShape)
	require.NoError(t, err)
	_, err = fn.Return(dynReshape.Outputs[0])
	require.NoError(t, err)

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	require.Equal(t, FixedPoint, state)
	rendered := fn.String()

	// Re-running on the fixed point output changes nothing.
	state, err = Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)
	assert.Equal(t, rendered, fn.String())
}

func TestBinaryShapePropagation(t *testing.T) {
	// add's result refines once both operand types are known.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	shape := shapes.Make(dtypes.Float32, 2, 3)
	x := fn.AddArgument("x", shape)
	y := fn.AddArgument("y", shape)
	add, err := fn.AddOp(hlir.HLO, optypes.Add,
		[]shapes.Shape{shapes.Make(dtypes.Float32, shapes.DimUnknown, shapes.DimUnknown)}, x, y)
	require.NoError(t, err)
	_, err = fn.Return(add.Outputs[0])
	require.NoError(t, err)

	state, err := Run(fn, Options{})
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, state)
	assert.True(t, add.Outputs[0].Shape().Equal(shape), "add result is %s", add.Outputs[0].Shape())
}

func TestContradictingTypesFail(t *testing.T) {
	// A dynamic_reshape whose constant target shape contradicts the declared
	// result type is a structural error, not a refinement.
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 6))
	targetShape := shapeConst(t, fn, 2, 3)
	dynReshape, err := fn.AddOp(hlir.HLO, optypes.DynamicReshape,
		[]shapes.Shape{shapes.Make(dtypes.Float32, 6, 1)}, x, targetShape)
	require.NoError(t, err)
	_, err = fn.Return(dynReshape.Outputs[0])
	require.NoError(t, err)

	_, err = Run(fn, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contradicts")
}

func TestStallReported(t *testing.T) {
	// One iteration of budget with work still pending reports Stalled.
	wide := shapes.Make(dtypes.Float32, shapes.DimUnknown)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", wide)
	neg, err := fn.AddOp(hlir.HLO, optypes.Negate, []shapes.Shape{wide}, x)
	require.NoError(t, err)
	_, err = fn.Return(neg.Outputs[0])
	require.NoError(t, err)
	require.NoError(t, RefineArguments(fn, []shapes.Shape{shapes.Make(dtypes.Float32, 4)}))

	state, err := Run(fn, Options{MaxIterations: 1})
	require.NoError(t, err, "stalling is a diagnostic, not an error")
	assert.Equal(t, Stalled, state)
}

func TestExtractConstantShape(t *testing.T) {
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shapes.Make(dtypes.Float32, 5, shapes.DimUnknown))

	t.Run("constant", func(t *testing.T) {
		dims, ok := ExtractConstantShape(shapeConst(t, fn, 2, 3))
		require.True(t, ok)
		assert.Equal(t, []int{2, 3}, dims)
	})

	t.Run("argument is not constant", func(t *testing.T) {
		_, ok := ExtractConstantShape(x)
		assert.False(t, ok)
	})

	t.Run("get_dimension_size of static dim", func(t *testing.T) {
		gds, err := fn.AddOp(hlir.HLO, optypes.GetDimensionSize,
			[]shapes.Shape{shapes.Make(dtypes.Int32)}, x)
		require.NoError(t, err)
		gds.SetAttr(hlir.AttrDimension, int64(0))
		dims, ok := ExtractConstantShape(gds.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{5}, dims)
	})

	t.Run("get_dimension_size of dynamic dim", func(t *testing.T) {
		gds, err := fn.AddOp(hlir.HLO, optypes.GetDimensionSize,
			[]shapes.Shape{shapes.Make(dtypes.Int32)}, x)
		require.NoError(t, err)
		gds.SetAttr(hlir.AttrDimension, int64(1))
		_, ok := ExtractConstantShape(gds.Outputs[0])
		assert.False(t, ok)
	})

	t.Run("concatenate of constants", func(t *testing.T) {
		concat, err := fn.AddOp(hlir.HLO, optypes.Concatenate,
			[]shapes.Shape{shapes.Make(dtypes.Int32, 3)},
			shapeConst(t, fn, 7), shapeConst(t, fn, 8, 9))
		require.NoError(t, err)
		concat.SetAttr(hlir.AttrDimension, int64(0))
		dims, ok := ExtractConstantShape(concat.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{7, 8, 9}, dims)
	})

	t.Run("gather from constant shape tensor", func(t *testing.T) {
		gather, err := fn.AddOp(hlir.HLO, optypes.Gather,
			[]shapes.Shape{shapes.Make(dtypes.Int32, 1)},
			shapeConst(t, fn, 7, 8, 9), shapeConst(t, fn, 1))
		require.NoError(t, err)
		dims, ok := ExtractConstantShape(gather.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{8}, dims)
	})

	t.Run("gather with out of range index", func(t *testing.T) {
		gather, err := fn.AddOp(hlir.HLO, optypes.Gather,
			[]shapes.Shape{shapes.Make(dtypes.Int32, 1)},
			shapeConst(t, fn, 7, 8, 9), shapeConst(t, fn, 5))
		require.NoError(t, err)
		_, ok := ExtractConstantShape(gather.Outputs[0])
		assert.False(t, ok)
	})

	t.Run("dynamic broadcast of scalar constant", func(t *testing.T) {
		bcast, err := fn.AddOp(hlir.HLO, optypes.DynamicBroadcastInDim,
			[]shapes.Shape{shapes.Make(dtypes.Int32, shapes.DimUnknown)},
			shapeConst(t, fn, 1), shapeConst(t, fn, 3))
		require.NoError(t, err)
		dims, ok := ExtractConstantShape(bcast.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{1, 1, 1}, dims)
	})

	t.Run("dynamic broadcast extent from result type", func(t *testing.T) {
		d := fn.AddArgument("d", shapes.Make(dtypes.Int32, 1))
		bcast, err := fn.AddOp(hlir.HLO, optypes.DynamicBroadcastInDim,
			[]shapes.Shape{shapes.Make(dtypes.Int32, 2)},
			shapeConst(t, fn, 4), d)
		require.NoError(t, err)
		dims, ok := ExtractConstantShape(bcast.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{4, 4}, dims)
	})

	t.Run("multiply of constants", func(t *testing.T) {
		mul, err := fn.AddOp(hlir.HLO, optypes.Multiply,
			[]shapes.Shape{shapes.Make(dtypes.Int32, 2)},
			shapeConst(t, fn, 2, 3), shapeConst(t, fn, 4, 5))
		require.NoError(t, err)
		dims, ok := ExtractConstantShape(mul.Outputs[0])
		require.True(t, ok)
		assert.Equal(t, []int{8, 15}, dims)
	})
}
