package vhlo

import (
	"testing"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	testCases := []struct {
		text    string
		want    Version
		wantErr bool
	}{
		{"0.9.0", Version{0, 9, 0}, false},
		{"1.2.3", Version{1, 2, 3}, false},
		{"current", Current, false},
		{"1.2", Version{}, true},
		{"v1.2.3", Version{}, true},
		{"banana", Version{}, true},
		{"", Version{}, true},
	}
	for _, tc := range testCases {
		got, err := ParseVersion(tc.text)
		if tc.wantErr {
			assert.Error(t, err, "ParseVersion(%q)", tc.text)
			continue
		}
		require.NoError(t, err, "ParseVersion(%q)", tc.text)
		assert.True(t, got.Equal(tc.want), "ParseVersion(%q) = %s", tc.text, got)
	}
}

func TestVersionCompare(t *testing.T) {
	assert.True(t, Version{0, 9, 0}.Less(Version{1, 0, 0}))
	assert.True(t, Version{1, 2, 0}.Less(Version{1, 10, 0}), "comparison is numeric, not lexical")
	assert.False(t, Current.Less(MinimumSupported))
	for _, v := range NewRegistry().Versions() {
		assert.False(t, Current.Less(v), "current must be >= every known version, got %s", v)
	}
}

func TestRegistryIntervals(t *testing.T) {
	registry := NewRegistry()

	// Plain opcodes span the whole history at revision 1.
	for _, v := range registry.Versions() {
		revision, err := registry.RevisionAt(optypes.Add, v)
		require.NoError(t, err)
		assert.Equal(t, int64(1), revision)
	}

	// Composite only exists from 1.0.0 on.
	_, err := registry.RevisionAt(optypes.Composite, Version{0, 9, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vhlo.composite")
	assert.Contains(t, err.Error(), "0.9.0")
	assert.Contains(t, err.Error(), "not expressible")

	// unary_einsum was removed in 1.1.0: downgrade-only afterwards.
	revision, err := registry.RevisionAt(optypes.UnaryEinsum, Version{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), revision)
	_, err = registry.RevisionAt(optypes.UnaryEinsum, Current)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed in version 1.1.0")

	// dynamic_broadcast_in_dim changed revision at 1.2.0.
	revision, err = registry.RevisionAt(optypes.DynamicBroadcastInDim, Version{1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), revision)
	revision, err = registry.RevisionAt(optypes.DynamicBroadcastInDim, Version{1, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(2), revision)
}

func TestRegistryNeighbors(t *testing.T) {
	registry := NewRegistry()
	next, ok := registry.Next(Version{0, 9, 0})
	require.True(t, ok)
	assert.True(t, next.Equal(Version{1, 0, 0}))
	prev, ok := registry.Prev(Current)
	require.True(t, ok)
	assert.True(t, prev.Equal(Version{1, 2, 0}))
	_, ok = registry.Next(Current)
	assert.False(t, ok)
	_, ok = registry.Prev(MinimumSupported)
	assert.False(t, ok)
}

// buildVersionedFn returns a module holding a single-op versioned function.
func buildVersionedFn(t *testing.T, opType optypes.OpType, revision int64) *hlir.Module {
	t.Helper()
	shape := shapes.Make(dtypes.Float32, 2)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shape)
	op, err := fn.AddOp(hlir.VHLO, opType, []shapes.Shape{shape}, x)
	require.NoError(t, err)
	op.SetAttr(hlir.AttrVersionRevision, revision)
	ret, err := fn.AddOp(hlir.VHLO, optypes.Return, nil, op.Outputs[0])
	require.NoError(t, err)
	ret.SetAttr(hlir.AttrVersionRevision, int64(1))
	return module
}

func TestMigrateDowngradeNotExpressible(t *testing.T) {
	// Downgrading a composite (validity [1.0.0, current]) to 0.9.0 fails
	// naming the entity and the requested version.
	shape := shapes.Make(dtypes.Float32, 2)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shape)
	op, err := fn.AddOp(hlir.VHLO, optypes.Composite, []shapes.Shape{shape}, x)
	require.NoError(t, err)
	op.SetAttr(hlir.AttrVersionRevision, int64(1))

	err = Migrate(module, Current, Version{0, 9, 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vhlo.composite")
	assert.Contains(t, err.Error(), "0.9.0")
}

func TestMigrateUpgradePastRemovalFails(t *testing.T) {
	module := buildVersionedFn(t, optypes.UnaryEinsum, 1)
	err := Migrate(module, Version{1, 0, 0}, Current, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed in version 1.1.0")
}

func TestDelegalizeToleratesRemovedOps(t *testing.T) {
	// A module decoded at 1.0.0 containing unary_einsum must still convert
	// back to the source vocabulary: the removed opcode converts directly
	// instead of migrating through its removal release.
	module := buildVersionedFn(t, optypes.UnaryEinsum, 1)
	require.NoError(t, Delegalize(module, Version{1, 0, 0}, nil))
	for _, op := range module.Main().Operations() {
		assert.Equal(t, hlir.HLO, op.Dialect, "operation %s", op)
		_, ok := op.IntAttr(hlir.AttrVersionRevision)
		assert.False(t, ok, "operation %s kept its revision stamp", op)
	}
	require.NoError(t, module.Verify())
}

func TestMigrateRoundTrip(t *testing.T) {
	registry := NewRegistry()
	// Across every adjacent version pair, upgrading then downgrading
	// reproduces the original revision of a revisioned opcode.
	for _, from := range registry.Versions() {
		to, ok := registry.Next(from)
		if !ok {
			continue
		}
		module := buildVersionedFn(t, optypes.DynamicBroadcastInDim, 0)
		op := module.Main().Operations()[0]
		original, err := registry.RevisionAt(optypes.DynamicBroadcastInDim, from)
		require.NoError(t, err)
		op.SetAttr(hlir.AttrVersionRevision, original)

		require.NoError(t, Migrate(module, from, to, registry))
		upgraded, _ := op.IntAttr(hlir.AttrVersionRevision)
		expected, err := registry.RevisionAt(optypes.DynamicBroadcastInDim, to)
		require.NoError(t, err)
		assert.Equal(t, expected, upgraded, "upgrade %s -> %s", from, to)

		require.NoError(t, Migrate(module, to, from, registry))
		downgraded, _ := op.IntAttr(hlir.AttrVersionRevision)
		assert.Equal(t, original, downgraded, "round trip %s -> %s -> %s", from, to, from)
	}
}

func TestMigrateRejectsUnknownVersion(t *testing.T) {
	module := buildVersionedFn(t, optypes.Add, 1)
	err := Migrate(module, Current, Version{2, 0, 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a known release")
}

func TestCheckDeprecated(t *testing.T) {
	module := buildVersionedFn(t, optypes.UnaryEinsum, 1)
	require.NoError(t, CheckDeprecated(module, nil, false), "non-strict mode only warns")

	err := CheckDeprecated(module, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deprecated")
	assert.Contains(t, err.Error(), "vhlo.unary_einsum")
	assert.Contains(t, err.Error(), "removed in version 1.1.0")

	clean := buildVersionedFn(t, optypes.Add, 1)
	require.NoError(t, CheckDeprecated(clean, nil, true))
}

func buildSourceFn(t *testing.T) *hlir.Module {
	t.Helper()
	shape := shapes.Make(dtypes.Float32, 2)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shape)
	y := fn.AddArgument("y", shape)
	add, err := fn.AddOp(hlir.HLO, optypes.Add, []shapes.Shape{shape}, x, y)
	require.NoError(t, err)
	_, err = fn.Return(add.Outputs[0])
	require.NoError(t, err)
	return module
}

func TestLegalizeAndDelegalize(t *testing.T) {
	module := buildSourceFn(t)
	target := Version{1, 0, 0}
	require.NoError(t, Legalize(module, target, nil))

	// Conversion totality: only versioned operations remain, each stamped
	// with the revision legal at the target version.
	registry := NewRegistry()
	for _, op := range module.Main().Operations() {
		assert.Equal(t, hlir.VHLO, op.Dialect, "operation %s", op)
		revision, ok := op.IntAttr(hlir.AttrVersionRevision)
		require.True(t, ok, "operation %s carries no revision", op)
		expected, err := registry.RevisionAt(op.OpType, target)
		require.NoError(t, err)
		assert.Equal(t, expected, revision, "operation %s", op)
	}

	require.NoError(t, Delegalize(module, target, nil))
	for _, op := range module.Main().Operations() {
		assert.Equal(t, hlir.HLO, op.Dialect, "operation %s", op)
		_, ok := op.IntAttr(hlir.AttrVersionRevision)
		assert.False(t, ok, "operation %s kept its revision stamp", op)
	}
	require.NoError(t, module.Verify())
}

func TestLegalizeRejectsUnknownVersion(t *testing.T) {
	module := buildSourceFn(t)
	err := Legalize(module, Version{3, 0, 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a known release")
}
