package vwire

import (
	"testing"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/dtypes"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/gohlo/hlir/pkg/vhlo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// buildVersionedModule returns a legalized module exercising operands,
// results, attributes and literals.
func buildVersionedModule(t *testing.T) *hlir.Module {
	t.Helper()
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	// Argument names are not part of the encoding, so use the default ones
	// to keep the textual forms comparable.
	x := fn.AddArgument("", shapes.Make(dtypes.Float32, 4))

	literal, err := hlir.NewIntLiteral(dtypes.Int32, []int{2}, 2, 2)
	require.NoError(t, err)
	shapeConst, err := fn.Constant(literal)
	require.NoError(t, err)
	shapeConst.DefiningOp().Dialect = hlir.VHLO
	shapeConst.DefiningOp().SetAttr(hlir.AttrVersionRevision, int64(1))

	slice, err := fn.AddOp(hlir.VHLO, optypes.Slice, []shapes.Shape{shapes.Make(dtypes.Float32, 2)}, x)
	require.NoError(t, err)
	slice.SetAttr(hlir.AttrVersionRevision, int64(1))
	slice.SetAttr(hlir.AttrStartIndices, []int64{0})
	slice.SetAttr(hlir.AttrLimitIndices, []int64{2})
	slice.SetAttr(hlir.AttrStrides, []int64{1})

	ret, err := fn.AddOp(hlir.VHLO, optypes.Return, nil, slice.Outputs[0])
	require.NoError(t, err)
	ret.SetAttr(hlir.AttrVersionRevision, int64(1))
	return module
}

func TestRoundTrip(t *testing.T) {
	module := buildVersionedModule(t)
	version := vhlo.Version{Major: 1, Minor: 2, Patch: 0}

	encoded, err := Encode(module, version, nil)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, decodedVersion, err := Decode(encoded, nil)
	require.NoError(t, err)
	assert.True(t, decodedVersion.Equal(version))
	require.NoError(t, decoded.Verify())

	// The textual rendering is a convenient structural fingerprint.
	assert.Equal(t, module.String(), decoded.String())
}

func TestEncodeChecksExpressibility(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shape)
	op, err := fn.AddOp(hlir.VHLO, optypes.Composite, []shapes.Shape{shape}, x)
	require.NoError(t, err)
	op.SetAttr(hlir.AttrVersionRevision, int64(1))

	_, err = Encode(module, vhlo.Version{Major: 0, Minor: 9, Patch: 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vhlo.composite")
	assert.Contains(t, err.Error(), "0.9.0")
}

func TestEncodeRejectsSourceDialect(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2)
	module := hlir.NewModule()
	fn := module.NewFunction("main", true)
	x := fn.AddArgument("x", shape)
	_, err := fn.AddOp(hlir.HLO, optypes.Negate, []shapes.Shape{shape}, x)
	require.NoError(t, err)

	_, err = Encode(module, vhlo.Current, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the versioned vocabulary")
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldMagic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 0xdeadbeef)
	_, _, err := Decode(buf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestDecodeRejectsNewerEmissionVersion(t *testing.T) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldMagic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, Magic)
	buf = protowire.AppendTag(buf, fieldVersion, protowire.BytesType)
	buf = protowire.AppendString(buf, "9.0.0")
	_, _, err := Decode(buf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this reader")
}

func TestDecodeRejectsNewerEntity(t *testing.T) {
	// Hand-build a record claiming an add that needs a future version.
	var op []byte
	op = protowire.AppendTag(op, fieldOpName, protowire.BytesType)
	op = protowire.AppendString(op, "add")
	op = protowire.AppendTag(op, fieldOpRevision, protowire.VarintType)
	op = protowire.AppendVarint(op, 7)
	op = protowire.AppendTag(op, fieldOpMinVersion, protowire.BytesType)
	op = protowire.AppendString(op, "9.1.0")

	var fnRecord []byte
	fnRecord = protowire.AppendTag(fnRecord, fieldFnName, protowire.BytesType)
	fnRecord = protowire.AppendString(fnRecord, "main")
	fnRecord = protowire.AppendTag(fnRecord, fieldFnOp, protowire.BytesType)
	fnRecord = protowire.AppendBytes(fnRecord, op)

	var buf []byte
	buf = protowire.AppendTag(buf, fieldMagic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, Magic)
	buf = protowire.AppendTag(buf, fieldVersion, protowire.BytesType)
	buf = protowire.AppendString(buf, vhlo.Current.String())
	buf = protowire.AppendTag(buf, fieldFunction, protowire.BytesType)
	buf = protowire.AppendBytes(buf, fnRecord)

	_, _, err := Decode(buf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires version 9.1.0")
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	var op []byte
	op = protowire.AppendTag(op, fieldOpName, protowire.BytesType)
	op = protowire.AppendString(op, "quantum_entangle")

	var fnRecord []byte
	fnRecord = protowire.AppendTag(fnRecord, fieldFnName, protowire.BytesType)
	fnRecord = protowire.AppendString(fnRecord, "main")
	fnRecord = protowire.AppendTag(fnRecord, fieldFnOp, protowire.BytesType)
	fnRecord = protowire.AppendBytes(fnRecord, op)

	var buf []byte
	buf = protowire.AppendTag(buf, fieldMagic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, Magic)
	buf = protowire.AppendTag(buf, fieldFunction, protowire.BytesType)
	buf = protowire.AppendBytes(buf, fnRecord)

	_, _, err := Decode(buf, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown opcode")
}

func TestDecodeRejectsTruncated(t *testing.T) {
	module := buildVersionedModule(t)
	encoded, err := Encode(module, vhlo.Current, nil)
	require.NoError(t, err)
	_, _, err = Decode(encoded[:len(encoded)-3], nil)
	require.Error(t, err)
}
