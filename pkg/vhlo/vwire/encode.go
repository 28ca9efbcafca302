// Package vwire implements the serialized form of the versioned vocabulary.
//
// The encoding is a protobuf wire-format message built field by field, with
// no generated descriptors. It is self-describing with respect to versioning:
// the header records the emission version, and every operation record carries
// the minimum format version required to decode it, so a reader built against
// an older version table rejects encodings containing entities newer than
// itself instead of silently corrupting them.
package vwire

import (
	"math"

	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/vhlo"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Magic identifies the format. It is the first field of every encoding.
const Magic = 0x56484c30 // "VHL0"

// Top-level message fields.
const (
	fieldMagic    = 1 // varint
	fieldVersion  = 2 // bytes, "MAJOR.MINOR.PATCH"
	fieldFunction = 3 // bytes, repeated function records
)

// Function record fields.
const (
	fieldFnName     = 1 // bytes
	fieldFnPublic   = 2 // varint bool
	fieldFnArgument = 3 // bytes, repeated type strings
	fieldFnOp       = 4 // bytes, repeated operation records
)

// Operation record fields.
const (
	fieldOpName       = 1 // bytes, opcode name in the versioned vocabulary
	fieldOpRevision   = 2 // varint
	fieldOpMinVersion = 3 // bytes, minimum version able to decode this record
	fieldOpOperand    = 4 // varint, repeated value ids
	fieldOpResult     = 5 // bytes, repeated type strings
	fieldOpAttr       = 6 // bytes, repeated attribute records
)

// Attribute record fields.
const (
	fieldAttrName    = 1 // bytes
	fieldAttrKind    = 2 // varint, one of the attrKind values
	fieldAttrPayload = 3 // bytes
)

// Attribute payload kinds.
const (
	attrKindInt     = 1 // zigzag varint
	attrKindFloat   = 2 // fixed64 bits
	attrKindBool    = 3 // varint
	attrKindString  = 4 // raw bytes
	attrKindInts    = 5 // packed zigzag varints
	attrKindFloats  = 6 // packed fixed64 bits
	attrKindLiteral = 7 // nested literal record
)

// Literal record fields.
const (
	fieldLiteralShape  = 1 // bytes, type string
	fieldLiteralInts   = 2 // bytes, packed zigzag varints
	fieldLiteralFloats = 3 // bytes, packed fixed64 bits
)

// Encode serializes a module already legalized into the versioned vocabulary
// at the given version. Every operation's expressibility at that version is
// checked before emission.
func Encode(module *hlir.Module, version vhlo.Version, registry *vhlo.Registry) ([]byte, error) {
	if registry == nil {
		registry = vhlo.NewRegistry()
	}
	if err := vhlo.CheckExpressible(module, version, registry); err != nil {
		return nil, errors.WithMessagef(err, "encoding at version %s", version)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, fieldMagic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, Magic)
	buf = protowire.AppendTag(buf, fieldVersion, protowire.BytesType)
	buf = protowire.AppendString(buf, version.String())
	for _, fn := range module.Functions {
		record, err := encodeFunction(fn, version, registry)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, fieldFunction, protowire.BytesType)
		buf = protowire.AppendBytes(buf, record)
	}
	return buf, nil
}

func encodeFunction(fn *hlir.Function, version vhlo.Version, registry *vhlo.Registry) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldFnName, protowire.BytesType)
	buf = protowire.AppendString(buf, fn.Name)
	buf = protowire.AppendTag(buf, fieldFnPublic, protowire.VarintType)
	buf = protowire.AppendVarint(buf, boolBit(fn.IsPublic))

	// Value ids are positional: arguments first, then operation results in
	// producer-before-consumer order.
	ids := make(map[*hlir.Value]uint64)
	for _, arg := range fn.Inputs {
		ids[arg] = uint64(len(ids))
		buf = protowire.AppendTag(buf, fieldFnArgument, protowire.BytesType)
		buf = protowire.AppendString(buf, arg.Shape().ToHLO())
	}
	for _, op := range fn.TopologicalOrder() {
		record, err := encodeOp(fn, op, ids, registry)
		if err != nil {
			return nil, errors.WithMessagef(err, "function %q", fn.Name)
		}
		buf = protowire.AppendTag(buf, fieldFnOp, protowire.BytesType)
		buf = protowire.AppendBytes(buf, record)
	}
	return buf, nil
}

func encodeOp(fn *hlir.Function, op *hlir.Operation, ids map[*hlir.Value]uint64, registry *vhlo.Registry) ([]byte, error) {
	if op.Dialect != hlir.VHLO {
		return nil, errors.Errorf("operation %s is not in the versioned vocabulary", op)
	}
	revision, ok := op.IntAttr(hlir.AttrVersionRevision)
	if !ok {
		return nil, errors.Errorf("operation %s carries no revision", op)
	}
	minVersion, err := registry.MinVersion(op.OpType, revision)
	if err != nil {
		return nil, errors.WithMessagef(err, "operation %s", op)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, fieldOpName, protowire.BytesType)
	buf = protowire.AppendString(buf, op.OpType.HLOName())
	buf = protowire.AppendTag(buf, fieldOpRevision, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(revision))
	buf = protowire.AppendTag(buf, fieldOpMinVersion, protowire.BytesType)
	buf = protowire.AppendString(buf, minVersion.String())
	for _, input := range op.Inputs {
		id, ok := ids[input]
		if !ok {
			return nil, errors.Errorf("operand %s of operation %s has no id: graph is not in topological order", input, op)
		}
		buf = protowire.AppendTag(buf, fieldOpOperand, protowire.VarintType)
		buf = protowire.AppendVarint(buf, id)
	}
	for _, output := range op.Outputs {
		ids[output] = uint64(len(ids))
		buf = protowire.AppendTag(buf, fieldOpResult, protowire.BytesType)
		buf = protowire.AppendString(buf, output.Shape().ToHLO())
	}
	for _, name := range op.AttrNames() {
		if name == hlir.AttrVersionRevision {
			continue // Already part of the record.
		}
		record, err := encodeAttr(name, op.Attributes[name])
		if err != nil {
			return nil, errors.WithMessagef(err, "operation %s", op)
		}
		buf = protowire.AppendTag(buf, fieldOpAttr, protowire.BytesType)
		buf = protowire.AppendBytes(buf, record)
	}
	return buf, nil
}

func encodeAttr(name string, value any) ([]byte, error) {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldAttrName, protowire.BytesType)
	buf = protowire.AppendString(buf, name)

	var kind uint64
	var payload []byte
	switch v := value.(type) {
	case int64:
		kind = attrKindInt
		payload = protowire.AppendVarint(nil, protowire.EncodeZigZag(v))
	case float64:
		kind = attrKindFloat
		payload = protowire.AppendFixed64(nil, math.Float64bits(v))
	case bool:
		kind = attrKindBool
		payload = protowire.AppendVarint(nil, boolBit(v))
	case string:
		kind = attrKindString
		payload = []byte(v)
	case []int64:
		kind = attrKindInts
		payload = appendPackedInts(nil, v)
	case []float64:
		kind = attrKindFloats
		payload = appendPackedFloats(nil, v)
	case *hlir.Literal:
		kind = attrKindLiteral
		payload = encodeLiteral(v)
	default:
		return nil, errors.Errorf("attribute %q has unsupported type %T", name, value)
	}
	buf = protowire.AppendTag(buf, fieldAttrKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, kind)
	buf = protowire.AppendTag(buf, fieldAttrPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf, nil
}

func encodeLiteral(literal *hlir.Literal) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldLiteralShape, protowire.BytesType)
	buf = protowire.AppendString(buf, literal.Shape.ToHLO())
	if len(literal.Ints) > 0 {
		buf = protowire.AppendTag(buf, fieldLiteralInts, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendPackedInts(nil, literal.Ints))
	}
	if len(literal.Floats) > 0 {
		buf = protowire.AppendTag(buf, fieldLiteralFloats, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendPackedFloats(nil, literal.Floats))
	}
	return buf
}

func appendPackedInts(buf []byte, values []int64) []byte {
	for _, v := range values {
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(v))
	}
	return buf
}

func appendPackedFloats(buf []byte, values []float64) []byte {
	for _, v := range values {
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	}
	return buf
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
