package vwire

import (
	"math"

	"github.com/gohlo/hlir/internal/optypes"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/gohlo/hlir/pkg/vhlo"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Decode deserializes an encoding produced by Encode, returning the module
// and the version it was emitted at.
//
// A record whose minimum decode version is newer than the registry's current
// version is rejected: a reader must fail loudly on entities it postdates
// rather than guess at their meaning.
func Decode(data []byte, registry *vhlo.Registry) (*hlir.Module, vhlo.Version, error) {
	if registry == nil {
		registry = vhlo.NewRegistry()
	}
	module := hlir.NewModule()
	var version vhlo.Version
	sawMagic := false

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, version, errors.Wrap(protowire.ParseError(n), "malformed encoding")
		}
		data = data[n:]
		switch num {
		case fieldMagic:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, version, errors.Wrap(protowire.ParseError(n), "malformed magic")
			}
			data = data[n:]
			if v != Magic {
				return nil, version, errors.Errorf("bad magic %#x: not a versioned module encoding", v)
			}
			sawMagic = true
		case fieldVersion:
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, version, errors.Wrap(protowire.ParseError(n), "malformed version")
			}
			data = data[n:]
			var err error
			version, err = vhlo.ParseVersion(text)
			if err != nil {
				return nil, version, err
			}
			if vhlo.Current.Less(version) {
				return nil, version, errors.Errorf("encoding was emitted at version %s, newer than this reader's current version %s",
					version, vhlo.Current)
			}
		case fieldFunction:
			record, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, version, errors.Wrap(protowire.ParseError(n), "malformed function record")
			}
			data = data[n:]
			if !sawMagic {
				return nil, version, errors.New("function record before magic: not a versioned module encoding")
			}
			if err := decodeFunction(module, record, registry); err != nil {
				return nil, version, err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, version, errors.Wrap(protowire.ParseError(n), "malformed encoding")
			}
			data = data[n:]
		}
	}
	if !sawMagic {
		return nil, version, errors.New("missing magic: not a versioned module encoding")
	}
	return module, version, nil
}

func decodeFunction(module *hlir.Module, data []byte, registry *vhlo.Registry) error {
	// First pass picks up the name so later errors can reference it.
	var fn *hlir.Function
	var values []*hlir.Value

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "malformed function record")
		}
		data = data[n:]
		switch num {
		case fieldFnName:
			name, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed function name")
			}
			data = data[n:]
			fn = module.NewFunction(name, false)
		case fieldFnPublic:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed function visibility")
			}
			data = data[n:]
			if fn == nil {
				return errors.New("function record with visibility before name")
			}
			fn.IsPublic = v != 0
		case fieldFnArgument:
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed argument type")
			}
			data = data[n:]
			if fn == nil {
				return errors.New("function record with argument before name")
			}
			shape, err := shapes.Parse(text)
			if err != nil {
				return errors.WithMessagef(err, "argument type of function %q", fn.Name)
			}
			values = append(values, fn.AddArgument("", shape))
		case fieldFnOp:
			record, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed operation record")
			}
			data = data[n:]
			if fn == nil {
				return errors.New("function record with operation before name")
			}
			newValues, err := decodeOp(fn, record, values, registry)
			if err != nil {
				return errors.WithMessagef(err, "function %q", fn.Name)
			}
			values = append(values, newValues...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed function record")
			}
			data = data[n:]
		}
	}
	if fn == nil {
		return errors.New("function record without a name")
	}
	return nil
}

func decodeOp(fn *hlir.Function, data []byte, values []*hlir.Value, registry *vhlo.Registry) ([]*hlir.Value, error) {
	opType := optypes.Invalid
	var revision int64
	var minVersion vhlo.Version
	sawMinVersion := false
	var inputs []*hlir.Value
	var resultShapes []shapes.Shape
	var attrRecords [][]byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "malformed operation record")
		}
		data = data[n:]
		switch num {
		case fieldOpName:
			name, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed opcode name")
			}
			data = data[n:]
			opType = optypes.FromHLOName(name)
			if opType == optypes.Invalid {
				return nil, errors.Errorf("unknown opcode %q: encoding is newer than this reader's vocabulary", name)
			}
		case fieldOpRevision:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed revision")
			}
			data = data[n:]
			revision = int64(v)
		case fieldOpMinVersion:
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed minimum version")
			}
			data = data[n:]
			var err error
			minVersion, err = vhlo.ParseVersion(text)
			if err != nil {
				return nil, err
			}
			sawMinVersion = true
		case fieldOpOperand:
			id, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed operand id")
			}
			data = data[n:]
			if id >= uint64(len(values)) {
				return nil, errors.Errorf("operand id %d out of range (have %d values)", id, len(values))
			}
			inputs = append(inputs, values[id])
		case fieldOpResult:
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed result type")
			}
			data = data[n:]
			shape, err := shapes.Parse(text)
			if err != nil {
				return nil, errors.WithMessage(err, "result type")
			}
			resultShapes = append(resultShapes, shape)
		case fieldOpAttr:
			record, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed attribute record")
			}
			data = data[n:]
			attrRecords = append(attrRecords, record)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed operation record")
			}
			data = data[n:]
		}
	}

	if opType == optypes.Invalid {
		return nil, errors.New("operation record without an opcode")
	}
	if !sawMinVersion {
		return nil, errors.Errorf("operation record for %s carries no minimum decode version", opType)
	}
	if vhlo.Current.Less(minVersion) {
		return nil, errors.Errorf("entity %s_v%d requires version %s, newer than this reader's current version %s",
			opType.HLOName(), revision, minVersion, vhlo.Current)
	}
	if _, ok := registry.Interval(opType, revision); !ok {
		return nil, errors.Errorf("unknown revision %d of opcode %s: encoding is newer than this reader's version table",
			revision, opType)
	}

	op, err := fn.AddOp(hlir.VHLO, opType, resultShapes, inputs...)
	if err != nil {
		return nil, err
	}
	op.SetAttr(hlir.AttrVersionRevision, revision)
	for _, record := range attrRecords {
		if err := decodeAttr(op, record); err != nil {
			return nil, errors.WithMessagef(err, "operation %s", op)
		}
	}
	return op.Outputs, nil
}

func decodeAttr(op *hlir.Operation, data []byte) error {
	var name string
	var kind uint64
	var payload []byte
	sawPayload := false

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "malformed attribute record")
		}
		data = data[n:]
		switch num {
		case fieldAttrName:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed attribute name")
			}
			data = data[n:]
			name = v
		case fieldAttrKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed attribute kind")
			}
			data = data[n:]
			kind = v
		case fieldAttrPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed attribute payload")
			}
			data = data[n:]
			payload = v
			sawPayload = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.Wrap(protowire.ParseError(n), "malformed attribute record")
			}
			data = data[n:]
		}
	}
	if name == "" || !sawPayload {
		return errors.New("attribute record missing name or payload")
	}

	switch kind {
	case attrKindInt:
		v, n := protowire.ConsumeVarint(payload)
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "attribute %q", name)
		}
		op.SetAttr(name, protowire.DecodeZigZag(v))
	case attrKindFloat:
		v, n := protowire.ConsumeFixed64(payload)
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "attribute %q", name)
		}
		op.SetAttr(name, math.Float64frombits(v))
	case attrKindBool:
		v, n := protowire.ConsumeVarint(payload)
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "attribute %q", name)
		}
		op.SetAttr(name, v != 0)
	case attrKindString:
		op.SetAttr(name, string(payload))
	case attrKindInts:
		values, err := consumePackedInts(payload)
		if err != nil {
			return errors.WithMessagef(err, "attribute %q", name)
		}
		op.SetAttr(name, values)
	case attrKindFloats:
		values, err := consumePackedFloats(payload)
		if err != nil {
			return errors.WithMessagef(err, "attribute %q", name)
		}
		op.SetAttr(name, values)
	case attrKindLiteral:
		literal, err := decodeLiteral(payload)
		if err != nil {
			return errors.WithMessagef(err, "attribute %q", name)
		}
		op.SetAttr(name, literal)
	default:
		return errors.Errorf("attribute %q has unknown kind %d: encoding is newer than this reader", name, kind)
	}
	return nil
}

func decodeLiteral(data []byte) (*hlir.Literal, error) {
	literal := &hlir.Literal{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "malformed literal record")
		}
		data = data[n:]
		switch num {
		case fieldLiteralShape:
			text, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed literal shape")
			}
			data = data[n:]
			shape, err := shapes.Parse(text)
			if err != nil {
				return nil, errors.WithMessage(err, "literal shape")
			}
			literal.Shape = shape
		case fieldLiteralInts:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed literal ints")
			}
			data = data[n:]
			values, err := consumePackedInts(payload)
			if err != nil {
				return nil, err
			}
			literal.Ints = values
		case fieldLiteralFloats:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed literal floats")
			}
			data = data[n:]
			values, err := consumePackedFloats(payload)
			if err != nil {
				return nil, err
			}
			literal.Floats = values
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "malformed literal record")
			}
			data = data[n:]
		}
	}
	if !literal.Shape.Ok() {
		return nil, errors.New("literal record without a shape")
	}
	return literal, nil
}

func consumePackedInts(payload []byte) ([]int64, error) {
	var values []int64
	for len(payload) > 0 {
		v, n := protowire.ConsumeVarint(payload)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "malformed packed ints")
		}
		payload = payload[n:]
		values = append(values, protowire.DecodeZigZag(v))
	}
	return values, nil
}

func consumePackedFloats(payload []byte) ([]float64, error) {
	var values []float64
	for len(payload) > 0 {
		v, n := protowire.ConsumeFixed64(payload)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "malformed packed floats")
		}
		payload = payload[n:]
		values = append(values, math.Float64frombits(v))
	}
	return values, nil
}
