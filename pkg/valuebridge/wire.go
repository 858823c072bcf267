package valuebridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Wire format: every value is a two-element CBOR array [kind, payload].
//
//	scalars          payload is the CBOR scalar (char as its code point)
//	list, tuple      array of values
//	record           array of [name, value] pairs
//	option           null for none, else the value
//	result, variant  [ok-or-case, value-or-null]
//	enum             text
//	flags            array of text

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("valuebridge: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("valuebridge: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serialises a value to the plugin wire format.
func Encode(v Val) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(w)
}

// Decode parses a value from the plugin wire format.
func Decode(data []byte) (Val, error) {
	return decodeWire(cbor.RawMessage(data))
}

func toWire(v Val) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	var payload interface{}
	switch t := v.(type) {
	case Bool:
		payload = bool(t)
	case S8:
		payload = int64(t)
	case S16:
		payload = int64(t)
	case S32:
		payload = int64(t)
	case S64:
		payload = int64(t)
	case U8:
		payload = uint64(t)
	case U16:
		payload = uint64(t)
	case U32:
		payload = uint64(t)
	case U64:
		payload = uint64(t)
	case Float32:
		payload = float32(t)
	case Float64:
		payload = float64(t)
	case Char:
		payload = uint32(t)
	case String:
		payload = string(t)
	case Enum:
		payload = string(t)
	case Flags:
		payload = []string(t)
	case List:
		items, err := toWireSlice(t)
		if err != nil {
			return nil, err
		}
		payload = items
	case Tuple:
		items, err := toWireSlice(t)
		if err != nil {
			return nil, err
		}
		payload = items
	case Record:
		fields := make([]interface{}, len(t))
		for i, f := range t {
			w, err := toWire(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = []interface{}{f.Name, w}
		}
		payload = fields
	case Option:
		w, err := toWire(t.Value)
		if err != nil {
			return nil, err
		}
		payload = w
	case Result:
		w, err := toWire(t.Value)
		if err != nil {
			return nil, err
		}
		payload = []interface{}{t.Ok, w}
	case Variant:
		w, err := toWire(t.Value)
		if err != nil {
			return nil, err
		}
		payload = []interface{}{t.Case, w}
	default:
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
	return []interface{}{uint8(v.Kind()), payload}, nil
}

func toWireSlice(vals []Val) ([]interface{}, error) {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		w, err := toWire(v)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func isNull(raw cbor.RawMessage) bool {
	return len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7)
}

func decodeWire(raw cbor.RawMessage) (Val, error) {
	if isNull(raw) {
		return nil, nil
	}
	var pair []cbor.RawMessage
	if err := decMode.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if len(pair) != 2 {
		return nil, fmt.Errorf("decode value: expected [kind, payload], got %d elements", len(pair))
	}
	var kind uint8
	if err := decMode.Unmarshal(pair[0], &kind); err != nil {
		return nil, fmt.Errorf("decode kind: %w", err)
	}
	return decodePayload(Kind(kind), pair[1])
}

func scalar[T any](payload cbor.RawMessage) (T, error) {
	var v T
	err := decMode.Unmarshal(payload, &v)
	return v, err
}

func decodePayload(kind Kind, payload cbor.RawMessage) (Val, error) {
	switch kind {
	case KindBool:
		v, err := scalar[bool](payload)
		return Bool(v), err
	case KindS8:
		v, err := scalar[int8](payload)
		return S8(v), err
	case KindS16:
		v, err := scalar[int16](payload)
		return S16(v), err
	case KindS32:
		v, err := scalar[int32](payload)
		return S32(v), err
	case KindS64:
		v, err := scalar[int64](payload)
		return S64(v), err
	case KindU8:
		v, err := scalar[uint8](payload)
		return U8(v), err
	case KindU16:
		v, err := scalar[uint16](payload)
		return U16(v), err
	case KindU32:
		v, err := scalar[uint32](payload)
		return U32(v), err
	case KindU64:
		v, err := scalar[uint64](payload)
		return U64(v), err
	case KindFloat32:
		v, err := scalar[float32](payload)
		return Float32(v), err
	case KindFloat64:
		v, err := scalar[float64](payload)
		return Float64(v), err
	case KindChar:
		v, err := scalar[uint32](payload)
		return Char(rune(v)), err
	case KindString:
		v, err := scalar[string](payload)
		return String(v), err
	case KindEnum:
		v, err := scalar[string](payload)
		return Enum(v), err
	case KindFlags:
		v, err := scalar[[]string](payload)
		return Flags(v), err
	case KindList:
		items, err := decodeSlice(payload)
		return List(items), err
	case KindTuple:
		items, err := decodeSlice(payload)
		return Tuple(items), err
	case KindRecord:
		pairs, err := scalar[[][]cbor.RawMessage](payload)
		if err != nil {
			return nil, err
		}
		rec := make(Record, 0, len(pairs))
		for _, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("decode record: malformed field")
			}
			name, err := scalar[string](p[0])
			if err != nil {
				return nil, err
			}
			val, err := decodeWire(p[1])
			if err != nil {
				return nil, err
			}
			rec = append(rec, Field{Name: name, Value: val})
		}
		return rec, nil
	case KindOption:
		val, err := decodeWire(payload)
		return Option{Value: val}, err
	case KindResult:
		tag, val, err := decodeTagged[bool](payload)
		return Result{Ok: tag, Value: val}, err
	case KindVariant:
		tag, val, err := decodeTagged[string](payload)
		return Variant{Case: tag, Value: val}, err
	}
	return nil, fmt.Errorf("decode value: unknown kind %d", uint8(kind))
}

func decodeSlice(payload cbor.RawMessage) ([]Val, error) {
	raws, err := scalar[[]cbor.RawMessage](payload)
	if err != nil {
		return nil, err
	}
	out := make([]Val, len(raws))
	for i, raw := range raws {
		if out[i], err = decodeWire(raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeTagged[T any](payload cbor.RawMessage) (T, Val, error) {
	var tag T
	pair, err := scalar[[]cbor.RawMessage](payload)
	if err != nil {
		return tag, nil, err
	}
	if len(pair) != 2 {
		return tag, nil, fmt.Errorf("decode value: malformed tagged payload")
	}
	if tag, err = scalar[T](pair[0]); err != nil {
		return tag, nil, err
	}
	val, err := decodeWire(pair[1])
	return tag, val, err
}
