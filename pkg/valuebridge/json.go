package valuebridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Member is one key of an Object.
type Member struct {
	Key   string
	Value interface{}
}

// Object is a JSON object that keeps its key order when marshaled.
type Object []Member

// MarshalJSON writes the members in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromJSON parses a JSON document into a typed value. Object key order is
// preserved. Only malformed JSON is an error.
func FromJSON(data []byte) (Val, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// FromJSONArray parses a JSON array into one typed value per element.
func FromJSONArray(data []byte) ([]Val, error) {
	v, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	list, ok := v.(List)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %s", jsonShape(v))
	}
	return []Val(list), nil
}

func jsonShape(v Val) string {
	switch v.(type) {
	case Record:
		return "an object"
	case Option:
		return "null"
	case String:
		return "a string"
	case Bool:
		return "a boolean"
	default:
		return "a number"
	}
}

func decodeValue(dec *json.Decoder) (Val, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			list := List{}
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		case '{':
			rec := Record{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				rec = append(rec, Field{Name: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case nil:
		return None, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return fromNumber(t), nil
	case string:
		return String(t), nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// fromNumber picks the narrowest kind: s32, then s64 for integers; float32
// when the value fits its range, else float64.
func fromNumber(n json.Number) Val {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return S32(i)
		}
		return S64(i)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		// Out of float64 range; ParseFloat still returns ±Inf.
		return Float64(f)
	}
	return fromFloat(f)
}

func fromFloat(f float64) Val {
	if math.Abs(f) <= math.MaxFloat32 {
		return Float32(f)
	}
	return Float64(f)
}

// FromAny converts an already decoded Go value (as produced by
// encoding/json, or Object) into a typed value. Values with no typed
// equivalent become none; inside lists they are dropped.
func FromAny(v interface{}) Val {
	if val, ok := fromAny(v); ok {
		return val
	}
	return None
}

func fromAny(v interface{}) (Val, bool) {
	switch t := v.(type) {
	case nil:
		return None, true
	case Val:
		return t, true
	case bool:
		return Bool(t), true
	case json.Number:
		return fromNumber(t), true
	case int:
		return fromNumber(json.Number(strconv.FormatInt(int64(t), 10))), true
	case int32:
		return S32(t), true
	case int64:
		return fromNumber(json.Number(strconv.FormatInt(t, 10))), true
	case float32:
		return Float32(t), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return fromNumber(json.Number(strconv.FormatInt(int64(t), 10))), true
		}
		return fromFloat(t), true
	case string:
		return String(t), true
	case []interface{}:
		list := List{}
		for _, elem := range t {
			if val, ok := fromAny(elem); ok {
				list = append(list, val)
			}
		}
		return list, true
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := Record{}
		for _, k := range keys {
			if val, ok := fromAny(t[k]); ok {
				rec = append(rec, Field{Name: k, Value: val})
			}
		}
		return rec, true
	case Object:
		rec := Record{}
		for _, m := range t {
			if val, ok := fromAny(m.Value); ok {
				rec = append(rec, Field{Name: m.Key, Value: val})
			}
		}
		return rec, true
	}
	return nil, false
}

// ToAny converts a typed value into Go values that encoding/json marshals
// to the documented JSON shape. Records become Object to keep field order.
// Non-finite floats become null.
func ToAny(v Val) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case Bool:
		return bool(t)
	case S8:
		return int64(t)
	case S16:
		return int64(t)
	case S32:
		return int64(t)
	case S64:
		return int64(t)
	case U8:
		return uint64(t)
	case U16:
		return uint64(t)
	case U32:
		return uint64(t)
	case U64:
		return uint64(t)
	case Float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 32))
	case Float64:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case String:
		return string(t)
	case List:
		return toAnySlice(t)
	case Tuple:
		return toAnySlice(t)
	case Record:
		obj := make(Object, len(t))
		for i, f := range t {
			obj[i] = Member{Key: f.Name, Value: ToAny(f.Value)}
		}
		return obj
	case Option:
		return ToAny(t.Value)
	case Result:
		tag := "Err"
		if t.Ok {
			tag = "Ok"
		}
		return Object{{Key: tag, Value: ToAny(t.Value)}}
	default:
		return Debug(v)
	}
}

func toAnySlice(vals []Val) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = ToAny(v)
	}
	return out
}

// ToJSON marshals a typed value to JSON.
func ToJSON(v Val) ([]byte, error) {
	return json.Marshal(ToAny(v))
}
