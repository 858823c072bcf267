// Package valuebridge converts between dynamic JSON values and the typed
// value tree exchanged with sandboxed plugins.
package valuebridge

import (
	"fmt"
	"strings"
)

// Kind tags a typed value. The numeric values are part of the plugin wire
// format and must not change.
type Kind uint8

const (
	KindBool    Kind = 1
	KindS8      Kind = 2
	KindS16     Kind = 3
	KindS32     Kind = 4
	KindS64     Kind = 5
	KindU8      Kind = 6
	KindU16     Kind = 7
	KindU32     Kind = 8
	KindU64     Kind = 9
	KindFloat32 Kind = 10
	KindFloat64 Kind = 11
	KindChar    Kind = 12
	KindString  Kind = 13
	KindList    Kind = 14
	KindRecord  Kind = 15
	KindTuple   Kind = 16
	KindVariant Kind = 17
	KindEnum    Kind = 18
	KindOption  Kind = 19
	KindResult  Kind = 20
	KindFlags   Kind = 21
)

var kindNames = map[Kind]string{
	KindBool: "bool", KindS8: "s8", KindS16: "s16", KindS32: "s32", KindS64: "s64",
	KindU8: "u8", KindU16: "u16", KindU32: "u32", KindU64: "u64",
	KindFloat32: "float32", KindFloat64: "float64", KindChar: "char", KindString: "string",
	KindList: "list", KindRecord: "record", KindTuple: "tuple", KindVariant: "variant",
	KindEnum: "enum", KindOption: "option", KindResult: "result", KindFlags: "flags",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Val is a typed value.
type Val interface {
	Kind() Kind
}

type (
	Bool    bool
	S8      int8
	S16     int16
	S32     int32
	S64     int64
	U8      uint8
	U16     uint16
	U32     uint32
	U64     uint64
	Float32 float32
	Float64 float64
	Char    rune
	String  string
	List    []Val
	Tuple   []Val
	Enum    string
	Flags   []string
)

// Field is one named member of a Record.
type Field struct {
	Name  string
	Value Val
}

// Record is an ordered set of named fields.
type Record []Field

// Option holds Value when present; a nil Value is none.
type Option struct {
	Value Val
}

// Result is ok or err, each with an optional payload.
type Result struct {
	Ok    bool
	Value Val
}

// Variant is a named case with an optional payload.
type Variant struct {
	Case  string
	Value Val
}

func (Bool) Kind() Kind    { return KindBool }
func (S8) Kind() Kind      { return KindS8 }
func (S16) Kind() Kind     { return KindS16 }
func (S32) Kind() Kind     { return KindS32 }
func (S64) Kind() Kind     { return KindS64 }
func (U8) Kind() Kind      { return KindU8 }
func (U16) Kind() Kind     { return KindU16 }
func (U32) Kind() Kind     { return KindU32 }
func (U64) Kind() Kind     { return KindU64 }
func (Float32) Kind() Kind { return KindFloat32 }
func (Float64) Kind() Kind { return KindFloat64 }
func (Char) Kind() Kind    { return KindChar }
func (String) Kind() Kind  { return KindString }
func (List) Kind() Kind    { return KindList }
func (Record) Kind() Kind  { return KindRecord }
func (Tuple) Kind() Kind   { return KindTuple }
func (Variant) Kind() Kind { return KindVariant }
func (Enum) Kind() Kind    { return KindEnum }
func (Option) Kind() Kind  { return KindOption }
func (Result) Kind() Kind  { return KindResult }
func (Flags) Kind() Kind   { return KindFlags }

// None is the empty Option.
var None = Option{}

// Some wraps v in an Option.
func Some(v Val) Option { return Option{Value: v} }

// Get returns the value of the named field.
func (r Record) Get(name string) (Val, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Debug renders a value in a readable, lossless-enough form. It backs the
// JSON fallback for kinds JSON has no shape for.
func Debug(v Val) string {
	switch t := v.(type) {
	case nil:
		return "none"
	case Char:
		return fmt.Sprintf("Char(%q)", rune(t))
	case Enum:
		return fmt.Sprintf("Enum(%s)", string(t))
	case Flags:
		return fmt.Sprintf("Flags(%s)", strings.Join(t, "|"))
	case Variant:
		if t.Value == nil {
			return fmt.Sprintf("Variant(%s)", t.Case)
		}
		return fmt.Sprintf("Variant(%s, %s)", t.Case, Debug(t.Value))
	case String:
		return fmt.Sprintf("%q", string(t))
	case List:
		return "[" + joinDebug(t) + "]"
	case Tuple:
		return "(" + joinDebug(t) + ")"
	case Record:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = f.Name + ": " + Debug(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Option:
		if t.Value == nil {
			return "None"
		}
		return "Some(" + Debug(t.Value) + ")"
	case Result:
		tag := "Err"
		if t.Ok {
			tag = "Ok"
		}
		if t.Value == nil {
			return tag
		}
		return tag + "(" + Debug(t.Value) + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinDebug(vals []Val) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = Debug(v)
	}
	return strings.Join(parts, ", ")
}
