package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind enumerates the variants of a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindInt64
	KindDouble
	KindBool
	KindNull
)

var kindNames = [...]string{
	KindString: "string_value",
	KindInt:    "int_value",
	KindInt64:  "int64_value",
	KindDouble: "double_value",
	KindBool:   "bool_value",
	KindNull:   "null_value",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a single typed scalar which is bound as a statement parameter, or
// read from a result column. It's a closed variant: the only implementations
// are StringValue, IntValue, Int64Value, DoubleValue, BoolValue, and
// NullValue. Switches over a Value's dynamic type must handle all six, and
// should panic in their default arm.
type Value interface {
	Kind() Kind
	isValue()
}

// StringValue is a Value holding a string. Blob columns are also read as
// StringValue, with their bytes reinterpreted as a string.
type StringValue string

// IntValue is a Value holding a 32-bit integer.
type IntValue int32

// Int64Value is a Value holding a 64-bit integer.
type Int64Value int64

// DoubleValue is a Value holding a float64.
type DoubleValue float64

// BoolValue is a Value holding a bool.
type BoolValue bool

// NullValue is the Value of SQL NULL.
type NullValue struct{}

// Null is the NullValue.
var Null = NullValue{}

func (StringValue) Kind() Kind { return KindString }
func (IntValue) Kind() Kind    { return KindInt }
func (Int64Value) Kind() Kind  { return KindInt64 }
func (DoubleValue) Kind() Kind { return KindDouble }
func (BoolValue) Kind() Kind   { return KindBool }
func (NullValue) Kind() Kind   { return KindNull }

func (StringValue) isValue() {}
func (IntValue) isValue()    {}
func (Int64Value) isValue()  {}
func (DoubleValue) isValue() {}
func (BoolValue) isValue()   {}
func (NullValue) isValue()   {}

// FormatValue returns a human-readable rendering of the Value.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case StringValue:
		return string(v)
	case IntValue:
		return strconv.FormatInt(int64(v), 10)
	case Int64Value:
		return strconv.FormatInt(int64(v), 10)
	case DoubleValue:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case BoolValue:
		return strconv.FormatBool(bool(v))
	case NullValue:
		return "NULL"
	case nil:
		return "<nil>"
	default:
		panic(fmt.Sprintf("unexpected Value variant %T", v))
	}
}

// valueWire is the serialized form of a Value: a map having exactly one of
// the variant keys.
type valueWire struct {
	String *string  `json:"string_value,omitempty" yaml:"string_value,omitempty"`
	Int    *int32   `json:"int_value,omitempty" yaml:"int_value,omitempty"`
	Int64  *int64   `json:"int64_value,omitempty" yaml:"int64_value,omitempty"`
	Double *float64 `json:"double_value,omitempty" yaml:"double_value,omitempty"`
	Bool   *bool    `json:"bool_value,omitempty" yaml:"bool_value,omitempty"`
	Null   *bool    `json:"null_value,omitempty" yaml:"null_value,omitempty"`
}

func toWire(v Value) valueWire {
	var w valueWire

	switch v := v.(type) {
	case StringValue:
		var s = string(v)
		w.String = &s
	case IntValue:
		var i = int32(v)
		w.Int = &i
	case Int64Value:
		var i = int64(v)
		w.Int64 = &i
	case DoubleValue:
		var f = float64(v)
		w.Double = &f
	case BoolValue:
		var b = bool(v)
		w.Bool = &b
	case NullValue:
		var b = true
		w.Null = &b
	default:
		panic(fmt.Sprintf("unexpected Value variant %T", v))
	}
	return w
}

func (w valueWire) toValue() (Value, error) {
	var out Value
	var n int

	if w.String != nil {
		out, n = StringValue(*w.String), n+1
	}
	if w.Int != nil {
		out, n = IntValue(*w.Int), n+1
	}
	if w.Int64 != nil {
		out, n = Int64Value(*w.Int64), n+1
	}
	if w.Double != nil {
		out, n = DoubleValue(*w.Double), n+1
	}
	if w.Bool != nil {
		out, n = BoolValue(*w.Bool), n+1
	}
	if w.Null != nil {
		if !*w.Null {
			return nil, NewValidationError("null_value must be true if present")
		}
		out, n = Null, n+1
	}

	if n != 1 {
		return nil, NewValidationError("expected exactly one value variant (got %d)", n)
	}
	return out, nil
}

// UnmarshalValueJSON decodes a Value from its JSON representation.
func UnmarshalValueJSON(b []byte) (Value, error) {
	var w valueWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return w.toValue()
}

func (v StringValue) MarshalJSON() ([]byte, error) { return json.Marshal(toWire(v)) }
func (v IntValue) MarshalJSON() ([]byte, error)    { return json.Marshal(toWire(v)) }
func (v Int64Value) MarshalJSON() ([]byte, error)  { return json.Marshal(toWire(v)) }
func (v DoubleValue) MarshalJSON() ([]byte, error) { return json.Marshal(toWire(v)) }
func (v BoolValue) MarshalJSON() ([]byte, error)   { return json.Marshal(toWire(v)) }
func (v NullValue) MarshalJSON() ([]byte, error)   { return json.Marshal(toWire(v)) }

func (v StringValue) MarshalYAML() (interface{}, error) { return toWire(v), nil }
func (v IntValue) MarshalYAML() (interface{}, error)    { return toWire(v), nil }
func (v Int64Value) MarshalYAML() (interface{}, error)  { return toWire(v), nil }
func (v DoubleValue) MarshalYAML() (interface{}, error) { return toWire(v), nil }
func (v BoolValue) MarshalYAML() (interface{}, error)   { return toWire(v), nil }
func (v NullValue) MarshalYAML() (interface{}, error)   { return toWire(v), nil }

// Record is one result row: a Value for each selected column, in order.
type Record []Value

// UnmarshalJSON decodes each field of the Record.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out = make(Record, len(raw))

	for i := range raw {
		var v, err = UnmarshalValueJSON(raw[i])
		if err != nil {
			return ExtendContext(err, "[%d]", i)
		}
		out[i] = v
	}
	*r = out
	return nil
}

// Strings renders each field of the Record with FormatValue.
func (r Record) Strings() []string {
	var out = make([]string, len(r))
	for i, v := range r {
		out[i] = FormatValue(v)
	}
	return out
}
