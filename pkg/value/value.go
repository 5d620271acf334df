// Package value defines the structured-data interchange type crossing the
// capability boundary. Results returned by tools and arguments received from
// the remote model are all expressed as Values.
//
// Value is a sealed union over the JSON data model. Objects preserve key
// insertion order so that results render the same way they were built.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is one of Null, Bool, Number, Str, Array or Object.
type Value interface {
	isValue()
}

// Null is the JSON null value.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number. All numbers are float64, matching encoding/json.
type Number float64

// Str is a JSON string.
type Str string

// Array is an ordered sequence of Values.
type Array []Value

// Field is a single key/value pair of an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is an insertion-ordered string-to-Value map.
//
//	value.Object{{"result", value.Str("success")}, {"id", value.Number(3)}}
type Object []Field

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (Str) isValue()    {}
func (Array) isValue()  {}
func (Object) isValue() {}

// Get returns the value for key and whether it was present.
func (o Object) Get(key string) (Value, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for key in place, or appends a new field.
func (o Object) Set(key string, v Value) Object {
	for i, f := range o {
		if f.Key == key {
			o[i].Value = v
			return o
		}
	}
	return append(o, Field{Key: key, Value: v})
}

// Keys returns the object's keys in insertion order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON encodes null explicitly; struct{} would marshal as {}.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes the object preserving field order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Marshal encodes a Value as JSON. A nil Value encodes as null.
func Marshal(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// FromJSON decodes a JSON document into a Value, preserving object key order.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("value: trailing data after JSON document")
	}
	return v, nil
}

// FromGo converts an arbitrary Go value into a Value by round-tripping
// through JSON. Useful for returning serializable result structs from tools.
func FromGo(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := Object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("value: object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // closing '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array{}
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("value: unexpected delimiter %q", t)
		}
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case string:
		return Str(t), nil
	case nil:
		return Null{}, nil
	default:
		return nil, fmt.Errorf("value: unexpected token %v", tok)
	}
}

// Strings converts an Array of Str elements into a []string.
// Returns false if any element is not a string.
func Strings(a Array) ([]string, bool) {
	out := make([]string, len(a))
	for i, v := range a {
		s, ok := v.(Str)
		if !ok {
			return nil, false
		}
		out[i] = string(s)
	}
	return out, true
}
