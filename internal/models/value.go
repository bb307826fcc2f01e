package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is one key/value member of an object Value.
type Field struct {
	Key   string
	Value Value
}

// Value is an arbitrary JSON value used for tool arguments, tool metadata and
// error details. Objects keep their member order and numbers keep their
// literal text, so decoding and re-encoding a payload yields the same document.
// The zero Value is JSON null.
type Value struct {
	kind   ValueKind
	b      bool
	num    json.Number
	str    string
	items  []Value
	fields []Field
}

func Null() Value                  { return Value{} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value   { return Value{kind: KindNumber, num: n} }
func Int(i int64) Value            { return Number(json.Number(strconv.FormatInt(i, 10))) }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value   { return Value{kind: KindArray, items: items} }
func Object(fields ...Field) Value { return Value{kind: KindObject, fields: fields} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// AsBool returns the boolean held by v, if any.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v, if any.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number literal held by v, if any.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Fields returns the members of an object value in document order.
func (v Value) Fields() []Field { return v.fields }

// Len returns the number of array elements or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	}
	return 0
}

// Get looks up an object member. The last occurrence wins on duplicate keys,
// matching encoding/json.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for i := len(v.fields) - 1; i >= 0; i-- {
		if v.fields[i].Key == key {
			return v.fields[i].Value, true
		}
	}
	return Value{}, false
}

// GetString is a shortcut for Get followed by AsString.
func (v Value) GetString(key string) (string, bool) {
	f, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return f.AsString()
}

// Interface converts v into plain Go values (nil, bool, json.Number, string,
// []any, map[string]any). Member order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	}
	return nil
}

// Display renders strings verbatim and everything else as compact JSON.
func (v Value) Display() string {
	if v.kind == KindString {
		return v.str
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// Pretty renders v as indented JSON.
func (v Value) Pretty() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b)
	}
	return out.String()
}

// Equal reports whether a and b hold the same document, including member order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i := range a.fields {
			if a.fields[i].Key != b.fields[i].Key || !Equal(a.fields[i].Value, b.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if v.num == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(string(v.num))
	case KindString:
		return encodeString(buf, v.str)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("models: cannot encode value of kind %d", v.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("models: trailing data after JSON value")
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("models: unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(fields...), nil
		}
	}
	return Value{}, fmt.Errorf("models: unexpected JSON token %v", tok)
}
