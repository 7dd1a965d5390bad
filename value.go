// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the shape held by a Value.
type Kind int

const (
	KindNull   Kind = iota // null / undefined
	KindBool               // boolean
	KindInt                // integral number
	KindFloat              // floating-point number
	KindText               // string
	KindList               // ordered sequence
	KindMap                // string-keyed mapping
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the interchange value moved between an engine and the network
// layer. The zero Value is Null. Values are treated as immutable: the
// constructors copy their inputs and the accessors return copies.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	items []Value
	pairs map[string]Value
}

// ConversionError reports a value that has no interchange representation.
type ConversionError struct {
	Path   string // Location of the offending value, e.g. "$.users[2]"
	Reason string // Human-readable cause
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert value at %s: %s", e.Path, e.Reason)
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// List builds a list value from items.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

// Map builds a map value from fields.
func Map(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindMap, pairs: cp}
}

func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsInt returns the integral value; floats are truncated.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	}
	return 0
}

// AsFloat returns the numeric value as a float64.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	}
	return 0
}

func (v Value) AsText() string { return v.s }

func (v Value) AsList() []Value {
	if v.kind != KindList {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

func (v Value) AsMap() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	cp := make(map[string]Value, len(v.pairs))
	for k, item := range v.pairs {
		cp[k] = item
	}
	return cp
}

// Len returns the number of elements of a list or map, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.pairs)
	}
	return 0
}

// Index returns the i-th (0-based) list element, or Null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.items) {
		return Null()
	}
	return v.items[i]
}

// Field returns a map entry and whether it was present.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	item, ok := v.pairs[key]
	return item, ok
}

// Keys returns the sorted keys of a map value.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.pairs))
	for k := range v.pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports structural equality. Int and Float are distinct kinds.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindText:
		return v.s == other.s
	case KindList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.pairs) != len(other.pairs) {
			return false
		}
		for k, item := range v.pairs {
			o, ok := other.pairs[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the JSON text of the value.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

// Native converts the value to plain Go data: nil, bool, int64, float64,
// string, []any or map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.pairs))
		for k, item := range v.pairs {
			out[k] = item.Native()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		data, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindText:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.pairs[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("invalid value kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fraction or
// exponent that fit in an int64 decode as Int, all others as Float.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromNative(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// ParseJSON decodes JSON text into a Value.
func ParseJSON(text string) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON([]byte(text)); err != nil {
		return Null(), fmt.Errorf("failed to parse interchange json: %w", err)
	}
	return v, nil
}

// FromNative converts plain Go data to a Value. Accepted inputs are nil,
// booleans, integers, finite floats, strings, json.Number, Value, slices and
// arrays of accepted inputs, and maps keyed by strings. Anything else,
// including cyclic structures, yields a *ConversionError.
func FromNative(x any) (Value, error) {
	return fromNative(reflect.ValueOf(x), "$", map[uintptr]bool{})
}

var valueType = reflect.TypeOf(Value{})

func fromNative(rv reflect.Value, path string, visiting map[uintptr]bool) (Value, error) {
	if !rv.IsValid() {
		return Null(), nil
	}
	if rv.Type() == valueType {
		return rv.Interface().(Value), nil
	}
	if n, ok := rv.Interface().(json.Number); ok {
		return fromNumber(n, path)
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Kind() == reflect.Pointer {
			ptr := rv.Pointer()
			if visiting[ptr] {
				return Null(), &ConversionError{Path: path, Reason: "cyclic structure"}
			}
			visiting[ptr] = true
			defer delete(visiting, ptr)
		}
		return fromNative(rv.Elem(), path, visiting)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u)), nil
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Null(), &ConversionError{Path: path, Reason: "non-finite number"}
		}
		return Float(f), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return List(), nil
			}
			if rv.Type().Elem().Kind() == reflect.Uint8 {
				return Text(string(rv.Bytes())), nil
			}
			ptr := rv.Pointer()
			if ptr != 0 && rv.Len() > 0 {
				if visiting[ptr] {
					return Null(), &ConversionError{Path: path, Reason: "cyclic structure"}
				}
				visiting[ptr] = true
				defer delete(visiting, ptr)
			}
		}
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := fromNative(rv.Index(i), path+"["+strconv.Itoa(i)+"]", visiting)
			if err != nil {
				return Null(), err
			}
			items[i] = item
		}
		return Value{kind: KindList, items: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null(), &ConversionError{Path: path, Reason: "map key type " + rv.Type().Key().String() + " is not string"}
		}
		if rv.IsNil() {
			return Map(nil), nil
		}
		ptr := rv.Pointer()
		if visiting[ptr] {
			return Null(), &ConversionError{Path: path, Reason: "cyclic structure"}
		}
		visiting[ptr] = true
		defer delete(visiting, ptr)

		pairs := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			item, err := fromNative(iter.Value(), path+"."+key, visiting)
			if err != nil {
				return Null(), err
			}
			pairs[key] = item
		}
		return Value{kind: KindMap, pairs: pairs}, nil
	}
	return Null(), &ConversionError{Path: path, Reason: "unsupported type " + rv.Type().String()}
}

func fromNumber(n json.Number, path string) (Value, error) {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return Null(), &ConversionError{Path: path, Reason: "invalid number " + text}
	}
	return Float(f), nil
}
