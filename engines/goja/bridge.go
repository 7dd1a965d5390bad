// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"math"
	"strconv"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/dop251/goja"
)

// maxListLength bounds the length of arrays ToInterchange accepts. The length
// of a sparse array is script controlled and says nothing about its size.
const maxListLength = 1 << 20

// ToInterchange converts a goja value owned by vm to an interchange value.
// Only plain objects (prototype Object.prototype or null) and arrays are
// structured values; functions, symbols, BigInts, other objects such as Map,
// Set, Date, typed arrays and class instances, non-finite numbers, arrays
// longer than maxListLength and cyclic structures fail with a
// *jsdispatch.ConversionError.
func ToInterchange(vm *goja.Runtime, v goja.Value) (jsdispatch.Value, error) {
	c := &converter{
		objectProto: vm.NewObject().Prototype(),
		visiting:    map[*goja.Object]bool{},
	}
	return c.convert(v, "$")
}

type converter struct {
	objectProto *goja.Object
	visiting    map[*goja.Object]bool
}

func (c *converter) convert(v goja.Value, path string) (jsdispatch.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return jsdispatch.Null(), nil
	}

	obj, isObject := v.(*goja.Object)
	if !isObject {
		return primitiveToInterchange(v, path)
	}

	if _, ok := goja.AssertFunction(obj); ok {
		return jsdispatch.Null(), conversionError(path, "functions are not convertible")
	}
	if c.visiting[obj] {
		return jsdispatch.Null(), conversionError(path, "cyclic structure")
	}
	c.visiting[obj] = true
	defer delete(c.visiting, obj)

	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		if n > maxListLength {
			return jsdispatch.Null(), conversionError(path, "array length "+strconv.FormatInt(n, 10)+" exceeds "+strconv.Itoa(maxListLength))
		}
		var items []jsdispatch.Value
		for i := 0; i < int(n); i++ {
			item, err := c.convert(obj.Get(strconv.Itoa(i)), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return jsdispatch.Null(), err
			}
			items = append(items, item)
		}
		return jsdispatch.List(items...), nil
	}

	if proto := obj.Prototype(); proto != nil && proto != c.objectProto {
		return jsdispatch.Null(), conversionError(path, "unsupported object "+obj.ClassName())
	}
	keys := obj.Keys()
	fields := make(map[string]jsdispatch.Value, len(keys))
	for _, key := range keys {
		field, err := c.convert(obj.Get(key), path+"."+key)
		if err != nil {
			return jsdispatch.Null(), err
		}
		fields[key] = field
	}
	return jsdispatch.Map(fields), nil
}

func primitiveToInterchange(v goja.Value, path string) (jsdispatch.Value, error) {
	if _, ok := v.(*goja.Symbol); ok {
		return jsdispatch.Null(), conversionError(path, "symbols are not convertible")
	}
	switch x := v.Export().(type) {
	case bool:
		return jsdispatch.Bool(x), nil
	case int64:
		return jsdispatch.Int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return jsdispatch.Null(), conversionError(path, "non-finite number")
		}
		return jsdispatch.Float(x), nil
	case string:
		return jsdispatch.Text(x), nil
	}
	return jsdispatch.Null(), conversionError(path, "unsupported type "+v.ExportType().String())
}

// FromInterchange builds a goja value owned by vm from an interchange value.
// JS has one number type, so a Float with an integral value converts back
// through ToInterchange as an Int.
func FromInterchange(vm *goja.Runtime, v jsdispatch.Value) goja.Value {
	switch v.Kind() {
	case jsdispatch.KindBool:
		return vm.ToValue(v.AsBool())
	case jsdispatch.KindInt:
		return vm.ToValue(v.AsInt())
	case jsdispatch.KindFloat:
		return vm.ToValue(v.AsFloat())
	case jsdispatch.KindText:
		return vm.ToValue(v.AsText())
	case jsdispatch.KindList:
		items := v.AsList()
		values := make([]interface{}, len(items))
		for i, item := range items {
			values[i] = FromInterchange(vm, item)
		}
		return vm.NewArray(values...)
	case jsdispatch.KindMap:
		obj := vm.NewObject()
		for _, key := range v.Keys() {
			field, _ := v.Field(key)
			_ = obj.Set(key, FromInterchange(vm, field))
		}
		return obj
	}
	return goja.Null()
}

func conversionError(path, reason string) *jsdispatch.ConversionError {
	return &jsdispatch.ConversionError{Path: path, Reason: reason}
}
