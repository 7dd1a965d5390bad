// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"fmt"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
)

// EngineOption holds configuration for a Goja engine instance.
type EngineOption struct {
	MaxCallStackSize int
	EnableConsole    bool
	EnableRequire    bool
	EnableStore      bool
	FieldNameMapper  goja.FieldNameMapper
}

// Store is the key/value persistence exposed to scripts as the kv global.
// Implementations are only called from the worker goroutine owning the engine.
type Store interface {
	Get(key string) (jsdispatch.Value, bool, error)
	Put(key string, value jsdispatch.Value) error
	Delete(key string) error
	Keys() ([]string, error)
}

func asEngine(engine jsdispatch.Engine) (*Engine, error) {
	e, ok := engine.(*Engine)
	if !ok {
		return nil, fmt.Errorf("goja option applied to %T", engine)
	}
	return e, nil
}

// WithMaxCallStackSize sets the maximum call stack size for the runtime.
// A value of 0 or less means no limit.
func WithMaxCallStackSize(size int) jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, err := asEngine(engine)
		if err != nil {
			return err
		}
		e.Option.MaxCallStackSize = size
		if size > 0 {
			e.Runtime.SetMaxCallStackSize(size)
		}
		return nil
	}
}

// WithEnableConsole enables the console object (console.log, etc.) in the JS runtime.
// Console output goes through the standard log package.
func WithEnableConsole() jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, err := asEngine(engine)
		if err != nil {
			return err
		}
		// console is loaded as a native module
		e.enableRequire()
		e.Option.EnableConsole = true
		console.Enable(e.Runtime)
		return nil
	}
}

// WithRequire enables the require() function for loading CommonJS modules.
func WithRequire() jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, err := asEngine(engine)
		if err != nil {
			return err
		}
		e.enableRequire()
		return nil
	}
}

func (e *Engine) enableRequire() {
	if e.registry != nil {
		return
	}
	e.registry = new(require.Registry)
	e.registry.Enable(e.Runtime)
	e.Option.EnableRequire = true
}

// WithFieldNameMapper sets the field name mapper for Go-to-JS struct conversions.
// This controls how Go struct field names are exposed in JavaScript.
func WithFieldNameMapper(mapper goja.FieldNameMapper) jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, err := asEngine(engine)
		if err != nil {
			return err
		}
		if mapper != nil {
			e.Option.FieldNameMapper = mapper
			e.Runtime.SetFieldNameMapper(mapper)
		}
		return nil
	}
}

// WithStore installs a kv global backed by store:
//
//	kv.get(key)        -> value, or undefined when absent
//	kv.put(key, value) -> undefined
//	kv.delete(key)     -> undefined
//	kv.keys()          -> array of keys
//
// Store errors and unconvertible values are thrown as JS errors.
func WithStore(store Store) jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, err := asEngine(engine)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		e.Option.EnableStore = true
		return e.Runtime.Set("kv", newStoreBinding(e.Runtime, store))
	}
}

func newStoreBinding(vm *goja.Runtime, store Store) *goja.Object {
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}

	kv := vm.NewObject()
	_ = kv.Set("get", func(call goja.FunctionCall) goja.Value {
		v, ok, err := store.Get(call.Argument(0).String())
		if err != nil {
			throw(err)
		}
		if !ok {
			return goja.Undefined()
		}
		return FromInterchange(vm, v)
	})
	_ = kv.Set("put", func(call goja.FunctionCall) goja.Value {
		v, err := ToInterchange(vm, call.Argument(1))
		if err != nil {
			throw(err)
		}
		if err := store.Put(call.Argument(0).String(), v); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})
	_ = kv.Set("delete", func(call goja.FunctionCall) goja.Value {
		if err := store.Delete(call.Argument(0).String()); err != nil {
			throw(err)
		}
		return goja.Undefined()
	})
	_ = kv.Set("keys", func(call goja.FunctionCall) goja.Value {
		keys, err := store.Keys()
		if err != nil {
			throw(err)
		}
		items := make([]interface{}, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return vm.NewArray(items...)
	})
	return kv
}
