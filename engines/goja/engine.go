// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package gojaengine

import (
	"errors"
	"fmt"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Engine implements the jsdispatch.Engine interface using the Goja JS engine.
// The runtime is owned by the worker goroutine that created it; Engine does
// no locking of its own.
type Engine struct {
	Runtime *goja.Runtime // The runtime all routes of one server share.
	Option  *EngineOption // Engine configuration options.

	registry *require.Registry // Set once require() has been enabled.
}

// NewFactory returns a jsdispatch.EngineFactory for creating Goja engines.
// The factory is configured with the provided options.
func NewFactory(opts ...jsdispatch.EngineOption) jsdispatch.EngineFactory {
	return func() (jsdispatch.Engine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates a new Goja engine instance.
func newEngine(opts ...jsdispatch.EngineOption) (*Engine, error) {
	e := &Engine{
		Runtime: goja.New(),
		Option:  &EngineOption{}, // Initialize with default options
	}

	// Apply the default FieldNameMapper first.
	// This can be overridden by user-provided options.
	if err := WithFieldNameMapper(goja.TagFieldNameMapper("json", true))(e); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return e, nil
}

// CompileFunction evaluates src, which must be a function literal, and
// returns a handler calling it with no arguments.
func (e *Engine) CompileFunction(name, src string) (jsdispatch.Handler, error) {
	v, err := e.Runtime.RunScript(name, "("+src+")")
	if err != nil {
		return nil, fmt.Errorf("failed to compile function: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("script did not evaluate to a function")
	}
	return &handler{vm: e.Runtime, fn: fn}, nil
}

// Evaluate runs src once and converts its completion value.
func (e *Engine) Evaluate(name, src string) (jsdispatch.Value, error) {
	v, err := e.Runtime.RunScript(name, src)
	if err != nil {
		return jsdispatch.Null(), fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return settle(e.Runtime, v)
}

// Close releases the runtime. Goja runtimes are garbage collected, so this
// only interrupts anything still running and drops references.
func (e *Engine) Close() error {
	if e.Runtime != nil {
		e.Runtime.Interrupt(errEngineClosed)
		e.Runtime = nil
	}
	e.registry = nil
	return nil
}

var errEngineClosed = errors.New("engine closed")

// handler is a compiled JS function route.
type handler struct {
	vm *goja.Runtime
	fn goja.Callable
}

// Invoke calls the function and converts its result.
func (h *handler) Invoke() (jsdispatch.Value, error) {
	v, err := h.fn(goja.Undefined())
	if err != nil {
		return jsdispatch.Null(), err
	}
	return settle(h.vm, v)
}

// settle converts a result, unwrapping promises that have already settled.
// Goja runs queued promise jobs before returning from the outermost call,
// so an async handler that never awaits anything external is settled here.
func settle(vm *goja.Runtime, v goja.Value) (jsdispatch.Value, error) {
	if v != nil {
		if p, ok := v.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				return ToInterchange(vm, p.Result())
			case goja.PromiseStateRejected:
				return jsdispatch.Null(), fmt.Errorf("promise rejected: %s", p.Result().String())
			default:
				return jsdispatch.Null(), fmt.Errorf("promise did not settle")
			}
		}
	}
	return ToInterchange(vm, v)
}
