//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"fmt"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/tommie/v8go"
)

var (
	// Make these functions variables so they can be mocked in tests.
	v8NewIsolate = v8go.NewIsolate
	v8NewContext = v8go.NewContext
)

// Engine implements the jsdispatch.Engine interface using the V8 engine.
// It encapsulates a V8 Isolate and Context.
type Engine struct {
	// Iso is the V8 Isolate, representing a single-threaded VM instance.
	// It is exposed publicly to allow for advanced custom options.
	Iso *v8go.Isolate

	// Ctx is the V8 Context, representing the execution environment.
	// It is exposed publicly to allow for advanced custom options.
	Ctx *v8go.Context

	// Option holds the engine-specific configurations.
	Option *EngineOption

	// BridgeScript converts handler results to JSON inside the isolate.
	BridgeScript string

	bridge *v8go.Function
}

// NewFactory creates a new jsdispatch.EngineFactory for the V8 engine.
func NewFactory(opts ...jsdispatch.EngineOption) jsdispatch.EngineFactory {
	return func() (jsdispatch.Engine, error) {
		return newEngine(opts...)
	}
}

// newEngine creates and initializes a new V8 Engine instance.
func newEngine(opts ...jsdispatch.EngineOption) (*Engine, error) {
	e := &Engine{
		Option:       &EngineOption{},
		BridgeScript: jsdispatch.BridgeScript, // Set default bridge script
	}

	// Apply user-provided options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Create a new V8 Isolate
	iso := v8NewIsolate()
	if iso == nil {
		return nil, fmt.Errorf("failed to create v8 isolate")
	}
	e.Iso = iso

	// Create a new V8 Context
	ctx := v8NewContext(iso)
	if ctx == nil {
		iso.Dispose() // Clean up isolate if context creation fails
		e.Iso = nil
		return nil, fmt.Errorf("failed to create v8 context")
	}
	e.Ctx = ctx

	bridgeVal, err := ctx.RunScript(e.BridgeScript, "bridge.js")
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to load bridge script: %w", err)
	}
	bridge, err := bridgeVal.AsFunction()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("bridge script did not return a function: %w", err)
	}
	e.bridge = bridge

	return e, nil
}

// CompileFunction evaluates src, which must be a function literal, and
// returns a handler calling it with no arguments.
func (e *Engine) CompileFunction(name, src string) (jsdispatch.Handler, error) {
	val, err := e.Ctx.RunScript("("+src+")", name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile function: %w", err)
	}
	if !val.IsFunction() {
		return nil, fmt.Errorf("script did not evaluate to a function")
	}
	fn, err := val.AsFunction()
	if err != nil {
		return nil, fmt.Errorf("failed to compile function: %w", err)
	}
	return &handler{engine: e, fn: fn}, nil
}

// Evaluate runs src once and converts its completion value.
func (e *Engine) Evaluate(name, src string) (jsdispatch.Value, error) {
	val, err := e.Ctx.RunScript(src, name)
	if err != nil {
		return jsdispatch.Null(), fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return e.settle(val)
}

// settle waits for a returned promise, then converts the value through the
// bridge script.
func (e *Engine) settle(val *v8go.Value) (jsdispatch.Value, error) {
	if val.IsPromise() {
		e.Ctx.PerformMicrotaskCheckpoint()
		promise, err := val.AsPromise()
		if err != nil {
			return jsdispatch.Null(), err
		}
		switch promise.State() {
		case v8go.Fulfilled:
			val = promise.Result()
		case v8go.Rejected:
			return jsdispatch.Null(), fmt.Errorf("promise rejected: %s", promise.Result().String())
		default:
			return jsdispatch.Null(), fmt.Errorf("promise did not settle")
		}
	}

	text, err := e.bridge.Call(e.Ctx.Global(), val)
	if err != nil {
		return jsdispatch.Null(), err
	}
	return jsdispatch.ParseJSON(text.String())
}

// Close releases all resources associated with the V8 engine.
func (e *Engine) Close() error {
	e.bridge = nil
	if e.Ctx != nil {
		e.Ctx.Close()
		e.Ctx = nil
	}
	if e.Iso != nil {
		e.Iso.Dispose()
		e.Iso = nil
	}
	return nil
}

// handler is a compiled JS function route.
type handler struct {
	engine *Engine
	fn     *v8go.Function
}

// Invoke calls the function and converts its result.
func (h *handler) Invoke() (jsdispatch.Value, error) {
	val, err := h.fn.Call(h.engine.Ctx.Global())
	if err != nil {
		return jsdispatch.Null(), err
	}
	return h.engine.settle(val)
}
