// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine

import (
	"fmt"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/quickjs-go"
)

// Engine represents a QuickJS engine instance with its runtime, context, and options.
type Engine struct {
	Runtime *quickjs.Runtime // QuickJS runtime instance
	Ctx     *quickjs.Context // QuickJS context instance
	Option  *EngineOption    // Engine configuration options

	bridge   *quickjs.Value   // Compiled jsdispatch.BridgeScript
	handlers []*quickjs.Value // Compiled route functions, freed on Close
}

// CompileFunction evaluates src, which must be a function literal, and
// returns a handler calling it with no arguments.
func (e *Engine) CompileFunction(name, src string) (jsdispatch.Handler, error) {
	fn := e.Ctx.Eval("("+src+")", quickjs.EvalFileName(name))
	if fn.IsException() {
		fn.Free()
		return nil, fmt.Errorf("failed to compile function: %w", e.Ctx.Exception())
	}
	if !fn.IsFunction() {
		fn.Free()
		return nil, fmt.Errorf("script did not evaluate to a function")
	}
	e.handlers = append(e.handlers, fn)
	return &handler{engine: e, fn: fn}, nil
}

// Evaluate runs src once and converts its completion value.
func (e *Engine) Evaluate(name, src string) (jsdispatch.Value, error) {
	result := e.Ctx.Eval(src, quickjs.EvalFileName(name)).Await()
	defer result.Free()
	if result.IsException() {
		return jsdispatch.Null(), fmt.Errorf("failed to evaluate expression: %w", e.Ctx.Exception())
	}
	return e.toInterchange(result)
}

// toInterchange pipes v through the bridge script and decodes its JSON.
func (e *Engine) toInterchange(v *quickjs.Value) (jsdispatch.Value, error) {
	text := e.bridge.Execute(e.Ctx.Null(), v)
	defer text.Free()
	if text.IsException() {
		return jsdispatch.Null(), e.Ctx.Exception()
	}
	return jsdispatch.ParseJSON(text.String())
}

// Close releases all resources associated with the engine, including context and runtime.
func (e *Engine) Close() error {
	for _, fn := range e.handlers {
		fn.Free()
	}
	e.handlers = nil
	if e.bridge != nil {
		e.bridge.Free()
		e.bridge = nil
	}
	if e.Ctx != nil {
		e.Ctx.Close()
		e.Ctx = nil
	}
	if e.Runtime != nil {
		e.Runtime.Close()
		e.Runtime = nil
	}
	return nil
}

// handler is a compiled JS function route.
type handler struct {
	engine *Engine
	fn     *quickjs.Value
}

// Invoke calls the function, awaiting a returned promise, and converts the result.
func (h *handler) Invoke() (jsdispatch.Value, error) {
	result := h.fn.Execute(h.engine.Ctx.Null()).Await()
	defer result.Free()
	if result.IsException() {
		return jsdispatch.Null(), h.engine.Ctx.Exception()
	}
	return h.engine.toInterchange(result)
}

// newEngine creates a new QuickJS engine instance with the given options.
// It initializes the runtime, context, applies all provided engine options
// and compiles the bridge script.
func newEngine(options ...jsdispatch.EngineOption) (*Engine, error) {
	// Create QuickJS runtime
	rt := quickjs.NewRuntime()

	// Create QuickJS context
	ctx := rt.NewContext()

	// Create engine instance with default options
	engine := &Engine{
		Runtime: rt,
		Ctx:     ctx,
		Option: &EngineOption{
			MemoryLimit:  0,  // Default memory limit (no limit)
			GCThreshold:  -1, // Default GC threshold. -1 means no threshold
			MaxStackSize: 0,  // Default max stack size
			Strip:        1,  // Default strip behavior
		},
	}

	// Apply additional engine options
	for _, option := range options {
		if err := option(engine); err != nil {
			engine.Close()
			return nil, err
		}
	}

	bridge := ctx.Eval(jsdispatch.BridgeScript, quickjs.EvalFileName("bridge.js"))
	if bridge.IsException() {
		bridge.Free()
		err := ctx.Exception()
		engine.Close()
		return nil, fmt.Errorf("failed to load bridge script: %w", err)
	}
	engine.bridge = bridge

	return engine, nil
}

// NewFactory returns an EngineFactory that creates QuickJS engines with the given options.
func NewFactory(options ...jsdispatch.EngineOption) jsdispatch.EngineFactory {
	return func() (jsdispatch.Engine, error) {
		return newEngine(options...)
	}
}
