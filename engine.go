// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	_ "embed"
)

// BridgeScript is a JavaScript function expression that validates a value
// against the interchange shapes and returns its JSON text. Engines without a
// native Go bridge evaluate it once and pipe handler results through it.
//
//go:embed bridge.js
var BridgeScript string

// Handler is a compiled, zero-argument route handler. Handlers created by an
// Engine may only be invoked on the goroutine that owns that engine.
type Handler interface {
	// Invoke runs the handler and converts its result to a Value.
	Invoke() (Value, error)
}

// Engine represents one single-threaded JavaScript execution engine
type Engine interface {
	// CompileFunction compiles a function literal into a handler.
	// name is used for diagnostics only.
	CompileFunction(name, src string) (Handler, error)

	// Evaluate evaluates an expression once and converts its result.
	Evaluate(name, src string) (Value, error)

	// Close closes the engine and releases resources
	Close() error
}

// EngineFactory creates a new engine. It is always called on the worker
// goroutine that will own the engine.
type EngineFactory func() (Engine, error)

// EngineOption is a function that configures an engine
type EngineOption func(Engine) error

// HandlerFunc adapts a Go function to a Handler. The returned data is
// converted with FromNative.
type HandlerFunc func() (any, error)

// Invoke calls f and converts its result.
func (f HandlerFunc) Invoke() (Value, error) {
	out, err := f()
	if err != nil {
		return Null(), err
	}
	return FromNative(out)
}

// constHandler returns the same value on every call.
type constHandler struct {
	value Value
}

func (h constHandler) Invoke() (Value, error) {
	return h.value, nil
}
