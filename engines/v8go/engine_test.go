//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"testing"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/stretchr/testify/require"
	"github.com/tommie/v8go"
)

// TestNewFactory tests the factory returned by NewFactory.
func TestNewFactory(t *testing.T) {
	engine, err := NewFactory()()
	require.NoError(t, err)
	defer engine.Close()

	e, ok := engine.(*Engine)
	require.True(t, ok)
	require.NotNil(t, e.Iso)
	require.NotNil(t, e.Ctx)
	require.NotNil(t, e.bridge)
	require.False(t, e.Option.CustomBridge)
}

// TestNewEngine_Fails tests the failure paths of engine creation.
func TestNewEngine_Fails(t *testing.T) {
	t.Run("Option Fails", func(t *testing.T) {
		_, err := newEngine(WithBridgeScript(""))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to apply option")
	})

	t.Run("Context Creation Fails", func(t *testing.T) {
		originalNewContext := v8NewContext
		// The mock function must have the correct signature to match the original.
		v8NewContext = func(opt ...v8go.ContextOption) *v8go.Context {
			return nil
		}
		defer func() {
			v8NewContext = originalNewContext
		}()

		_, err := newEngine()
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to create v8 context")
	})

	t.Run("Bridge Script Throws", func(t *testing.T) {
		_, err := newEngine(WithBridgeScript(`throw new Error('boom');`))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to load bridge script")
	})

	t.Run("Bridge Script Not A Function", func(t *testing.T) {
		_, err := newEngine(WithBridgeScript(`42`))
		require.Error(t, err)
		require.Contains(t, err.Error(), "did not return a function")
	})
}

// TestEngine_Evaluate tests one-shot expression evaluation.
func TestEngine_Evaluate(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	v, err := engine.Evaluate("sum", "40 + 2")
	require.NoError(t, err)
	require.True(t, jsdispatch.Int(42).Equal(v))

	v, err = engine.Evaluate("object", `({name: "v8", ratio: 0.25, tags: ["a", null]})`)
	require.NoError(t, err)
	require.Equal(t, `{"name":"v8","ratio":0.25,"tags":["a",null]}`, v.String())

	v, err = engine.Evaluate("undef", "undefined")
	require.NoError(t, err)
	require.True(t, v.IsNull())

	v, err = engine.Evaluate("undef_field", "({a: undefined, b: [undefined]})")
	require.NoError(t, err)
	require.Equal(t, `{"a":null,"b":[null]}`, v.String())

	v, err = engine.Evaluate("promise", "Promise.resolve(7)")
	require.NoError(t, err)
	require.Equal(t, int64(7), v.AsInt())

	_, err = engine.Evaluate("syntax", "var a =;")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to evaluate expression")
}

// TestEngine_CompileFunction tests compiling function routes.
func TestEngine_CompileFunction(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	inc, err := engine.CompileFunction("inc", "() => { globalThis.n = (globalThis.n || 0) + 1; return globalThis.n; }")
	require.NoError(t, err)
	for i := int64(1); i <= 3; i++ {
		v, err := inc.Invoke()
		require.NoError(t, err)
		require.Equal(t, i, v.AsInt())
	}

	_, err = engine.CompileFunction("syntax", "function ( { return 1 }")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to compile function")

	_, err = engine.CompileFunction("notfn", "'text'")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not evaluate to a function")
}

// TestHandler_Invoke_Errors tests thrown errors and non-convertible results.
func TestHandler_Invoke_Errors(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	boom, err := engine.CompileFunction("boom", `function () { throw new Error("boom"); }`)
	require.NoError(t, err)
	_, err = boom.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	cb, err := engine.CompileFunction("cb", "function () { return {cb: function () {}}; }")
	require.NoError(t, err)
	_, err = cb.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot convert value at $.cb")

	m, err := engine.CompileFunction("map", "function () { return {m: new Map([['k', 1]])}; }")
	require.NoError(t, err)
	_, err = m.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot convert value at $.m: unsupported object")

	nan, err := engine.CompileFunction("nan", "function () { return [1, NaN]; }")
	require.NoError(t, err)
	_, err = nan.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "$[1]")

	ok, err := engine.CompileFunction("ok", "function () { return {a: [1.5, true]}; }")
	require.NoError(t, err)
	v, err := ok.Invoke()
	require.NoError(t, err)
	require.Equal(t, `{"a":[1.5,true]}`, v.String())
}

// TestHandler_Invoke_Promise tests async handlers.
func TestHandler_Invoke_Promise(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)
	defer engine.Close()

	h, err := engine.CompileFunction("async", "async () => await Promise.resolve('later')")
	require.NoError(t, err)
	v, err := h.Invoke()
	require.NoError(t, err)
	require.Equal(t, "later", v.AsText())

	rejected, err := engine.CompileFunction("rejected", "async () => { throw new Error('nope'); }")
	require.NoError(t, err)
	_, err = rejected.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "promise rejected")
	require.Contains(t, err.Error(), "nope")

	pending, err := engine.CompileFunction("pending", "() => new Promise(() => {})")
	require.NoError(t, err)
	_, err = pending.Invoke()
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not settle")
}

// TestEngine_Close tests that Close releases the isolate and is idempotent.
func TestEngine_Close(t *testing.T) {
	engine, err := newEngine()
	require.NoError(t, err)

	require.NoError(t, engine.Close())
	require.Nil(t, engine.Ctx)
	require.Nil(t, engine.Iso)
	require.Nil(t, engine.bridge)
	require.NoError(t, engine.Close())
}
