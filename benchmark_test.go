//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch_test

import (
	"log/slog"
	"net/http"
	"testing"

	jsdispatch "github.com/buke/js-dispatch"
	gojaengine "github.com/buke/js-dispatch/engines/goja"
	quickjsengine "github.com/buke/js-dispatch/engines/quickjs-go"
	v8engine "github.com/buke/js-dispatch/engines/v8go"
)

// A simple CPU-intensive handler for benchmarking.
// The Fibonacci function is a good candidate as it's pure computation.
const benchmarkJsHandler = `function () {
    function fib(n) {
        if (n < 2) {
            return n;
        }
        return fib(n - 1) + fib(n - 2);
    }
    return fib(15);
}`

// runServerBenchmark is a helper function to run a benchmark test for a given engine factory.
func runServerBenchmark(b *testing.B, factory jsdispatch.EngineFactory) {
	registry, err := jsdispatch.NewRegistry(
		jsdispatch.WithEngine(factory),
		jsdispatch.WithHost("127.0.0.1"),
		jsdispatch.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		b.Fatalf("Failed to create registry: %v", err)
	}

	port := freePort(b)
	if err := registry.Start(port, jsdispatch.Routes{
		{Name: "fib", Source: jsdispatch.Script(benchmarkJsHandler)},
	}); err != nil {
		b.Fatalf("Failed to start server: %v", err)
	}
	defer registry.Shutdown(b.Context())

	b.ResetTimer() // Start timing after setup

	// Run the benchmark in parallel to exercise the dispatch queue
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			status, body, err := get(port, "fib")
			if err != nil || status != http.StatusOK || body != "610" {
				b.Errorf("Request failed: status=%d body=%q err=%v", status, body, err)
			}
		}
	})
}

// BenchmarkServer_Goja benchmarks a server with the Goja engine.
func BenchmarkServer_Goja(b *testing.B) {
	runServerBenchmark(b, gojaengine.NewFactory())
}

// BenchmarkServer_QuickJS benchmarks a server with the QuickJS engine.
func BenchmarkServer_QuickJS(b *testing.B) {
	runServerBenchmark(b, quickjsengine.NewFactory())
}

// BenchmarkServer_V8Go benchmarks a server with the V8 engine.
func BenchmarkServer_V8Go(b *testing.B) {
	runServerBenchmark(b, v8engine.NewFactory())
}
