// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	jsdispatch "github.com/buke/js-dispatch"
	gojaengine "github.com/buke/js-dispatch/engines/goja"
)

func Example() {
	// Create a registry backed by the Goja engine
	registry, err := jsdispatch.NewRegistry(
		jsdispatch.WithEngine(gojaengine.NewFactory()),
		jsdispatch.WithHost("127.0.0.1"),
		jsdispatch.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		fmt.Printf("Failed to create registry: %v\n", err)
		return
	}

	// Pick a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Printf("Failed to find a port: %v\n", err)
		return
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	// Start a server with one function route
	err = registry.Start(port, jsdispatch.Routes{
		{Name: "hello", Source: jsdispatch.Script(`function () { return "Hello, World!"; }`)},
	})
	if err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		return
	}

	// Call the route over HTTP
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/api/hello")
	if err != nil {
		fmt.Printf("Request error: %v\n", err)
		return
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	fmt.Printf("%d %s\n", resp.StatusCode, body)

	// Stop every server
	if err := registry.Shutdown(context.Background()); err != nil {
		fmt.Printf("Failed to shut down: %v\n", err)
		return
	}

	// Output:
	// 200 "Hello, World!"
}
