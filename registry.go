// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// RegistryOption contains configuration options for a Registry
type RegistryOption struct {
	host              string        // Interface the listeners bind to
	queueSize         uint32        // Capacity of each dispatch channel
	shutdownTimeout   time.Duration // Upper bound for draining one server on stop
	readHeaderTimeout time.Duration // http.Server ReadHeaderTimeout
}

// serverHandle is the registry entry of one server instance.
type serverHandle struct {
	ready    chan struct{}   // Closed once start has succeeded or failed
	instance *serverInstance // Set before ready is closed; nil if start failed
}

// Registry is the table of running server instances keyed by port. All
// lookups, inserts and removals happen under a single mutex; starting and
// draining servers happen outside it.
type Registry struct {
	mu      sync.Mutex
	servers map[int]*serverHandle

	options       *RegistryOption
	engineFactory EngineFactory
	logger        *slog.Logger
}

// ServerOption configures a single Start call.
type ServerOption func(*serverConfig)

type serverConfig struct {
	engineFactory EngineFactory
}

// WithServerEngine overrides the registry engine for one server.
func WithServerEngine(factory EngineFactory) ServerOption {
	return func(cfg *serverConfig) {
		if factory != nil {
			cfg.engineFactory = factory
		}
	}
}

// NewRegistry creates a registry with the given options
func NewRegistry(opts ...func(*Registry)) (*Registry, error) {
	r := &Registry{
		servers: make(map[int]*serverHandle),
		logger:  slog.Default(), // Default logger
		options: &RegistryOption{
			host:              "0.0.0.0",        // All interfaces
			queueSize:         256,              // Default dispatch queue size
			shutdownTimeout:   30 * time.Second, // 30 second drain
			readHeaderTimeout: 10 * time.Second, // 10 second header read
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.engineFactory == nil {
		return nil, ErrNoEngine
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// WithEngine configures the default engine factory
func WithEngine(factory EngineFactory) func(*Registry) {
	return func(r *Registry) {
		r.engineFactory = factory
	}
}

// WithLogger configures the logger; nil discards all output
func WithLogger(logger *slog.Logger) func(*Registry) {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithHost(host string) func(*Registry) {
	return func(r *Registry) {
		if host != "" {
			r.options.host = host
		}
	}
}

func WithQueueSize(size uint32) func(*Registry) {
	return func(r *Registry) {
		if size > 0 {
			r.options.queueSize = size
		}
	}
}

func WithShutdownTimeout(timeout time.Duration) func(*Registry) {
	return func(r *Registry) {
		if timeout > 0 {
			r.options.shutdownTimeout = timeout
		}
	}
}

func WithReadHeaderTimeout(timeout time.Duration) func(*Registry) {
	return func(r *Registry) {
		if timeout > 0 {
			r.options.readHeaderTimeout = timeout
		}
	}
}

// Start compiles routes on a new worker and serves them on port. It fails
// if a server is already running on port, if any route fails to compile,
// or if the port cannot be bound; in each case nothing is left running.
func (r *Registry) Start(port int, routes Routes, opts ...ServerOption) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if err := routes.Validate(); err != nil {
		return err
	}

	cfg := &serverConfig{engineFactory: r.engineFactory}
	for _, opt := range opts {
		opt(cfg)
	}

	// Reserve the port so concurrent starts cannot both succeed.
	r.mu.Lock()
	if _, exists := r.servers[port]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w on port %d", ErrServerRunning, port)
	}
	h := &serverHandle{ready: make(chan struct{})}
	r.servers[port] = h
	r.mu.Unlock()

	inst, err := r.launch(port, routes, cfg)
	if err != nil {
		r.mu.Lock()
		if r.servers[port] == h {
			delete(r.servers, port)
		}
		r.mu.Unlock()
		close(h.ready)
		return err
	}
	h.instance = inst
	close(h.ready)

	r.logger.Info("API server running",
		"port", port,
		"address", "http://"+inst.listener.Addr().String()+"/api/<endpoint>",
		"routes", len(routes))
	return nil
}

// launch spawns the worker, waits for its route table and binds the listener.
func (r *Registry) launch(port int, routes Routes, cfg *serverConfig) (*serverInstance, error) {
	queue := newDispatchChannel(r.options.queueSize)
	w := newWorker("worker-"+strconv.Itoa(port), cfg.engineFactory, routes, queue, r.logger)
	go w.run()

	if err := <-w.initCh; err != nil {
		<-w.done
		return nil, err
	}

	addr := net.JoinHostPort(r.options.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		w.stop()
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	inst := newServerInstance(port, ln, w, queue, routes, r.options, r.logger)
	go inst.serve()
	return inst, nil
}

// Stop signals the server on port to shut down and waits for it to drain.
// It returns false if no server was running on port.
func (r *Registry) Stop(port int) bool {
	r.mu.Lock()
	h, ok := r.servers[port]
	if ok {
		delete(r.servers, port)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Info("No API server running", "port", port)
		return false
	}

	// A concurrent Start may still be launching this server.
	<-h.ready
	if h.instance == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.options.shutdownTimeout)
	defer cancel()
	if err := h.instance.shutdown(ctx); err != nil {
		r.logger.Warn("API server stopped with errors",
			"port", port,
			"error", err)
	}
	return true
}

// Running returns the ports of all registered servers in ascending order.
func (r *Registry) Running() []int {
	r.mu.Lock()
	ports := make([]int, 0, len(r.servers))
	for port := range r.servers {
		ports = append(ports, port)
	}
	r.mu.Unlock()
	sort.Ints(ports)
	return ports
}

// Addr returns the bound address of the server on port.
func (r *Registry) Addr(port int) (net.Addr, bool) {
	r.mu.Lock()
	h, ok := r.servers[port]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-h.ready
	if h.instance == nil {
		return nil, false
	}
	return h.instance.listener.Addr(), true
}

// Shutdown stops every running server concurrently. It returns ctx.Err()
// if ctx expires before all servers have stopped.
func (r *Registry) Shutdown(ctx context.Context) error {
	ports := r.Running()
	var wg sync.WaitGroup
	for _, port := range ports {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			r.Stop(p)
		}(port)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown of %d server(s) incomplete: %w", len(ports), ctx.Err())
	}
}
