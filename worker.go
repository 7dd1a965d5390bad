// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// workerState represents the current state of a worker.
type workerState int32

const (
	stateIdle      workerState = iota // Waiting for the next call request
	stateExecuting                    // Running a handler
	stateStopped                      // Dispatch channel closed, engine released
)

// String returns the string representation of a workerState.
func (s workerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateExecuting:
		return "executing"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// worker owns one engine and its route table. It is the only goroutine
// that ever enters engine state, so invocations never overlap.
type worker struct {
	name    string        // Human-readable name for the worker
	factory EngineFactory // Creates the engine on the worker goroutine
	routes  Routes        // Route configuration compiled at init
	logger  *slog.Logger

	queue  *dispatchChannel // Incoming call requests
	initCh chan error       // Signals initialization completion
	done   chan struct{}    // Closed when the worker has stopped

	state  int32  // workerState (atomic)
	served uint64 // Number of invocations completed (atomic)
	failed uint64 // Number of invocations that returned an error (atomic)

	engine Engine
	table  routeTable
}

// newWorker creates a worker reading from queue.
func newWorker(name string, factory EngineFactory, routes Routes, queue *dispatchChannel, logger *slog.Logger) *worker {
	return &worker{
		name:    name,
		factory: factory,
		routes:  routes,
		logger:  logger,
		queue:   queue,
		initCh:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (w *worker) getState() workerState {
	return workerState(atomic.LoadInt32(&w.state))
}

func (w *worker) setState(s workerState) {
	atomic.StoreInt32(&w.state, int32(s))
}

// getServedCount returns the number of completed invocations (thread-safe).
func (w *worker) getServedCount() uint64 {
	return atomic.LoadUint64(&w.served)
}

// getFailedCount returns the number of failed invocations (thread-safe).
func (w *worker) getFailedCount() uint64 {
	return atomic.LoadUint64(&w.failed)
}

// init creates the engine and compiles the route table.
func (w *worker) init() error {
	if w.factory == nil {
		return ErrNoEngine
	}
	engine, err := w.factory()
	if err != nil {
		return fmt.Errorf("failed to create JS engine: %w", err)
	}
	w.engine = engine

	table, err := buildRouteTable(engine, w.routes)
	if err != nil {
		return err
	}
	w.table = table
	return nil
}

// run is the worker loop. It exits once the dispatch channel is closed
// and drained, or immediately if initialization fails.
func (w *worker) run() {
	// Engines such as V8 and QuickJS are bound to the creating OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		if w.engine != nil {
			if err := w.engine.Close(); err != nil {
				w.logger.Error("Failed to close JS engine",
					"worker", w.name,
					"error", err)
			}
			w.engine = nil
		}
		w.setState(stateStopped)
		close(w.done)
	}()

	if err := w.initSafely(); err != nil {
		w.initCh <- err
		close(w.initCh)
		w.logger.Debug("Worker initialization failed",
			"worker", w.name,
			"error", err)
		return
	}
	w.initCh <- nil
	close(w.initCh)

	w.logger.Debug("Worker started",
		"worker", w.name,
		"routes", len(w.table))

	for req := range w.queue.receive() {
		w.execute(req)
	}

	w.logger.Debug("Worker stopped",
		"worker", w.name,
		"served", w.getServedCount(),
		"failed", w.getFailedCount())
}

// initSafely runs init, turning a panic inside the engine into an error.
func (w *worker) initSafely() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during worker initialization: %v", r)
		}
	}()
	return w.init()
}

// execute invokes a single call request and delivers its result.
func (w *worker) execute(req *callRequest) {
	w.setState(stateExecuting)
	defer func() {
		if r := recover(); r != nil {
			req.resolve(Null(), fmt.Errorf("panic in worker %s: %v", w.name, r))
			atomic.AddUint64(&w.failed, 1)
			w.logger.Error("Handler panic",
				"worker", w.name,
				"route", req.route,
				"error", r)
		}
		atomic.AddUint64(&w.served, 1)
		w.setState(stateIdle)
	}()

	v, err := w.invoke(req.route)
	if err != nil {
		atomic.AddUint64(&w.failed, 1)
		w.logger.Warn("Handler failed",
			"worker", w.name,
			"route", req.route,
			"error", err)
	}
	req.resolve(v, err)
}

// invoke looks up and calls the route handler.
func (w *worker) invoke(route string) (Value, error) {
	h, ok := w.table[route]
	if !ok {
		return Null(), ErrRouteNotFound
	}
	return h.Invoke()
}

// stop closes the dispatch channel and waits for the worker to drain it.
func (w *worker) stop() {
	w.queue.close()
	<-w.done
}
