// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	notFoundBody    = "Not found"
	unavailableBody = "execution unavailable"
)

// serverInstance is one bound listener plus its worker and route table.
type serverInstance struct {
	port     int
	listener net.Listener
	http     *http.Server
	worker   *worker
	queue    *dispatchChannel
	routes   map[string]struct{}
	logger   *slog.Logger
	started  time.Time
	served   chan struct{} // Closed when Serve returns
}

// newServerInstance wires an HTTP server for routes to an already
// initialized worker.
func newServerInstance(port int, ln net.Listener, w *worker, queue *dispatchChannel, routes Routes, opts *RegistryOption, logger *slog.Logger) *serverInstance {
	s := &serverInstance{
		port:     port,
		listener: ln,
		worker:   w,
		queue:    queue,
		routes:   make(map[string]struct{}, len(routes)),
		logger:   logger,
		started:  time.Now(),
		served:   make(chan struct{}),
	}
	for _, name := range routes.Names() {
		s.routes[name] = struct{}{}
	}
	s.http = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: opts.readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	return s
}

// handler builds the router: GET /api/{name} for configured routes, 404 for
// everything else.
func (s *serverInstance) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{name}", s.handleCall)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusNotFound, notFoundBody)
	})
	return mux
}

// serve accepts connections until shutdown.
func (s *serverInstance) serve() {
	defer close(s.served)
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server failed",
			"port", s.port,
			"error", err)
	}
}

// handleCall forwards one request to the worker and renders the reply.
func (s *serverInstance) handleCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.routes[name]; !ok {
		writeText(w, http.StatusNotFound, notFoundBody)
		return
	}

	req := newCallRequest(name)
	if err := s.queue.send(r.Context(), req); err != nil {
		if errors.Is(err, ErrDispatchUnavailable) {
			writeText(w, http.StatusInternalServerError, unavailableBody)
		}
		// Otherwise the requester is gone; nothing to write to.
		return
	}

	select {
	case res := <-req.reply:
		s.render(w, name, res)
	case <-s.worker.done:
		// The worker may have replied just before stopping.
		select {
		case res := <-req.reply:
			s.render(w, name, res)
		default:
			writeText(w, http.StatusInternalServerError, unavailableBody)
		}
	case <-r.Context().Done():
		s.logger.Debug("Requester left before reply",
			"port", s.port,
			"route", name)
	}
}

// render writes a call result as an HTTP response.
func (s *serverInstance) render(w http.ResponseWriter, route string, res *callResult) {
	if res.err != nil {
		writeText(w, http.StatusInternalServerError, res.err.Error())
		return
	}
	body, err := res.value.MarshalJSON()
	if err != nil {
		s.logger.Error("Failed to encode result",
			"port", s.port,
			"route", route,
			"error", err)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// shutdown stops accepting connections, drains in-flight requests and
// releases the worker. An invocation already running is never aborted;
// once ctx expires the worker is left to finish on its own.
func (s *serverInstance) shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing connections",
			"port", s.port,
			"error", err)
		_ = s.http.Close()
	}
	<-s.served

	stopped := make(chan struct{})
	go func() {
		s.worker.stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("Worker still busy after shutdown timeout",
			"port", s.port,
			"pending", s.queue.pending())
		if err == nil {
			err = ctx.Err()
		}
	}

	s.logger.Info("API server stopped",
		"port", s.port,
		"served", s.worker.getServedCount(),
		"uptime", time.Since(s.started))
	return err
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
