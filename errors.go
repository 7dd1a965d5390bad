// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"errors"
	"fmt"
)

var (
	ErrServerRunning       = errors.New("server already running")
	ErrInvalidPort         = errors.New("invalid port")
	ErrInvalidRouteName    = errors.New("invalid route name")
	ErrDuplicateRoute      = errors.New("duplicate route")
	ErrRouteNotFound       = errors.New("route not found")
	ErrDispatchUnavailable = errors.New("execution unavailable")
	ErrNoEngine            = errors.New("engine factory must be provided")
)

// CompileError reports a route whose handler could not be prepared at
// registration time. It aborts the whole route table build.
type CompileError struct {
	Route string // Offending route name
	Err   error  // Underlying compiler or evaluation diagnostic
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile route %q: %v", e.Route, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
