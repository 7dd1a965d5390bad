// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

// callResult is the outcome of one invocation: a value or an error, never both.
type callResult struct {
	value Value // Handler result (Null if err is set)
	err   error // Failure raised while invoking or converting
}

// callRequest asks the worker to invoke one route.
type callRequest struct {
	route string           // Route name to invoke
	reply chan *callResult // One-shot reply slot
}

// newCallRequest creates a call request for the given route.
func newCallRequest(route string) *callRequest {
	return &callRequest{
		route: route,
		reply: make(chan *callResult, 1), // Buffered so an abandoned reply never blocks the worker
	}
}

// resolve delivers the result. Only the first call has an effect.
func (c *callRequest) resolve(v Value, err error) {
	if err != nil {
		v = Null()
	}
	select {
	case c.reply <- &callResult{value: v, err: err}:
	default:
	}
}
