// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"context"
	"sync"
)

// dispatchChannel is the FIFO hand-off between request goroutines (many
// producers) and the worker (single consumer). Sending after close reports
// ErrDispatchUnavailable instead of panicking.
type dispatchChannel struct {
	mu     sync.RWMutex
	closed bool
	queue  chan *callRequest
}

// newDispatchChannel creates a dispatch channel holding up to size pending requests.
func newDispatchChannel(size uint32) *dispatchChannel {
	return &dispatchChannel{
		queue: make(chan *callRequest, size),
	}
}

// send enqueues req, blocking while the queue is full until ctx is done.
func (d *dispatchChannel) send(ctx context.Context, req *callRequest) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatchUnavailable
	}
	select {
	case d.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receive returns the consumer side of the channel.
func (d *dispatchChannel) receive() <-chan *callRequest {
	return d.queue
}

// close stops accepting requests. Requests already queued stay readable.
func (d *dispatchChannel) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

// pending returns the number of queued requests.
func (d *dispatchChannel) pending() int {
	return len(d.queue)
}
