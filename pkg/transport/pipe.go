// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"

	"github.com/absmach/ctlproxy/pkg/errors"
)

const pipeBuffer = 256

// PipeEnd is one end of an in-memory socket pair.
type PipeEnd struct {
	in   <-chan [][]byte
	out  chan<- [][]byte
	done chan struct{}
	once *sync.Once
}

var _ Socket = (*PipeEnd)(nil)

// NewPipe returns two connected sockets: frames sent on one are received on
// the other. Closing either end closes both.
func NewPipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan [][]byte, pipeBuffer)
	ba := make(chan [][]byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &PipeEnd{in: ba, out: ab, done: done, once: once}
	b := &PipeEnd{in: ab, out: ba, done: done, once: once}
	return a, b
}

// Send implements Socket.
func (p *PipeEnd) Send(ctx context.Context, frames [][]byte) error {
	select {
	case <-p.done:
		return errors.ErrClosed
	default:
	}

	select {
	case p.out <- Clone(frames):
		return nil
	case <-p.done:
		return errors.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements Socket.
func (p *PipeEnd) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case frames := <-p.in:
		return frames, nil
	case <-p.done:
		return nil, errors.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Socket.
func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
