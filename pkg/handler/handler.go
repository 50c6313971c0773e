// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"time"
)

// Context carries request metadata across handler calls.
type Context struct {
	// Identity is the client's address prefix, echoed on every reply
	Identity [][]byte

	// MsgID is the correlation id of the request (empty for pings)
	MsgID string

	// Command is the request command (empty for pings and undecodable requests)
	Command string

	// Transport names the client-facing socket (zmq, ws)
	Transport string

	// Received is when the frame sequence was read from the client socket
	Received time.Time

	// RequestSize is the forwarded payload size in bytes
	RequestSize int
}

// Handler receives notifications from the router as a request moves through
// its lifecycle. Errors returned by handlers are logged; they never change
// how the request is routed.
type Handler interface {
	// OnRequest is called after validation, before the request is forwarded.
	OnRequest(ctx context.Context, hctx *Context) error

	// OnReply is called before the (possibly augmented) reply is relayed.
	OnReply(ctx context.Context, hctx *Context, reply []byte) error

	// OnPing is called after a heartbeat reply has been relayed.
	OnPing(ctx context.Context, hctx *Context) error

	// OnReject is called when an error reply is sent to the client.
	OnReject(ctx context.Context, hctx *Context, err error) error
}

// NoopHandler is a Handler implementation that ignores all events.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) OnRequest(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnReply(ctx context.Context, hctx *Context, reply []byte) error {
	return nil
}

func (h *NoopHandler) OnPing(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnReject(ctx context.Context, hctx *Context, err error) error {
	return nil
}

// Chain fans every event out to handlers in order and joins their errors.
type Chain []Handler

var _ Handler = (Chain)(nil)

func (c Chain) OnRequest(ctx context.Context, hctx *Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnRequest(ctx, hctx))
	}
	return errors.Join(errs...)
}

func (c Chain) OnReply(ctx context.Context, hctx *Context, reply []byte) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnReply(ctx, hctx, reply))
	}
	return errors.Join(errs...)
}

func (c Chain) OnPing(ctx context.Context, hctx *Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnPing(ctx, hctx))
	}
	return errors.Join(errs...)
}

func (c Chain) OnReject(ctx context.Context, hctx *Context, err error) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnReject(ctx, hctx, err))
	}
	return errors.Join(errs...)
}
