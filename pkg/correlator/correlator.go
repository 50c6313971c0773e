// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package correlator matches upstream replies to the requests awaiting them.
//
// The correlator owns the receive side of the upstream socket. A caller
// registers a Waiter before forwarding a request, then awaits it:
//
//	w := c.Expect(identity, msgID)
//	defer w.Cancel()
//	if err := upstream.Send(ctx, frames); err != nil {
//		return err
//	}
//	reply, err := w.Await(ctx)
//
// Replies with an empty payload are heartbeats and resolve the oldest
// heartbeat waiter registered for the same identity prefix. Any other reply
// is decoded and resolves the oldest waiter for its identity prefix and
// msg_id, so two clients reusing a msg_id never see each other's replies.
// Replies nobody waits for are dropped.
package correlator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/absmach/ctlproxy/pkg/codec"
	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/absmach/ctlproxy/pkg/transport"
)

// Correlator dispatches upstream replies to waiters.
type Correlator struct {
	sock   transport.Socket
	logger *slog.Logger

	mu         sync.Mutex
	replies    map[string][]*Waiter
	heartbeats map[string][]*Waiter
	closed     bool
}

// Waiter resolves exactly once with the matching reply.
type Waiter struct {
	c     *Correlator
	table map[string][]*Waiter
	key   string
	ch    chan [][]byte
}

// New creates a correlator reading from sock.
func New(sock transport.Socket, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		sock:       sock,
		logger:     logger,
		replies:    make(map[string][]*Waiter),
		heartbeats: make(map[string][]*Waiter),
	}
}

// Expect registers interest in the next reply tagged msgID and addressed to
// identity.
func (c *Correlator) Expect(identity [][]byte, msgID string) *Waiter {
	return c.register(c.replies, replyKey(identity, msgID))
}

func replyKey(identity [][]byte, msgID string) string {
	return transport.IdentityString(identity) + "/" + msgID
}

// ExpectHeartbeat registers interest in the next heartbeat addressed to
// identity.
func (c *Correlator) ExpectHeartbeat(identity [][]byte) *Waiter {
	return c.register(c.heartbeats, transport.IdentityString(identity))
}

func (c *Correlator) register(table map[string][]*Waiter, key string) *Waiter {
	w := &Waiter{c: c, table: table, key: key, ch: make(chan [][]byte, 1)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(w.ch)
		return w
	}
	table[key] = append(table[key], w)
	return w
}

// Await blocks until the reply arrives, ctx is done or the correlator stops.
func (w *Waiter) Await(ctx context.Context) ([][]byte, error) {
	select {
	case frames, ok := <-w.ch:
		if !ok {
			return nil, errors.ErrClosed
		}
		return frames, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel deregisters the waiter. It is safe to call after resolution.
func (w *Waiter) Cancel() {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()

	list := w.table[w.key]
	for i, other := range list {
		if other == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.table, w.key)
		return
	}
	w.table[w.key] = list
}

// Pending returns the number of registered reply and heartbeat waiters.
func (c *Correlator) Pending() (replies, heartbeats int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.replies {
		replies += len(l)
	}
	for _, l := range c.heartbeats {
		heartbeats += len(l)
	}
	return replies, heartbeats
}

// Run reads upstream replies until ctx is done or the socket fails. On
// return every outstanding waiter is released with ErrClosed.
func (c *Correlator) Run(ctx context.Context) error {
	defer c.shutdown()

	c.logger.Info("correlator running")
	for {
		frames, err := c.sock.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "correlator receive")
		}
		c.dispatch(frames)
	}
}

func (c *Correlator) dispatch(frames [][]byte) {
	identity, payload, err := transport.Split(frames)
	if err != nil {
		c.logger.Warn("dropping malformed upstream reply", slog.String("error", err.Error()))
		return
	}

	if len(payload) == 0 || len(payload[len(payload)-1]) == 0 {
		key := transport.IdentityString(identity)
		if !c.resolve(c.heartbeats, key, frames) {
			c.logger.Debug("dropping unexpected heartbeat", slog.String("ident", key))
		}
		return
	}

	env, err := codec.Decode(payload[len(payload)-1])
	if err != nil {
		c.logger.Warn("dropping undecodable upstream reply", slog.String("error", err.Error()))
		return
	}
	msgID := env.MsgID()
	if !c.resolve(c.replies, replyKey(identity, msgID), frames) {
		c.logger.Debug("dropping uncorrelated upstream reply",
			slog.String("ident", transport.IdentityString(identity)),
			slog.String("msg_id", msgID))
	}
}

func (c *Correlator) resolve(table map[string][]*Waiter, key string, frames [][]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := table[key]
	if len(list) == 0 {
		return false
	}
	w := list[0]
	if len(list) == 1 {
		delete(table, key)
	} else {
		table[key] = list[1:]
	}
	w.ch <- frames
	return true
}

func (c *Correlator) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for _, table := range []map[string][]*Waiter{c.replies, c.heartbeats} {
		for key, list := range table {
			for _, w := range list {
				close(w.ch)
			}
			delete(table, key)
		}
	}
}
