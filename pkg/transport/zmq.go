// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/go-zeromq/zmq4"
)

// DialRetry is the pause between upstream connection attempts.
var DialRetry = 250 * time.Millisecond

// ZMQSocket adapts a ZeroMQ ROUTER or DEALER socket to Socket.
//
// A single reader goroutine owns the blocking zmq4 Recv and hands sequences
// to Recv callers, so a Recv abandoned through its context loses nothing.
type ZMQSocket struct {
	sock zmq4.Socket
	mu   sync.Mutex

	inbox   chan [][]byte
	readErr error

	ready   chan struct{}
	dialErr error
	retry   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

var _ Socket = (*ZMQSocket)(nil)

func newZMQSocket(sock zmq4.Socket) *ZMQSocket {
	s := &ZMQSocket{
		sock:  sock,
		inbox: make(chan [][]byte),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.read()
	return s
}

// ListenRouter binds a ROUTER socket to endpoint. This is the client-facing
// side: received sequences start with the peer's routing identity.
func ListenRouter(ctx context.Context, endpoint string) (*ZMQSocket, error) {
	sock := zmq4.NewRouter(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to bind router on %s: %w", endpoint, err)
	}
	s := newZMQSocket(sock)
	close(s.ready)
	return s, nil
}

// DialDealer creates a DEALER socket with a fixed identity connecting to
// endpoint. This is the upstream-facing side. The connection is made in the
// background until it succeeds or ctx is done; Send blocks until then.
func DialDealer(ctx context.Context, endpoint, identity string, logger *slog.Logger) *ZMQSocket {
	if logger == nil {
		logger = slog.Default()
	}
	sock := zmq4.NewDealer(ctx,
		zmq4.WithID(zmq4.SocketIdentity(identity)),
		zmq4.WithDialerRetry(DialRetry),
	)
	s := newZMQSocket(sock)
	s.retry = DialRetry
	go s.dial(ctx, endpoint, logger)
	return s
}

func (s *ZMQSocket) dial(ctx context.Context, endpoint string, logger *slog.Logger) {
	defer close(s.ready)

	for attempt := 1; ; attempt++ {
		err := s.sock.Dial(endpoint)
		if err == nil {
			if attempt > 1 {
				logger.Info("connected to upstream", slog.String("endpoint", endpoint))
			}
			return
		}
		logger.Warn("upstream not reachable, retrying",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			s.dialErr = fmt.Errorf("failed to connect dealer to %s: %w", endpoint, ctx.Err())
			return
		case <-s.done:
			s.dialErr = errors.ErrClosed
			return
		case <-time.After(s.retry):
		}
	}
}

func (s *ZMQSocket) read() {
	defer close(s.inbox)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			s.readErr = err
			return
		}
		select {
		case s.inbox <- msg.Frames:
		case <-s.done:
			return
		}
	}
}

// Connected reports whether the socket is bound or its dial succeeded.
func (s *ZMQSocket) Connected() bool {
	select {
	case <-s.ready:
		return s.dialErr == nil
	default:
		return false
	}
}

// Send implements Socket.
func (s *ZMQSocket) Send(ctx context.Context, frames [][]byte) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.ErrClosed
	}
	if s.dialErr != nil {
		return s.dialErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sock.Send(zmq4.NewMsgFrom(frames...))
}

// Recv implements Socket.
func (s *ZMQSocket) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case frames, ok := <-s.inbox:
		if !ok {
			return nil, s.recvErr()
		}
		return frames, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errors.ErrClosed
	}
}

func (s *ZMQSocket) recvErr() error {
	select {
	case <-s.done:
		return errors.ErrClosed
	default:
		// The reader is gone; the socket cannot deliver again.
		return fmt.Errorf("zmq recv: %w: %w", errors.ErrClosed, s.readErr)
	}
}

// Close implements Socket.
func (s *ZMQSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.sock.Close()
	})
	return err
}
