// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketConfig holds configuration for the WebSocket client socket.
type WebSocketConfig struct {
	// Address is the HTTP listen address (host:port)
	Address string

	// Path is the endpoint that accepts WebSocket upgrades
	Path string

	// ShutdownTimeout bounds the HTTP server shutdown
	ShutdownTimeout time.Duration

	// InboxSize is the number of received messages buffered for Recv
	InboxSize int

	Logger *slog.Logger
}

// WebSocket exposes WebSocket clients as a client-facing Socket.
//
// Each connection is assigned a random identity. A received message surfaces
// as [identity, "", payload]; a zero-length message surfaces as
// [identity, ""] (a ping). Send routes by the first identity frame and writes
// the last payload frame; sequences for unknown identities are dropped.
type WebSocket struct {
	config   WebSocketConfig
	upgrader websocket.Upgrader
	inbox    chan [][]byte
	done     chan struct{}
	once     sync.Once

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

var (
	_ Socket       = (*WebSocket)(nil)
	_ http.Handler = (*WebSocket)(nil)
)

// NewWebSocket creates a WebSocket client socket. Call Listen to serve it,
// or mount it as an http.Handler.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}

	return &WebSocket{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		inbox: make(chan [][]byte, cfg.InboxSize),
		done:  make(chan struct{}),
		conns: make(map[string]*wsConn),
	}
}

// Listen serves WebSocket upgrades on the configured address and blocks
// until ctx is cancelled.
func (s *WebSocket) Listen(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s)
	server := &http.Server{
		Addr:              s.config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.config.Logger.Info("WebSocket server started",
		slog.String("address", s.config.Address),
		slog.String("path", s.config.Path))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.config.Logger.Error("error during WebSocket shutdown", slog.String("error", err.Error()))
			return err
		}
		s.config.Logger.Info("WebSocket server shutdown complete")
		return nil

	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// ServeHTTP upgrades the request and pumps its messages into the inbox.
func (s *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Error("failed to upgrade client connection",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	id := uuid.New()
	identity := append([]byte{}, id[:]...)
	key := string(identity)

	s.mu.Lock()
	s.conns[key] = &wsConn{conn: conn}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, key)
		s.mu.Unlock()
		conn.Close()
		s.config.Logger.Debug("websocket connection closed", slog.String("identity", id.String()))
	}()

	s.config.Logger.Debug("websocket connection upgraded",
		slog.String("remote", r.RemoteAddr),
		slog.String("identity", id.String()))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.config.Logger.Debug("websocket read error",
					slog.String("identity", id.String()),
					slog.String("error", err.Error()))
			}
			return
		}

		frames := Join([][]byte{identity})
		if len(payload) > 0 {
			frames = append(frames, payload)
		}

		select {
		case s.inbox <- frames:
		case <-s.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Send implements Socket.
func (s *WebSocket) Send(ctx context.Context, frames [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frames) == 0 {
		return nil
	}

	s.mu.RLock()
	c, ok := s.conns[string(frames[0])]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	var payload []byte
	if _, rest, err := Split(frames); err == nil && len(rest) > 0 {
		payload = rest[len(rest)-1]
	}
	msgType := websocket.BinaryMessage
	if utf8.Valid(payload) {
		msgType = websocket.TextMessage
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(msgType, payload)
}

// Recv implements Socket.
func (s *WebSocket) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case frames := <-s.inbox:
		return frames, nil
	case <-s.done:
		return nil, errors.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Socket. It closes every open connection.
func (s *WebSocket) Close() error {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			c.wmu.Lock()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			c.wmu.Unlock()
			c.conn.Close()
		}
	})
	return nil
}

// Connections returns the number of open connections.
func (s *WebSocket) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
