// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/ctlproxy/pkg/breaker"
	"github.com/absmach/ctlproxy/pkg/codec"
	"github.com/absmach/ctlproxy/pkg/correlator"
	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/absmach/ctlproxy/pkg/handler"
	"github.com/absmach/ctlproxy/pkg/metrics"
	"github.com/absmach/ctlproxy/pkg/schema"
	"github.com/absmach/ctlproxy/pkg/transport"
	"github.com/google/uuid"
)

const (
	// StatusCommand is the command whose replies get a status block.
	StatusCommand = "get_status"

	// DefaultName is the module name reported in status blocks.
	DefaultName = "frontend"
)

// ErrShutdownTimeout is returned when in-flight requests outlive the
// configured shutdown timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the router configuration.
type Config struct {
	// Name is the module name reported by get_status
	Name string

	// Transport labels the client-facing socket in logs and hooks
	Transport string

	// ReplyTimeout bounds the wait for an upstream reply. Zero waits forever.
	ReplyTimeout time.Duration

	// MaxInflight bounds the number of requests awaiting upstream.
	// Zero means no bound.
	MaxInflight int

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during shutdown. After this timeout they are cancelled.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// Correlator resolves upstream replies for forwarded requests.
type Correlator interface {
	Expect(identity [][]byte, msgID string) *correlator.Waiter
	ExpectHeartbeat(identity [][]byte) *correlator.Waiter
}

// Router validates client requests, forwards them upstream tagged with a
// msg_id and relays each correlated reply to the client that asked.
type Router struct {
	config   Config
	client   transport.Socket
	upstream transport.Socket
	corr     Correlator
	schemas  *schema.Table
	status   *metrics.Status
	handler  handler.Handler
	breaker  *breaker.CircuitBreaker
	reporter *Reporter
	tasks    *registry
	newID    func() string
	wg       sync.WaitGroup
}

// Option customizes a Router.
type Option func(*Router)

// WithSchemas replaces the default schema table.
func WithSchemas(t *schema.Table) Option {
	return func(r *Router) { r.schemas = t }
}

// WithStatus shares status counters between routers.
func WithStatus(s *metrics.Status) Option {
	return func(r *Router) { r.status = s }
}

// WithHandler sets the lifecycle hooks.
func WithHandler(h handler.Handler) Option {
	return func(r *Router) { r.handler = h }
}

// WithBreaker guards upstream round trips with cb.
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(r *Router) { r.breaker = cb }
}

// WithIDGenerator replaces the msg_id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

// New creates a router between the client-facing socket and upstream.
// Replies to forwarded requests are resolved through corr, which must be
// reading from upstream.
func New(cfg Config, client, upstream transport.Socket, corr Correlator, opts ...Option) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Transport == "" {
		cfg.Transport = "zmq"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	r := &Router{
		config:   cfg,
		client:   client,
		upstream: upstream,
		corr:     corr,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.schemas == nil {
		r.schemas = schema.Default()
	}
	if r.status == nil {
		r.status = metrics.NewStatus(cfg.Name, nil)
	}
	if r.handler == nil {
		r.handler = &handler.NoopHandler{}
	}
	r.tasks = newRegistry(cfg.MaxInflight)
	r.reporter = NewReporter(client, r.status, r.newID)

	return r
}

// Serve receives client frame sequences until ctx is cancelled, handling
// each on its own goroutine. On shutdown it waits for in-flight requests to
// drain before returning.
func (r *Router) Serve(ctx context.Context) error {
	logger := r.config.Logger
	logger.Info("router running", slog.String("transport", r.config.Transport))

	// Tasks outlive ctx so they can drain during shutdown.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	var recvErr error
	for {
		frames, err := r.client.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, errors.ErrClosed) || errors.Is(err, context.Canceled) {
				recvErr = errors.Wrap(err, "client socket")
				break
			}
			logger.Error("failed to receive client message", slog.String("error", err.Error()))
			continue
		}
		r.dispatch(taskCtx, frames, time.Now())
	}

	logger.Info("router stopping, draining in-flight requests", slog.Int("inflight", r.tasks.len()))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight requests completed")
		return recvErr
	case <-time.After(r.config.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, cancelling in-flight requests", slog.Int("inflight", r.tasks.len()))
		cancelTasks()
		r.tasks.cancelAll()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return ErrShutdownTimeout
	}
}

// dispatch splits one inbound sequence and starts its task. It never blocks.
func (r *Router) dispatch(ctx context.Context, frames [][]byte, received time.Time) {
	identity, payload, err := transport.Split(frames)
	if err != nil {
		// No reliable identity to answer.
		r.status.InvalidMessage()
		r.config.Logger.Error("dropping malformed client message",
			slog.Int("frames", len(frames)),
			slog.String("error", err.Error()))
		return
	}

	r.status.MessageHandled()
	hctx := &handler.Context{
		Identity:  identity,
		Transport: r.config.Transport,
		Received:  received,
	}

	r.wg.Add(1)
	if len(payload) == 0 || len(payload[len(payload)-1]) == 0 {
		go func() {
			defer r.wg.Done()
			r.handlePing(ctx, hctx, frames)
		}()
		return
	}

	raw := payload[len(payload)-1]
	go func() {
		defer r.wg.Done()
		r.handleRequest(ctx, hctx, raw)
	}()
}

// handlePing relays a heartbeat and its pong. A heartbeat that cannot be
// relayed is dropped without an error reply: the client's own heartbeat
// timeout is the failure signal.
func (r *Router) handlePing(ctx context.Context, hctx *handler.Context, frames [][]byte) {
	taskCtx, release, err := r.tasks.add(ctx, hctx.Identity, "")
	if err != nil {
		r.dropPing(hctx, err)
		return
	}
	defer release()

	reply, err := r.roundTrip(taskCtx, frames, func() *correlator.Waiter {
		return r.corr.ExpectHeartbeat(hctx.Identity)
	})
	if err != nil {
		r.dropPing(hctx, err)
		return
	}

	if err := r.client.Send(ctx, reply); err != nil {
		r.dropPing(hctx, err)
		return
	}
	r.notify("OnPing", hctx, r.handler.OnPing(ctx, hctx))
}

func (r *Router) dropPing(hctx *handler.Context, err error) {
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	r.config.Logger.Log(context.Background(), level, "dropping heartbeat",
		slog.String("ident", transport.IdentityString(hctx.Identity)),
		slog.String("error", err.Error()))
}

func (r *Router) handleRequest(ctx context.Context, hctx *handler.Context, raw []byte) {
	env, err := codec.Decode(raw)
	if err != nil {
		r.reject(ctx, hctx, err)
		return
	}
	if env.EnsureMsgID(r.newID) {
		r.status.MsgIDAdded()
	}
	hctx.MsgID = env.MsgID()

	if err := r.forward(ctx, hctx, env); err != nil {
		r.reject(ctx, hctx, err)
	}
}

func (r *Router) forward(ctx context.Context, hctx *handler.Context, env codec.Envelope) error {
	cmd, err := env.Command()
	if err != nil {
		return err
	}
	hctx.Command = cmd
	if err := r.schemas.Validate(cmd, env); err != nil {
		return err
	}

	out, err := codec.Encode(env)
	if err != nil {
		return err
	}
	hctx.RequestSize = len(out)

	taskCtx, release, err := r.tasks.add(ctx, hctx.Identity, hctx.MsgID)
	if err != nil {
		return errors.Generic("dispatch", err)
	}
	defer release()

	ident := transport.IdentityString(hctx.Identity)
	r.notify("OnRequest", hctx, r.handler.OnRequest(taskCtx, hctx))
	r.config.Logger.Debug(">",
		slog.String("ident", ident),
		slog.String("command", cmd),
		slog.String("msg_id", hctx.MsgID))

	reply, err := r.roundTrip(taskCtx, transport.Join(hctx.Identity, out), func() *correlator.Waiter {
		return r.corr.Expect(hctx.Identity, hctx.MsgID)
	})
	if err != nil {
		return err
	}

	_, payload, err := transport.Split(reply)
	if err != nil || len(payload) == 0 {
		return errors.Generic("relay", fmt.Errorf("upstream reply has no payload"))
	}
	body := payload[len(payload)-1]
	if cmd == StatusCommand {
		if body, err = r.augment(body); err != nil {
			return err
		}
	}

	r.notify("OnReply", hctx, r.handler.OnReply(taskCtx, hctx, body))
	r.config.Logger.Debug("<",
		slog.String("ident", ident),
		slog.String("command", cmd),
		slog.String("msg_id", hctx.MsgID))

	if err := r.client.Send(ctx, transport.Join(hctx.Identity, body)); err != nil {
		return errors.Generic("relay", err)
	}
	return nil
}

// roundTrip registers a waiter, sends frames upstream and awaits the reply.
func (r *Router) roundTrip(ctx context.Context, frames [][]byte, expect func() *correlator.Waiter) ([][]byte, error) {
	var reply [][]byte
	call := func() error {
		w := expect()
		defer w.Cancel()

		if err := r.upstream.Send(ctx, frames); err != nil {
			return errors.Wrap(err, "upstream send")
		}

		waitCtx := ctx
		if r.config.ReplyTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, r.config.ReplyTimeout)
			defer cancel()
		}

		var err error
		reply, err = w.Await(waitCtx)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return errors.ErrReplyTimeout
		}
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Generic("forward", err)
	}
	return reply, nil
}

// augment prepends the status block to the content list of a get_status reply.
func (r *Router) augment(body []byte) ([]byte, error) {
	env, err := codec.Decode(body)
	if err != nil {
		return nil, errors.Generic("get_status", err)
	}

	var list []any
	if v, ok := env.Content(); ok && v != nil {
		if list, ok = v.([]any); !ok {
			return nil, errors.Generic("get_status", fmt.Errorf("reply content is %s, expected list", codec.TypeName(v)))
		}
	}
	env[codec.FieldContent] = append([]any{r.status.Snapshot().Map()}, list...)

	return codec.Encode(env)
}

// reject reports err to the client. Cancelled tasks are abandoned silently.
func (r *Router) reject(ctx context.Context, hctx *handler.Context, err error) {
	if errors.Is(err, context.Canceled) {
		r.config.Logger.Debug("request cancelled",
			slog.String("ident", transport.IdentityString(hctx.Identity)),
			slog.String("msg_id", hctx.MsgID))
		return
	}

	code := errors.CodeOf(err)
	r.config.Logger.Error("rejecting request",
		slog.String("ident", transport.IdentityString(hctx.Identity)),
		slog.String("msg_id", hctx.MsgID),
		slog.String("code", code.String()),
		slog.String("error", err.Error()))

	msgID, sendErr := r.reporter.Report(ctx, hctx.Identity, hctx.MsgID, code, errors.DetailOf(err))
	hctx.MsgID = msgID
	if sendErr != nil {
		r.config.Logger.Warn("failed to send error reply",
			slog.String("msg_id", msgID),
			slog.String("error", sendErr.Error()))
	}
	r.notify("OnReject", hctx, r.handler.OnReject(ctx, hctx, err))
}

func (r *Router) notify(hook string, hctx *handler.Context, err error) {
	if err != nil {
		r.config.Logger.Warn("handler error",
			slog.String("hook", hook),
			slog.String("msg_id", hctx.MsgID),
			slog.String("error", err.Error()))
	}
}

// Status returns the counters reported by get_status.
func (r *Router) Status() *metrics.Status {
	return r.status
}

// Inflight returns the requests currently awaiting upstream, oldest first.
func (r *Router) Inflight() []Task {
	return r.tasks.list()
}

// InflightCount returns the number of requests awaiting upstream.
func (r *Router) InflightCount() int {
	return r.tasks.len()
}

// MaxInflight returns the in-flight bound, zero when unbounded.
func (r *Router) MaxInflight() int {
	return r.config.MaxInflight
}

// Cancel abandons the requests of identity awaiting msgID and returns how
// many were cancelled. Cancelled requests get no reply.
func (r *Router) Cancel(identity [][]byte, msgID string) int {
	return r.tasks.cancel(identity, msgID)
}
