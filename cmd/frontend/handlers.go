// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/absmach/ctlproxy/pkg/handler"
	"github.com/absmach/ctlproxy/pkg/metrics"
	"github.com/absmach/ctlproxy/pkg/router"
	"github.com/absmach/ctlproxy/pkg/schema"
)

// otherCommand labels requests whose command has no schema. Clients choose
// command names freely, so only registered ones become label values.
const otherCommand = "other"

var _ handler.Handler = (*InstrumentedHandler)(nil)

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler  handler.Handler
	metrics  *metrics.Metrics
	commands *schema.Table
}

func (h *InstrumentedHandler) commandLabel(command string) string {
	if command == router.StatusCommand {
		return command
	}
	if h.commands != nil {
		if _, ok := h.commands.Lookup(command); ok {
			return command
		}
	}
	return otherCommand
}

// OnRequest implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnRequest(ctx context.Context, hctx *handler.Context) error {
	h.metrics.RequestSize.WithLabelValues(hctx.Transport).Observe(float64(hctx.RequestSize))
	return h.handler.OnRequest(ctx, hctx)
}

// OnReply implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnReply(ctx context.Context, hctx *handler.Context, reply []byte) error {
	h.metrics.ReplySize.WithLabelValues(hctx.Transport).Observe(float64(len(reply)))
	h.metrics.ObserveRequest(hctx.Transport, h.commandLabel(hctx.Command), "ok", hctx.Received)
	return h.handler.OnReply(ctx, hctx, reply)
}

// OnPing implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnPing(ctx context.Context, hctx *handler.Context) error {
	h.metrics.Pings.WithLabelValues(hctx.Transport).Inc()
	return h.handler.OnPing(ctx, hctx)
}

// OnReject implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnReject(ctx context.Context, hctx *handler.Context, err error) error {
	h.metrics.Rejections.WithLabelValues(hctx.Transport, errors.CodeOf(err).String()).Inc()
	h.metrics.ObserveRequest(hctx.Transport, h.commandLabel(hctx.Command), "error", hctx.Received)
	return h.handler.OnReject(ctx, hctx, err)
}
