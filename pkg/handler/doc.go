// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the notification hooks the router calls while a
// request is processed.
//
// # Lifecycle
//
//	Client → Router (decode, validate) → OnRequest → Upstream
//	Upstream → Router (correlate, augment) → OnReply → Client
//	Client ping → Upstream heartbeat → Client → OnPing
//	Any failure → error reply → OnReject
//
// Handlers observe; they cannot veto or rewrite a request. Errors they return
// are logged by the router and otherwise ignored.
//
// # Context
//
// The Context struct carries request metadata across all handler calls:
//   - Identity: Client address frames
//   - MsgID: Correlation id (generated if the client sent none)
//   - Command: Request command
//   - Transport: Client-facing socket name (zmq, ws)
//   - Received: Receive timestamp, for latency measurement
//
// # Composition
//
// Chain fans events out to several handlers:
//
//	h := handler.Chain{simple.New(logger), instrumented}
package handler
