// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"testing"
)

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		Identity:  [][]byte{[]byte("client")},
		MsgID:     "msg-1",
		Command:   "get_status",
		Transport: "zmq",
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "OnRequest",
			fn:   func() error { return handler.OnRequest(ctx, hctx) },
		},
		{
			name: "OnReply",
			fn:   func() error { return handler.OnReply(ctx, hctx, []byte(" {}")) },
		},
		{
			name: "OnPing",
			fn:   func() error { return handler.OnPing(ctx, hctx) },
		},
		{
			name: "OnReject",
			fn:   func() error { return handler.OnReject(ctx, hctx, errors.New("rejected")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

// MockHandler is a mock implementation for testing.
type MockHandler struct {
	RequestErr error

	RequestCalled bool
	ReplyCalled   bool
	PingCalled    bool
	RejectCalled  bool

	LastReply  []byte
	LastReject error
}

func (m *MockHandler) OnRequest(ctx context.Context, hctx *Context) error {
	m.RequestCalled = true
	return m.RequestErr
}

func (m *MockHandler) OnReply(ctx context.Context, hctx *Context, reply []byte) error {
	m.ReplyCalled = true
	m.LastReply = reply
	return nil
}

func (m *MockHandler) OnPing(ctx context.Context, hctx *Context) error {
	m.PingCalled = true
	return nil
}

func (m *MockHandler) OnReject(ctx context.Context, hctx *Context, err error) error {
	m.RejectCalled = true
	m.LastReject = err
	return nil
}

func TestChain(t *testing.T) {
	errA := errors.New("a failed")
	a := &MockHandler{RequestErr: errA}
	b := &MockHandler{}
	chain := Chain{a, b}

	ctx := context.Background()
	hctx := &Context{MsgID: "m"}

	err := chain.OnRequest(ctx, hctx)
	if !errors.Is(err, errA) {
		t.Errorf("OnRequest() = %v, want %v", err, errA)
	}
	if !a.RequestCalled || !b.RequestCalled {
		t.Error("Expected every handler in chain to see OnRequest")
	}

	if err := chain.OnReply(ctx, hctx, []byte("reply")); err != nil {
		t.Errorf("OnReply() = %v", err)
	}
	if string(b.LastReply) != "reply" {
		t.Errorf("LastReply = %q", b.LastReply)
	}

	rejected := errors.New("bad")
	if err := chain.OnReject(ctx, hctx, rejected); err != nil {
		t.Errorf("OnReject() = %v", err)
	}
	if a.LastReject != rejected || b.LastReject != rejected {
		t.Error("Expected OnReject to pass the error through")
	}

	if err := chain.OnPing(ctx, hctx); err != nil {
		t.Errorf("OnPing() = %v", err)
	}
	if !a.PingCalled || !b.PingCalled {
		t.Error("Expected OnPing on every handler")
	}

	if err := (Chain{}).OnRequest(ctx, hctx); err != nil {
		t.Errorf("empty chain OnRequest() = %v", err)
	}
}
