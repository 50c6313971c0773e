// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync/atomic"
	"time"
)

// StatusBlock is the self-diagnostics record prepended to get_status replies.
type StatusBlock struct {
	Name               string  `json:"name"`
	Uptime             float64 `json:"uptime"`
	NumMessagesHandled uint64  `json:"num_messages_handled"`
	NumMsgIDsAdded     uint64  `json:"num_msg_ids_added"`
	NumInvalidMessages uint64  `json:"num_invalid_messages"`
}

// Map returns the block as a JSON-ready record.
func (b StatusBlock) Map() map[string]any {
	return map[string]any{
		"name":                 b.Name,
		"uptime":               b.Uptime,
		"num_messages_handled": b.NumMessagesHandled,
		"num_msg_ids_added":    b.NumMsgIDsAdded,
		"num_invalid_messages": b.NumInvalidMessages,
	}
}

// Status holds the process-wide counters reported by get_status.
// Counters only grow; they are never reset.
type Status struct {
	name    string
	started time.Time
	now     func() time.Time
	mirror  *Metrics

	handled atomic.Uint64
	added   atomic.Uint64
	invalid atomic.Uint64
}

// NewStatus starts the uptime clock for module name. When m is not nil every
// increment is mirrored into its Prometheus counters.
func NewStatus(name string, m *Metrics) *Status {
	return &Status{
		name:    name,
		started: time.Now(),
		now:     time.Now,
		mirror:  m,
	}
}

// MessageHandled counts one request or ping attempt.
func (s *Status) MessageHandled() {
	s.handled.Add(1)
	if s.mirror != nil {
		s.mirror.MessagesHandled.Inc()
	}
}

// MsgIDAdded counts one generated correlation id.
func (s *Status) MsgIDAdded() {
	s.added.Add(1)
	if s.mirror != nil {
		s.mirror.MsgIDsAdded.Inc()
	}
}

// InvalidMessage counts one rejected message.
func (s *Status) InvalidMessage() {
	s.invalid.Add(1)
	if s.mirror != nil {
		s.mirror.InvalidMessages.Inc()
	}
}

// Snapshot reads the counters.
func (s *Status) Snapshot() StatusBlock {
	uptime := s.now().Sub(s.started).Seconds()
	if uptime < 0 {
		uptime = 0
	}
	return StatusBlock{
		Name:               s.name,
		Uptime:             uptime,
		NumMessagesHandled: s.handled.Load(),
		NumMsgIDsAdded:     s.added.Load(),
		NumInvalidMessages: s.invalid.Load(),
	}
}
