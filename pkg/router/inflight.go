// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/absmach/ctlproxy/pkg/transport"
)

// Task describes one request or ping waiting on upstream.
type Task struct {
	Identity string    `json:"ident"`
	MsgID    string    `json:"msg_id"`
	Started  time.Time `json:"started"`
}

type taskEntry struct {
	Task
	id     uint64
	cancel context.CancelFunc
}

// registry tracks in-flight tasks keyed by identity and msg_id. It is
// bounded: Add fails with ErrTooManyInflight once limit tasks are running.
type registry struct {
	mu    sync.Mutex
	limit int
	seq   uint64
	tasks map[string]map[uint64]*taskEntry
	size  int
}

func newRegistry(limit int) *registry {
	return &registry{
		limit: limit,
		tasks: make(map[string]map[uint64]*taskEntry),
	}
}

func taskKey(identity, msgID string) string {
	return identity + "/" + msgID
}

// add derives a cancellable context for a task and registers it. The
// returned release func must be called when the task ends.
func (r *registry) add(parent context.Context, identity [][]byte, msgID string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && r.size >= r.limit {
		return nil, nil, errors.ErrTooManyInflight
	}

	ctx, cancel := context.WithCancel(parent)
	ident := transport.IdentityString(identity)
	key := taskKey(ident, msgID)
	r.seq++
	id := r.seq

	if r.tasks[key] == nil {
		r.tasks[key] = make(map[uint64]*taskEntry)
	}
	r.tasks[key][id] = &taskEntry{
		Task:   Task{Identity: ident, MsgID: msgID, Started: time.Now()},
		id:     id,
		cancel: cancel,
	}
	r.size++

	release := func() {
		cancel()
		r.mu.Lock()
		defer r.mu.Unlock()
		if entries, ok := r.tasks[key]; ok {
			if _, ok := entries[id]; ok {
				delete(entries, id)
				r.size--
			}
			if len(entries) == 0 {
				delete(r.tasks, key)
			}
		}
	}
	return ctx, release, nil
}

// cancel cancels every task of identity waiting on msgID and returns how
// many were cancelled.
func (r *registry) cancel(identity [][]byte, msgID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.tasks[taskKey(transport.IdentityString(identity), msgID)]
	for _, e := range entries {
		e.cancel()
	}
	return len(entries)
}

func (r *registry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entries := range r.tasks {
		for _, e := range entries {
			e.cancel()
		}
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// list returns a snapshot of running tasks, oldest first.
func (r *registry) list() []Task {
	r.mu.Lock()
	entries := make([]*taskEntry, 0, r.size)
	for _, byID := range r.tasks {
		for _, e := range byID {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].id < entries[j].id
	})
	out := make([]Task, len(entries))
	for i, e := range entries {
		out[i] = e.Task
	}
	return out
}
