// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"testing"

	"github.com/absmach/ctlproxy/pkg/errors"
)

func TestRegistryBound(t *testing.T) {
	r := newRegistry(2)
	ctx := context.Background()

	_, release1, err := r.add(ctx, ident("a"), "1")
	if err != nil {
		t.Fatalf("add() error = %v", err)
	}
	if _, _, err := r.add(ctx, ident("b"), "1"); err != nil {
		t.Fatalf("add() error = %v", err)
	}
	if _, _, err := r.add(ctx, ident("c"), "1"); !errors.Is(err, errors.ErrTooManyInflight) {
		t.Fatalf("add() over limit = %v, want ErrTooManyInflight", err)
	}

	release1()
	release1()
	if r.len() != 1 {
		t.Errorf("len() = %d, want 1", r.len())
	}
	if _, _, err := r.add(ctx, ident("c"), "1"); err != nil {
		t.Errorf("add() after release = %v", err)
	}
}

func TestRegistryUnbounded(t *testing.T) {
	r := newRegistry(0)
	for i := 0; i < 100; i++ {
		if _, _, err := r.add(context.Background(), ident("a"), "same"); err != nil {
			t.Fatalf("add() error = %v", err)
		}
	}
	if r.len() != 100 {
		t.Errorf("len() = %d, want 100", r.len())
	}
}

func TestRegistryCancel(t *testing.T) {
	r := newRegistry(0)
	bg := context.Background()

	ctx1, _, _ := r.add(bg, ident("a"), "dup")
	ctx2, _, _ := r.add(bg, ident("a"), "dup")
	other, _, _ := r.add(bg, ident("b"), "dup")

	if n := r.cancel(ident("a"), "dup"); n != 2 {
		t.Errorf("cancel() = %d, want 2", n)
	}
	if ctx1.Err() == nil || ctx2.Err() == nil {
		t.Error("tasks of a not cancelled")
	}
	if other.Err() != nil {
		t.Error("task of b cancelled")
	}
	if n := r.cancel(ident("a"), "missing"); n != 0 {
		t.Errorf("cancel(missing) = %d, want 0", n)
	}

	r.cancelAll()
	if other.Err() == nil {
		t.Error("cancelAll() left a task running")
	}
}

func TestRegistryList(t *testing.T) {
	r := newRegistry(0)
	bg := context.Background()

	r.add(bg, ident("a"), "first")
	r.add(bg, ident("b"), "second")
	_, release, _ := r.add(bg, ident("c"), "third")
	release()

	tasks := r.list()
	if len(tasks) != 2 {
		t.Fatalf("list() = %+v, want 2 tasks", tasks)
	}
	if tasks[0].MsgID != "first" || tasks[1].MsgID != "second" {
		t.Errorf("list() order = %s, %s", tasks[0].MsgID, tasks[1].MsgID)
	}
	if tasks[0].Identity != "61" {
		t.Errorf("identity = %q, want hex 61", tasks[0].Identity)
	}
}
