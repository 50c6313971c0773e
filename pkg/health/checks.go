// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/absmach/ctlproxy/pkg/breaker"
)

// InflightCheck fails once the number of requests awaiting upstream reaches
// limit. A zero limit never fails.
func InflightCheck(count func() int, limit int) CheckFunc {
	return func(context.Context) error {
		if n := count(); limit > 0 && n >= limit {
			return fmt.Errorf("%d requests in flight, limit %d", n, limit)
		}
		return nil
	}
}

// BreakerCheck fails while the upstream circuit is open.
func BreakerCheck(cb *breaker.CircuitBreaker) CheckFunc {
	return func(context.Context) error {
		if s := cb.State(); s == breaker.StateOpen {
			return fmt.Errorf("upstream circuit %s", s)
		}
		return nil
	}
}

// ConnectionCheck fails until connected reports true.
func ConnectionCheck(connected func() bool) CheckFunc {
	return func(context.Context) error {
		if !connected() {
			return fmt.Errorf("not connected")
		}
		return nil
	}
}

// GoroutineCheck fails when more than max goroutines are running.
func GoroutineCheck(max int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > max {
			return fmt.Errorf("%d goroutines running, max %d", n, max)
		}
		return nil
	}
}
