// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"codec", CodecMismatch(1), CodeCodecMismatch},
		{"decode", DecodeFailure(errors.New("bad json")), CodeDecodeFailure},
		{"args", InvalidArguments("missing field: %s", "ticker_id"), CodeInvalidArguments},
		{"generic", Generic("forward", errors.New("boom")), CodeGeneric},
		{"untagged", errors.New("plain"), CodeGeneric},
		{"wrapped", fmt.Errorf("outer: %w", InvalidArguments("command missing")), CodeInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetailOf(t *testing.T) {
	err := InvalidArguments("missing field: %s", "directory")
	if got := DetailOf(err); got != "missing field: directory" {
		t.Errorf("DetailOf() = %q", got)
	}

	err = Generic("forward", ErrUpstreamUnavailable)
	if got := DetailOf(err); got != "forward: upstream unavailable" {
		t.Errorf("DetailOf() = %q", got)
	}
	if !Is(err, ErrUpstreamUnavailable) {
		t.Error("Generic() must keep the wrapped error reachable")
	}

	if got := DetailOf(errors.New("plain")); got != "plain" {
		t.Errorf("DetailOf() = %q", got)
	}
}

func TestGenericNil(t *testing.T) {
	if err := Generic("op", nil); err != nil {
		t.Errorf("Generic(nil) = %v, want nil", err)
	}
}

func TestPayload(t *testing.T) {
	p := Payload(CodeCodecMismatch, "unsupported codec: 1")
	if p["result"] != "error" {
		t.Errorf("result = %v", p["result"])
	}
	content, ok := p["content"].(map[string]any)
	if !ok {
		t.Fatalf("content has type %T", p["content"])
	}
	if content["ecode"] != int(CodeCodecMismatch) {
		t.Errorf("ecode = %v", content["ecode"])
	}
	if content["msg"] != "unsupported codec: 1" {
		t.Errorf("msg = %v", content["msg"])
	}
}

func TestCodeString(t *testing.T) {
	tests := map[Code]string{
		CodeGeneric:          "generic",
		CodeInvalidArguments: "args",
		CodeDecodeFailure:    "decode",
		CodeCodecMismatch:    "codec",
		Code(99):             "unknown",
	}
	for code, want := range tests {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", int(code), got, want)
		}
	}
}
