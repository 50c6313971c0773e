// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/absmach/ctlproxy/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		` {"command":"get_status","msg_id":"abc"}`,
		` {"command":"modify_subscription","content":{"ticker_id":"AAPL","order_book_speed":5,"emit_quotes":true}}`,
		` {"command":"list","content":[1,2.5,"x",null,{"a":[]}],"extra":{"nested":{"deep":-3e10}}}`,
		` {"msg":"<tag> & \"quotes\" ünïcode"}`,
		` {}`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			env, err := Decode([]byte(in))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			out, err := Encode(env)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if out[0] != TagJSON {
				t.Fatalf("Encode() tag = %d, want %d", out[0], TagJSON)
			}

			again, err := Decode(out)
			if err != nil {
				t.Fatalf("Decode(Encode()) error = %v", err)
			}
			if !reflect.DeepEqual(env, again) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", again, env)
			}
		})
	}
}

func TestEncodeKeepsHTML(t *testing.T) {
	out, err := Encode(Envelope{"msg": "<a&b>"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if want := ` {"msg":"<a&b>"}`; string(out) != want {
		t.Errorf("Encode() = %q, want %q", out, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		code    errors.Code
	}{
		{"wrong tag", []byte("\x01{\"command\":\"x\"}"), errors.CodeCodecMismatch},
		{"json without tag", []byte(`{"command":"x"}`), errors.CodeCodecMismatch},
		{"empty", []byte{}, errors.CodeDecodeFailure},
		{"invalid json", []byte(" {not json"), errors.CodeDecodeFailure},
		{"invalid utf8", []byte{TagJSON, '"', 0xff, 0xfe, '"'}, errors.CodeDecodeFailure},
		{"not an object", []byte(" [1,2,3]"), errors.CodeDecodeFailure},
		{"trailing data", []byte(` {"a":1} {"b":2}`), errors.CodeDecodeFailure},
		{"tag only", []byte(" "), errors.CodeDecodeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			if err == nil {
				t.Fatal("Decode() expected error")
			}
			if got := errors.CodeOf(err); got != tt.code {
				t.Errorf("CodeOf() = %v, want %v (err: %v)", got, tt.code, err)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		want    string
		wantErr bool
	}{
		{"present", Envelope{"command": "get_status"}, "get_status", false},
		{"missing", Envelope{}, "", true},
		{"null", Envelope{"command": nil}, "", true},
		{"empty", Envelope{"command": ""}, "", true},
		{"number", Envelope{"command": json.Number("5")}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.env.Command()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Command() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.CodeOf(err) != errors.CodeInvalidArguments {
				t.Errorf("Command() code = %v", errors.CodeOf(err))
			}
			if got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnsureMsgID(t *testing.T) {
	gen := func() string { return "generated" }

	tests := []struct {
		name  string
		env   Envelope
		want  string
		added bool
	}{
		{"absent", Envelope{}, "generated", true},
		{"null", Envelope{"msg_id": nil}, "generated", true},
		{"string", Envelope{"msg_id": "req-1"}, "req-1", false},
		{"integer", Envelope{"msg_id": json.Number("42")}, "42", false},
		{"real", Envelope{"msg_id": json.Number("4.5")}, "4.5", false},
		{"bool", Envelope{"msg_id": true}, "true", false},
		{"list", Envelope{"msg_id": []any{"a"}}, `["a"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added := tt.env.EnsureMsgID(gen)
			if added != tt.added {
				t.Errorf("EnsureMsgID() = %v, want %v", added, tt.added)
			}
			if got := tt.env.MsgID(); got != tt.want {
				t.Errorf("MsgID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "null"},
		{true, "boolean"},
		{json.Number("3"), "integer"},
		{json.Number("3.0"), "real"},
		{json.Number("1e3"), "real"},
		{"s", "string"},
		{[]any{}, "list"},
		{map[string]any{}, "record"},
	}
	for _, tt := range tests {
		if got := TypeName(tt.v); got != tt.want {
			t.Errorf("TypeName(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
