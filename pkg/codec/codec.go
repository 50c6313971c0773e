// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/absmach/ctlproxy/pkg/errors"
)

// TagJSON is the only supported codec tag: UTF-8 JSON text.
const TagJSON byte = 32

// Envelope field names.
const (
	FieldCommand = "command"
	FieldMsgID   = "msg_id"
	FieldContent = "content"
)

// Envelope is a decoded request or reply.
type Envelope map[string]any

// Decode parses a tagged wire payload into an Envelope.
func Decode(payload []byte) (Envelope, error) {
	if len(payload) == 0 {
		return nil, errors.DecodeFailure(fmt.Errorf("empty payload"))
	}
	if payload[0] != TagJSON {
		return nil, errors.CodecMismatch(payload[0])
	}

	body := payload[1:]
	if !utf8.Valid(body) {
		return nil, errors.DecodeFailure(fmt.Errorf("payload is not valid UTF-8"))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.DecodeFailure(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.DecodeFailure(fmt.Errorf("trailing data after JSON value"))
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.DecodeFailure(fmt.Errorf("envelope must be a JSON object, got %s", TypeName(v)))
	}
	return Envelope(obj), nil
}

// Encode serializes env and prepends the codec tag.
func Encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(TagJSON)

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(env)); err != nil {
		return nil, errors.Generic("encode", err)
	}

	// json.Encoder terminates every value with a newline.
	out := buf.Bytes()
	return out[:len(out)-1], nil
}

// Command returns the request command. A missing, empty or non-string
// command is an invalid-arguments error.
func (e Envelope) Command() (string, error) {
	v, ok := e[FieldCommand]
	if !ok || v == nil {
		return "", errors.InvalidArguments("command missing")
	}
	cmd, ok := v.(string)
	if !ok {
		return "", errors.InvalidArguments("field '%s' has wrong type, expected type: %s", FieldCommand, "string")
	}
	if cmd == "" {
		return "", errors.InvalidArguments("command missing")
	}
	return cmd, nil
}

// MsgID returns the correlation id, empty when absent.
func (e Envelope) MsgID() string {
	id, _ := e[FieldMsgID].(string)
	return id
}

// Content returns the content field and whether it is present.
func (e Envelope) Content() (any, bool) {
	v, ok := e[FieldContent]
	return v, ok
}

// EnsureMsgID normalizes msg_id to a string, generating one when absent.
// It reports whether a new id was generated.
func (e Envelope) EnsureMsgID(generate func() string) bool {
	v, ok := e[FieldMsgID]
	if !ok || v == nil {
		e[FieldMsgID] = generate()
		return true
	}
	e[FieldMsgID] = stringify(v)
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// TypeName returns the logical type name of a decoded JSON value.
func TypeName(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		if IsInteger(t) {
			return "integer"
		}
		return "real"
	case float64:
		return "real"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "record"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsInteger reports whether n was written without fraction or exponent.
func IsInteger(n json.Number) bool {
	_, err := strconv.ParseInt(n.String(), 10, 64)
	return err == nil
}
