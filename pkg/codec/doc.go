// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec frames control envelopes to and from wire payloads.
//
// # Wire Format
//
// A payload is one tag byte followed by the serialized envelope:
//
//	+-----+---------------------------+
//	| 32  | UTF-8 JSON object         |
//	+-----+---------------------------+
//
// Tag 32 (an ASCII space) is the only codec in use. Decode rejects any other
// tag with a codec mismatch, and rejects bytes that are not valid UTF-8 or do
// not hold a single JSON object with a decode failure.
//
// # Envelope
//
// An Envelope is the decoded JSON object. Numbers are kept as json.Number so
// that integers and reals stay distinguishable for schema checks and so that
// Encode reproduces them verbatim.
//
//	env, err := codec.Decode(payload)
//	if err != nil {
//		return err
//	}
//	added := env.EnsureMsgID(uuid.NewString)
//	out, err := codec.Encode(env)
package codec
