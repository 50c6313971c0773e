// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the addressed multi-part sockets the frontend
// reads from and writes to.
//
// A Socket moves whole frame sequences. Send is a single-writer operation:
// implementations serialize concurrent senders so that the frames of one
// sequence are never interleaved with another's.
package transport

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/absmach/ctlproxy/pkg/errors"
)

// Socket is an addressed, ordered, multi-part message channel.
type Socket interface {
	// Send writes one frame sequence atomically.
	Send(ctx context.Context, frames [][]byte) error

	// Recv blocks until the next frame sequence arrives, ctx is done or the
	// socket is closed.
	Recv(ctx context.Context) ([][]byte, error)

	// Close releases the socket. Blocked Recv calls return ErrClosed.
	Close() error
}

// Split separates an identity prefix from the payload frames. The prefix is
// every frame before the first empty delimiter frame and must not be empty.
func Split(frames [][]byte) (identity, payload [][]byte, err error) {
	for i, f := range frames {
		if len(f) != 0 {
			continue
		}
		if i == 0 {
			return nil, nil, errors.Wrap(errors.ErrMalformedFrames, "empty identity")
		}
		return frames[:i], frames[i+1:], nil
	}
	return nil, nil, errors.Wrap(errors.ErrMalformedFrames, "no delimiter frame")
}

// Join builds identity + delimiter + payload frames.
func Join(identity [][]byte, payload ...[]byte) [][]byte {
	out := make([][]byte, 0, len(identity)+1+len(payload))
	out = append(out, identity...)
	out = append(out, []byte{})
	return append(out, payload...)
}

// IdentityString renders an identity prefix for logs and registry keys.
func IdentityString(identity [][]byte) string {
	parts := make([]string, len(identity))
	for i, f := range identity {
		parts[i] = hex.EncodeToString(f)
	}
	return strings.Join(parts, ":")
}

// ParseIdentity is the inverse of IdentityString.
func ParseIdentity(s string) ([][]byte, error) {
	if s == "" {
		return nil, errors.Wrap(errors.ErrMalformedFrames, "empty identity")
	}
	parts := strings.Split(s, ":")
	identity := make([][]byte, len(parts))
	for i, p := range parts {
		f, err := hex.DecodeString(p)
		if err != nil || len(f) == 0 {
			return nil, errors.Wrap(errors.ErrMalformedFrames, "identity frame "+p)
		}
		identity[i] = f
	}
	return identity, nil
}

// Clone deep-copies a frame sequence.
func Clone(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte{}, f...)
	}
	return out
}
