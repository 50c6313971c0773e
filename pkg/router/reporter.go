// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"

	"github.com/absmach/ctlproxy/pkg/codec"
	"github.com/absmach/ctlproxy/pkg/errors"
	"github.com/absmach/ctlproxy/pkg/metrics"
	"github.com/absmach/ctlproxy/pkg/transport"
)

// Reporter answers failed requests directly on the client socket. Error
// replies never reach upstream.
type Reporter struct {
	sock   transport.Socket
	status *metrics.Status
	newID  func() string
}

// NewReporter creates a reporter writing to the client socket sock.
func NewReporter(sock transport.Socket, status *metrics.Status, newID func() string) *Reporter {
	return &Reporter{sock: sock, status: status, newID: newID}
}

// Report sends an error reply to identity and counts an invalid message.
// An empty msgID is replaced by a fresh one, which is returned.
func (rp *Reporter) Report(ctx context.Context, identity [][]byte, msgID string, code errors.Code, detail string) (string, error) {
	rp.status.InvalidMessage()

	if msgID == "" {
		msgID = rp.newID()
	}
	env := codec.Envelope(errors.Payload(code, detail))
	env[codec.FieldMsgID] = msgID

	payload, err := codec.Encode(env)
	if err != nil {
		return msgID, err
	}
	return msgID, rp.sock.Send(ctx, transport.Join(identity, payload))
}
