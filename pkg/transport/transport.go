// Package transport defines the byte-stream sink contract the outbound
// sync pipeline sends through, and a grpc-based implementation of it.
// Acks travel back out-of-band, not as the result of Send (in the grpc
// implementation they arrive as ack frames on the same bidi stream), and
// are dispatched to whichever AckHandler registered for that object.
package transport

import (
	"context"

	"github.com/cuemby/collabcore/pkg/types"
)

// Message is one outbound payload addressed to a single object.
type Message struct {
	Tenant  types.Tenant
	Object  types.ObjectID
	MsgID   types.MsgID
	Payload []byte
}

// Transport is the asynchronous sink the outbound sync pipeline sends
// through. Send resolves once the transport has accepted the message at
// the transport level (e.g. the grpc call returned); it does not imply
// the remote has acknowledged the message's content — that ack arrives
// separately through AckHandler.
type Transport interface {
	Send(ctx context.Context, msg Message) error

	// Register attaches handler to receive acks for object, returning an
	// unregister function. A sink calls this once, when it is constructed.
	Register(tenant types.Tenant, object types.ObjectID, handler AckHandler) (unregister func())
}

// AckHandler receives out-of-band acknowledgements for messages sent on
// behalf of one object.
type AckHandler interface {
	HandleAck(tenant types.Tenant, object types.ObjectID, msgID types.MsgID)
}

// AckHandlerFunc adapts a plain function to AckHandler.
type AckHandlerFunc func(tenant types.Tenant, object types.ObjectID, msgID types.MsgID)

func (f AckHandlerFunc) HandleAck(tenant types.Tenant, object types.ObjectID, msgID types.MsgID) {
	f(tenant, object, msgID)
}
