package transport

import (
	"bytes"
	"context"
	"encoding/gob"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/types"
)

// wireFrame is gob-encoded and carried inside a wrapperspb.BytesValue,
// which lets collabcore use grpc's real wire machinery and a real
// generated well-known-type message without hand-fabricating a bespoke
// generated .pb.go for a service this module doesn't control both ends of.
type wireFrame struct {
	IsAck   bool
	Tenant  types.Tenant
	Object  types.ObjectID
	MsgID   types.MsgID
	Payload []byte
}

// syncServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would generate for a single bidi-streaming "Sync" method exchanging
// wrapperspb.BytesValue frames.
var syncServiceDesc = grpc.ServiceDesc{
	ServiceName: "collabcore.transport.Sync",
	HandlerType: (*syncServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Sync",
			Handler:       syncHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

type syncServer interface {
	Sync(grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]) error
}

func syncHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(syncServer).Sync(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BytesValue]{ServerStream: stream})
}

// GRPCTransport implements Transport over a single bidi-streaming grpc
// connection carrying gob-encoded wireFrame values inside
// wrapperspb.BytesValue messages.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	stream grpc.BidiStreamingClient[wrapperspb.BytesValue, wrapperspb.BytesValue]

	mu       sync.Mutex
	handlers map[types.ObjectID]AckHandler
}

// DialGRPCTransport opens a grpc connection and the single long-lived
// Sync stream used for both outbound sends and inbound acks.
func DialGRPCTransport(ctx context.Context, target string, opts ...grpc.DialOption) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindTransportClosed, err, "dial transport")
	}

	stream, err := conn.NewStream(ctx, &syncServiceDesc.Streams[0], "/collabcore.transport.Sync/Sync")
	if err != nil {
		conn.Close()
		return nil, cerrors.Wrap(cerrors.KindTransportClosed, err, "open sync stream")
	}

	t := &GRPCTransport{
		conn:     conn,
		stream:   grpc.NewGenericClientStream[wrapperspb.BytesValue, wrapperspb.BytesValue](stream),
		handlers: map[types.ObjectID]AckHandler{},
	}
	go t.recvLoop()
	return t, nil
}

func (t *GRPCTransport) Send(ctx context.Context, msg Message) error {
	frame := wireFrame{Tenant: msg.Tenant, Object: msg.Object, MsgID: msg.MsgID, Payload: msg.Payload}
	encoded, err := encodeFrame(frame)
	if err != nil {
		return cerrors.Wrap(cerrors.KindSerialization, err, "encode outbound frame")
	}
	if err := t.stream.Send(wrapperspb.Bytes(encoded)); err != nil {
		return cerrors.Wrap(cerrors.KindTransportClosed, err, "send frame")
	}
	return nil
}

func (t *GRPCTransport) Register(tenant types.Tenant, object types.ObjectID, handler AckHandler) func() {
	t.mu.Lock()
	t.handlers[object] = handler
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.handlers, object)
		t.mu.Unlock()
	}
}

func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

func (t *GRPCTransport) recvLoop() {
	for {
		msg, err := t.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.WithComponent("transport").Warn().Err(err).Msg("sync stream closed")
			return
		}
		frame, err := decodeFrame(msg.GetValue())
		if err != nil {
			log.WithComponent("transport").Warn().Err(err).Msg("failed decoding inbound frame")
			continue
		}
		if !frame.IsAck {
			continue
		}
		t.mu.Lock()
		handler, ok := t.handlers[frame.Object]
		t.mu.Unlock()
		if ok {
			handler.HandleAck(frame.Tenant, frame.Object, frame.MsgID)
		}
	}
}

func encodeFrame(f wireFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (wireFrame, error) {
	var f wireFrame
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f)
	return f, err
}
