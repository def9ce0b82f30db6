package transport

import (
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/collabcore/pkg/log"
)

// Server is a minimal demo implementation of the Sync service: every
// inbound frame is immediately acknowledged by echoing its message id
// back as an ack frame. It exists to exercise GRPCTransport end-to-end
// without standing up a real remote collaborator.
type Server struct {
	OnFrame func(wireFrame)
}

// Register attaches the demo Sync service to grpcServer.
func (srv *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&syncServiceDesc, srv)
}

func (srv *Server) Sync(stream grpc.BidiStreamingServer[wrapperspb.BytesValue, wrapperspb.BytesValue]) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		frame, err := decodeFrame(msg.GetValue())
		if err != nil {
			log.WithComponent("transport-server").Warn().Err(err).Msg("failed decoding inbound frame")
			continue
		}
		if srv.OnFrame != nil {
			srv.OnFrame(frame)
		}
		if frame.IsAck {
			continue
		}

		ack := wireFrame{IsAck: true, Tenant: frame.Tenant, Object: frame.Object, MsgID: frame.MsgID}
		encoded, err := encodeFrame(ack)
		if err != nil {
			return err
		}
		if err := stream.Send(wrapperspb.Bytes(encoded)); err != nil {
			return err
		}
	}
}
