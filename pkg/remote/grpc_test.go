package remote

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/collabcore/pkg/types"
)

// fakeCollaboratorService answers every GetUpdates call with a fixed set
// of per-object update batches, keyed by the objects named in the request.
type fakeCollaboratorService struct {
	updates map[types.ObjectID][][]byte
}

func (s *fakeCollaboratorService) getUpdates(ctx context.Context, req any) (any, error) {
	in := req.(*wrapperspb.BytesValue)
	var decoded getUpdatesRequest
	if err := decodeGob(in.GetValue(), &decoded); err != nil {
		return nil, err
	}

	resp := getUpdatesResponse{Updates: map[types.ObjectID][][]byte{}}
	for _, obj := range decoded.Objects {
		if batch, ok := s.updates[obj]; ok {
			resp.Updates[obj] = batch
		}
	}
	encoded, err := encodeGob(resp)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(encoded), nil
}

var fakeServiceDesc = grpc.ServiceDesc{
	ServiceName: "collabcore.remote.Collaborator",
	HandlerType: (*fakeCollaboratorService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetUpdates",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(*fakeCollaboratorService).getUpdates(ctx, in)
			},
		},
	},
}

func dialFakeCollaborator(t *testing.T, svc *fakeCollaboratorService) *GRPCCollaborator {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	t.Cleanup(func() { lis.Close() })

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&fakeServiceDesc, svc)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCCollaborator(conn)
}

func TestGetUpdatesReturnsTheRequestedObjectsBatch(t *testing.T) {
	svc := &fakeCollaboratorService{updates: map[types.ObjectID][][]byte{
		"row-1": {[]byte("u1"), []byte("u2")},
	}}
	collab := dialFakeCollaborator(t, svc)

	got, err := collab.GetUpdates(context.Background(), 1, "row-1", types.ObjectKindDatabaseRow)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("u1"), []byte("u2")}, got)
}

func TestGetUpdatesForUnknownObjectReturnsEmpty(t *testing.T) {
	collab := dialFakeCollaborator(t, &fakeCollaboratorService{updates: map[types.ObjectID][][]byte{}})

	got, err := collab.GetUpdates(context.Background(), 1, "missing", types.ObjectKindDatabaseRow)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBatchGetUpdatesReturnsOnlyKnownObjects(t *testing.T) {
	svc := &fakeCollaboratorService{updates: map[types.ObjectID][][]byte{
		"row-1": {[]byte("u1")},
		"row-2": {[]byte("u2")},
	}}
	collab := dialFakeCollaborator(t, svc)

	got, err := collab.BatchGetUpdates(context.Background(), 1, []types.ObjectID{"row-1", "row-2", "row-3"}, types.ObjectKindDatabaseRow)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("u1")}, got["row-1"])
	require.Equal(t, [][]byte{[]byte("u2")}, got["row-2"])
	_, hasRow3 := got["row-3"]
	require.False(t, hasRow3)
}
