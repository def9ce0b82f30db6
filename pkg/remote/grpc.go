package remote

import (
	"bytes"
	"context"
	"encoding/gob"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/types"
)

// getUpdatesRequest/getUpdatesResponse are gob-encoded and carried inside
// wrapperspb.BytesValue, the same wire convention pkg/transport uses, so a
// collaboration service only has to speak one message shape on both of its
// methods.
type getUpdatesRequest struct {
	Tenant  types.Tenant
	Objects []types.ObjectID
	Kind    types.ObjectKind
}

type getUpdatesResponse struct {
	Updates map[types.ObjectID][][]byte
}

const getUpdatesMethod = "/collabcore.remote.Collaborator/GetUpdates"

// GRPCCollaborator implements Collaborator as a unary grpc call against a
// collaboration service. It either wraps a *grpc.ClientConn the caller
// already dialed (NewGRPCCollaborator) or dials its own
// (DialGRPCCollaborator).
type GRPCCollaborator struct {
	conn *grpc.ClientConn
}

// NewGRPCCollaborator wraps an already-dialed connection.
func NewGRPCCollaborator(conn *grpc.ClientConn) *GRPCCollaborator {
	return &GRPCCollaborator{conn: conn}
}

// DialGRPCCollaborator opens a new connection dedicated to fetching updates.
func DialGRPCCollaborator(target string, opts ...grpc.DialOption) (*GRPCCollaborator, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindTransportClosed, err, "dial collaborator")
	}
	return &GRPCCollaborator{conn: conn}, nil
}

func (c *GRPCCollaborator) GetUpdates(ctx context.Context, tenant types.Tenant, object types.ObjectID, kind types.ObjectKind) ([][]byte, error) {
	resp, err := c.invoke(ctx, getUpdatesRequest{Tenant: tenant, Objects: []types.ObjectID{object}, Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Updates[object], nil
}

func (c *GRPCCollaborator) BatchGetUpdates(ctx context.Context, tenant types.Tenant, objects []types.ObjectID, kind types.ObjectKind) (map[types.ObjectID][][]byte, error) {
	resp, err := c.invoke(ctx, getUpdatesRequest{Tenant: tenant, Objects: objects, Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Updates, nil
}

func (c *GRPCCollaborator) invoke(ctx context.Context, req getUpdatesRequest) (getUpdatesResponse, error) {
	encoded, err := encodeGob(req)
	if err != nil {
		return getUpdatesResponse{}, cerrors.Wrap(cerrors.KindSerialization, err, "encode updates request")
	}

	reply := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, getUpdatesMethod, wrapperspb.Bytes(encoded), reply); err != nil {
		return getUpdatesResponse{}, cerrors.Wrap(cerrors.KindTransportClosed, err, "call GetUpdates")
	}

	var resp getUpdatesResponse
	if err := decodeGob(reply.GetValue(), &resp); err != nil {
		return getUpdatesResponse{}, cerrors.Wrap(cerrors.KindSerialization, err, "decode updates response")
	}
	return resp, nil
}

// Close closes the underlying connection, including a connection that
// was passed in through NewGRPCCollaborator.
func (c *GRPCCollaborator) Close() error {
	return c.conn.Close()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
