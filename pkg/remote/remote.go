// Package remote defines the contract collabcore consumes from a backing
// collaboration service: fetching update bytes for an object, singly or
// in batch. Nothing in this module assumes a particular transport for
// it; GRPCCollaborator in this package is one concrete grpc-based
// implementation.
package remote

import (
	"context"

	"github.com/cuemby/collabcore/pkg/types"
)

// Collaborator is the remote service the task controller calls into when
// a row (or any other object) is not yet present locally.
type Collaborator interface {
	// GetUpdates returns the full update history for one object.
	GetUpdates(ctx context.Context, tenant types.Tenant, object types.ObjectID, kind types.ObjectKind) ([][]byte, error)

	// BatchGetUpdates returns update histories for several objects of the
	// same kind in one round trip.
	BatchGetUpdates(ctx context.Context, tenant types.Tenant, objects []types.ObjectID, kind types.ObjectKind) (map[types.ObjectID][][]byte, error)
}
