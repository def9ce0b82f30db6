// Package session wires a pkg/crdt.Session to the durable update log: on
// open it replays the log into a fresh document, and it attaches a
// persistence plugin that appends every commit, whatever its origin, back
// to the log in the same call chain as the commit.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

const snapshotPerUpdateDefault = 20

// Manager opens and holds CRDT sessions backed by one update log and CRDT
// factory. Sessions are shared by lifetime: once opened, the same
// *Handle is returned to every caller holding the object open.
type Manager struct {
	factory crdt.Factory
	log     *updatelog.Log

	snapshotPerUpdate int

	mu       sync.Mutex
	sessions map[types.ObjectIdentity]*Handle
}

// Handle is a wrapper around a crdt.Session shared by every holder of the
// same (tenant, object). It keeps no holder count; see Close.
type Handle struct {
	crdt.Session

	identity types.ObjectIdentity
	mgr      *Manager

	updatesSinceSnapshot int
}

// NewManager builds a session manager over log using factory to construct
// in-memory documents. snapshotPerUpdate mirrors the
// snapshot_per_update_interval option (default 20): a snapshot is written
// after this many updates have been appended since the last one.
func NewManager(factory crdt.Factory, updateLog *updatelog.Log, snapshotPerUpdate int) *Manager {
	if snapshotPerUpdate <= 0 {
		snapshotPerUpdate = snapshotPerUpdateDefault
	}
	return &Manager{
		factory:           factory,
		log:               updateLog,
		snapshotPerUpdate: snapshotPerUpdate,
		sessions:          map[types.ObjectIdentity]*Handle{},
	}
}

// Open returns the shared session for identity, opening and replaying the
// update log into a fresh document if this is the first caller.
func (m *Manager) Open(ctx context.Context, identity types.ObjectIdentity) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.sessions[identity]; ok {
		return h, nil
	}

	var updates [][]byte
	err := m.log.Load(ctx, identity.Tenant, identity.Object, func(payload []byte) error {
		updates = append(updates, payload)
		return nil
	})
	if err != nil && !cerrors.HasKind(err, cerrors.KindNotFound) {
		return nil, err
	}

	sess, err := m.factory.Open(ctx, updates)
	if err != nil {
		return nil, err
	}

	h := &Handle{Session: sess, identity: identity, mgr: m}
	sess.Subscribe(func(update []byte, origin crdt.Origin) {
		h.onCommit(update, origin)
	})

	m.sessions[identity] = h
	return h, nil
}

// onCommit is the persistence plugin: every commit, local or remote, is
// appended to the update log inside the same call chain as Write, and may
// trigger a snapshot compaction once the configured interval is reached.
func (h *Handle) onCommit(update []byte, origin crdt.Origin) {
	ctx := context.Background()
	logger := log.WithObject(int64(h.identity.Tenant), string(h.identity.Object))

	exists, err := h.mgr.log.Exists(ctx, h.identity.Tenant, h.identity.Object)
	if err != nil {
		logger.Error().Err(err).Msg("failed checking update log existence during commit")
		return
	}

	var appendErr error
	var clock types.Clock
	if !exists {
		appendErr = h.mgr.log.Create(ctx, h.identity.Tenant, h.identity.Object, update)
	} else {
		clock, appendErr = h.mgr.log.Append(ctx, h.identity.Tenant, h.identity.Object, update)
	}
	if appendErr != nil {
		logger.Error().Err(appendErr).Msg("failed to persist commit")
		return
	}

	h.updatesSinceSnapshot++
	if h.updatesSinceSnapshot < h.mgr.snapshotPerUpdate {
		return
	}
	h.updatesSinceSnapshot = 0

	snapshot, err := h.Session.Encode()
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	if err := h.mgr.log.CompactToSnapshot(ctx, h.identity.Tenant, h.identity.Object, snapshot, clock); err != nil {
		logger.Error().Err(err).Msg("failed to compact to snapshot")
	}
}

// Close removes the handle from the manager and releases the underlying
// CRDT session. It is safe to call even if other holders still reference
// the same *Handle value; they simply keep using it until they drop it.
func (h *Handle) Close() error {
	h.mgr.mu.Lock()
	delete(h.mgr.sessions, h.identity)
	h.mgr.mu.Unlock()
	return h.Session.Close()
}

// WriteRetryDefault retries a write with the package's conventional
// retry window, used by adapters that don't need a caller-specified
// deadline.
func (h *Handle) WriteRetryDefault(ctx context.Context, origin crdt.Origin, fn func(crdt.Doc) error) error {
	return h.Session.WriteRetry(ctx, origin, fn, time.Now().Add(2*time.Second))
}
