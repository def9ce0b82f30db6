// Package updatelog implements the durable, append-only per-object CRDT
// update stream on top of pkg/kvstore and pkg/keys, with snapshot
// compaction.
package updatelog

import (
	"context"
	"sync"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/keys"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/metrics"
	"github.com/cuemby/collabcore/pkg/types"
)

// Log is the durable update stream for every (tenant, object) pair backed
// by one kvstore.Store.
type Log struct {
	store kvstore.Store

	// writeMu serializes next-clock-then-insert across the whole process.
	// The store itself gives per-key atomicity but next_clock + insert is
	// a read-modify-write that needs its own coarse lock to stay race-free
	// under concurrent appenders to the same object.
	writeMu sync.Mutex
}

// New wraps an opened kvstore.Store as an update log.
func New(store kvstore.Store) *Log {
	return &Log{store: store}
}

// NextClock returns the clock that the next append to (tenant, object)
// would receive: one past the last update record's clock; if compaction
// has removed every update record, one past the snapshot's clock; or 0 if
// the object has no record yet.
func (l *Log) NextClock(ctx context.Context, tenant types.Tenant, object types.ObjectID) (types.Clock, error) {
	for _, kind := range []keys.RecordKind{keys.RecordKindUpdate, keys.RecordKindSnapshot} {
		entry, ok, err := l.store.NextBackEntry(ctx, keys.ProbeKey(tenant, object, kind))
		if err != nil {
			return 0, cerrors.Wrap(cerrors.KindBackend, err, "reverse seek next clock")
		}
		if !ok {
			continue
		}
		decoded, err := keys.Decode(entry.Key)
		if err != nil {
			return 0, err
		}
		// The reverse seek can land on another object's key; that means
		// this object has no record of this kind.
		if decoded.Kind == kind && keys.MatchesObject(decoded, tenant, object) == nil {
			return decoded.Clock + 1, nil
		}
	}
	return 0, nil
}

// Exists reports whether any update or snapshot record exists for
// (tenant, object).
func (l *Log) Exists(ctx context.Context, tenant types.Tenant, object types.ObjectID) (bool, error) {
	clock, err := l.NextClock(ctx, tenant, object)
	if err != nil {
		return false, err
	}
	if clock > 0 {
		return true, nil
	}
	snapProbe := keys.ProbeKey(tenant, object, keys.RecordKindSnapshot)
	entry, ok, err := l.store.NextBackEntry(ctx, snapProbe)
	if err != nil {
		return false, cerrors.Wrap(cerrors.KindBackend, err, "reverse seek snapshot existence")
	}
	if !ok {
		return false, nil
	}
	decoded, err := keys.Decode(entry.Key)
	if err != nil {
		return false, err
	}
	return decoded.Kind == keys.RecordKindSnapshot && decoded.Tenant == tenant && decoded.Object == object, nil
}

// Create writes the initial update at clock 0. It fails with
// cerrors.KindAlreadyExists if a record already exists for this object.
func (l *Log) Create(ctx context.Context, tenant types.Tenant, object types.ObjectID, initial []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	exists, err := l.Exists(ctx, tenant, object)
	if err != nil {
		return err
	}
	if exists {
		return cerrors.Newf(cerrors.KindAlreadyExists, "update log already exists for object %s", object)
	}
	key := keys.Encode(tenant, object, keys.RecordKindUpdate, 0)
	if err := l.store.Insert(ctx, key, initial); err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "create initial update record")
	}
	metrics.UpdateLogAppendsTotal.Inc()
	return nil
}

// Append atomically reads the next clock for (tenant, object) and writes
// the update at that clock. Concurrent appenders to the same object are
// serialized by writeMu so the next-clock-then-insert sequence is race-free.
func (l *Log) Append(ctx context.Context, tenant types.Tenant, object types.ObjectID, update []byte) (types.Clock, error) {
	timer := metrics.NewTimer()
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	clock, err := l.NextClock(ctx, tenant, object)
	if err != nil {
		return 0, err
	}
	key := keys.Encode(tenant, object, keys.RecordKindUpdate, clock)
	if err := l.store.Insert(ctx, key, update); err != nil {
		return 0, cerrors.Wrap(cerrors.KindBackend, err, "append update record")
	}
	timer.ObserveDuration(metrics.UpdateLogAppendDuration)
	metrics.UpdateLogAppendsTotal.Inc()
	log.WithObject(int64(tenant), string(object)).Debug().Uint64("clock", uint64(clock)).Msg("appended update")
	return clock, nil
}

// Load forward-iterates the record range for (tenant, object), starting
// from a snapshot if one exists, and invokes apply for the snapshot
// payload (if any) followed by every update with a clock greater than the
// snapshot's.
func (l *Log) Load(ctx context.Context, tenant types.Tenant, object types.ObjectID, apply func(payload []byte) error) error {
	snapshotClock, err := l.loadSnapshot(ctx, tenant, object, apply)
	if err != nil {
		return err
	}

	lower, upper := keys.RangeBounds(tenant, object, keys.RecordKindUpdate)
	if snapshotClock != nil {
		lower = keys.Encode(tenant, object, keys.RecordKindUpdate, *snapshotClock+1)
	}

	err = l.store.Range(ctx, lower, upper, func(entry kvstore.Entry) error {
		decoded, derr := keys.Decode(entry.Key)
		if derr != nil {
			return derr
		}
		if derr := keys.MatchesObject(decoded, tenant, object); derr != nil {
			return derr
		}
		return apply(entry.Value)
	})
	if err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "load update range")
	}
	return nil
}

// loadSnapshot applies the newest snapshot record for (tenant, object), if
// any, and returns its clock so Load knows where updates should resume.
func (l *Log) loadSnapshot(ctx context.Context, tenant types.Tenant, object types.ObjectID, apply func([]byte) error) (*types.Clock, error) {
	probe := keys.ProbeKey(tenant, object, keys.RecordKindSnapshot)
	entry, ok, err := l.store.NextBackEntry(ctx, probe)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindBackend, err, "reverse seek snapshot")
	}
	if !ok {
		return nil, nil
	}
	decoded, err := keys.Decode(entry.Key)
	if err != nil {
		return nil, err
	}
	if decoded.Kind != keys.RecordKindSnapshot || decoded.Tenant != tenant || decoded.Object != object {
		return nil, nil
	}
	if err := apply(entry.Value); err != nil {
		return nil, err
	}
	clock := decoded.Clock
	return &clock, nil
}

// CompactToSnapshot writes a new snapshot record, removes any older
// snapshot record, and deletes every update record with clock <= upToClock.
// Newer updates (clock > upToClock) are left in place so no in-flight
// append can be lost across the compaction.
func (l *Log) CompactToSnapshot(ctx context.Context, tenant types.Tenant, object types.ObjectID, snapshot []byte, upToClock types.Clock) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	snapKey := keys.Encode(tenant, object, keys.RecordKindSnapshot, upToClock)
	if err := l.store.Insert(ctx, snapKey, snapshot); err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "write snapshot record")
	}
	if err := l.store.RemoveRange(ctx, keys.Prefix(tenant, object, keys.RecordKindSnapshot), snapKey); err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "remove older snapshot records")
	}

	lower := keys.Prefix(tenant, object, keys.RecordKindUpdate)
	upper := keys.Encode(tenant, object, keys.RecordKindUpdate, upToClock+1)
	if err := l.store.RemoveRange(ctx, lower, upper); err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "remove compacted update records")
	}
	metrics.UpdateLogSnapshotsTotal.Inc()
	return nil
}
