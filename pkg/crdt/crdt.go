// Package crdt is the boundary between collabcore and the CRDT algebra it
// assumes is provided by an external library: shared maps, arrays, and
// attributed text, updates, and undo/redo. Nothing outside this package
// imports the concrete CRDT library directly; every other package talks to
// Doc and Session.
package crdt

import (
	"context"
	"time"

	"github.com/cuemby/collabcore/pkg/cerrors"
)

// Origin tags a write transaction so observers (the persistence plugin,
// the outbound sink) can tell local edits from remote ones applied during
// replay or sync.
type Origin string

const (
	// OriginLocal marks a write transaction made by the local caller.
	OriginLocal Origin = "local"
	// OriginRemote marks a write transaction replaying updates received
	// from a remote collaborator.
	OriginRemote Origin = "remote"
)

// Doc is the document handle passed into a Session's read/write
// transactions. It exposes the CRDT map abstraction used by every
// data-model adapter: rows, views, document trees, and folder views are
// all, at the storage layer, nested maps and arrays.
type Doc interface {
	// Map returns the named top-level map, creating it if absent. Writes
	// to the returned Map are only valid inside the transaction that
	// produced Doc.
	Map(name string) Map
}

// Map is a CRDT shared map: string keys to opaque values, including
// nested maps and arrays.
type Map interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
	// SubMap returns the named nested map, creating it if absent.
	SubMap(key string) Map
	// SubArray returns the named nested array, creating it if absent.
	SubArray(key string) Array
}

// Array is a CRDT shared array of opaque values, used for ordered id
// lists (children, field order, row order).
type Array interface {
	Len() int
	Get(i int) (any, bool)
	Insert(i int, value any)
	Delete(i int)
	Append(value any)
	Values() []any
}

// Session holds the in-memory document for one (tenant, object) and
// mediates read and write transactions.
type Session interface {
	// Read acquires a read transaction. Multiple concurrent readers are
	// allowed.
	Read(ctx context.Context, fn func(Doc) error) error

	// Write acquires an exclusive write transaction tagged with origin.
	// On commit the session encodes the resulting update and delivers it
	// synchronously to every attached subscriber before Write returns. The
	// write lock is released before subscribers run, so a subscriber that
	// calls back into the session (e.g. a persistence plugin's Encode) never
	// contends with the lock its own commit was made under.
	Write(ctx context.Context, origin Origin, fn func(Doc) error) error

	// TryWrite behaves like Write but fails immediately with
	// cerrors.KindContended if another writer currently holds the lock,
	// instead of blocking.
	TryWrite(ctx context.Context, origin Origin, fn func(Doc) error) error

	// WriteRetry retries lock acquisition with bounded backoff until
	// deadline, failing with cerrors.KindTimeout on exhaustion.
	WriteRetry(ctx context.Context, origin Origin, fn func(Doc) error, deadline time.Time) error

	// Subscribe registers fn to receive every encoded update produced by
	// a commit, along with the origin tag of the transaction that
	// produced it. It returns an unsubscribe function.
	Subscribe(fn func(update []byte, origin Origin)) (unsubscribe func())

	// Undo/Redo operate per-origin: each origin has its own undo stack,
	// populated only by writes made under that origin since Open.
	Undo(origin Origin) error
	Redo(origin Origin) error
	CanUndo(origin Origin) bool
	CanRedo(origin Origin) bool

	// Encode returns the full encoded state of the document, suitable for
	// a snapshot record or for constructing a fresh session via Open's
	// initial_updates.
	Encode() ([]byte, error)

	// Close releases resources held by the session. It does not affect
	// durability; the persistence plugin is responsible for that.
	Close() error
}

// Factory constructs a Session for one object, replaying initialUpdates
// (typically a snapshot payload followed by update payloads in clock
// order) inside a single write transaction before returning, and enabling
// undo/redo immediately after.
type Factory interface {
	Open(ctx context.Context, initialUpdates [][]byte) (Session, error)
}

// errContended builds the cerrors.KindContended error TryWrite returns
// when another writer holds the session's write lock.
func errContended() error {
	return cerrors.New(cerrors.KindContended, "write transaction contended")
}

// errTimeout builds the cerrors.KindTimeout error WriteRetry returns once
// its deadline passes without acquiring the write lock.
func errTimeout() error {
	return cerrors.New(cerrors.KindTimeout, "write transaction retry deadline exceeded")
}
