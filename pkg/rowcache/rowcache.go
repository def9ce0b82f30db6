// Package rowcache materializes database rows on demand, bounds memory
// with an LRU cache, and deduplicates background fetches of rows that
// are not yet local.
package rowcache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/database/rows"
	"github.com/cuemby/collabcore/pkg/events"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/metrics"
	"github.com/cuemby/collabcore/pkg/session"
	"github.com/cuemby/collabcore/pkg/taskcontroller"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
	"github.com/google/uuid"
)

const defaultCapacity = 1000

// rowNamespace derives a row's side-document id deterministically from
// its row id, so callers can address the row's CRDT object without a
// round trip to discover it.
var rowNamespace = uuid.MustParse("6f6e6365-6461-6279-7465-636f6c6c6162")

// RowObjectID returns the deterministic object id a row id maps to.
func RowObjectID(rowID types.RowID) types.ObjectID {
	return types.ObjectID(uuid.NewSHA1(rowNamespace, []byte(rowID)).String())
}

// Block is the bounded-cache row engine for one database's rows.
type Block struct {
	tenant types.Tenant

	sessions *session.Manager
	tasks    *taskcontroller.Controller
	log      *updatelog.Log

	cache    *lru.Cache[types.RowID, *session.Handle]
	sequence atomic.Uint32

	notifier *events.Broker[[]types.RowDetail]
}

// New builds a Block with the given cache capacity (0 selects the
// spec default of 1000 rows).
func New(tenant types.Tenant, sessions *session.Manager, tasks *taskcontroller.Controller, log *updatelog.Log, capacity int) *Block {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	notifier := events.NewBroker[[]types.RowDetail]()
	notifier.Start()

	cache, _ := lru.NewWithEvict[types.RowID, *session.Handle](capacity, func(rowID types.RowID, h *session.Handle) {
		metrics.RowCacheEvictionsTotal.Inc()
		_ = h.Close()
	})

	return &Block{
		tenant:   tenant,
		sessions: sessions,
		tasks:    tasks,
		log:      log,
		cache:    cache,
		notifier: notifier,
	}
}

// SubscribeEvent returns a new receiver of fetch-completion batches.
func (b *Block) SubscribeEvent() events.Subscriber[[]types.RowDetail] {
	return b.notifier.Subscribe()
}

// GetRow returns the materialized row for rowID. If it is already cached
// it is read synchronously; if it exists in the backing store but is not
// cached, it is opened and inserted into the cache (possibly evicting the
// LRU tail); if it does not exist anywhere yet, a single background fetch
// task is enqueued and an empty placeholder is returned immediately. This
// method never blocks on I/O.
func (b *Block) GetRow(ctx context.Context, rowID types.RowID) types.Row {
	if h, ok := b.cache.Get(rowID); ok {
		metrics.RowCacheHitsTotal.Inc()
		var row types.Row
		_ = h.Read(ctx, func(doc crdt.Doc) error {
			row = rows.Read(doc, rowID)
			return nil
		})
		return row
	}

	metrics.RowCacheMissesTotal.Inc()
	identity := b.identity(rowID)

	exists, err := b.log.Exists(ctx, b.tenant, identity.Object)
	if err != nil {
		log.WithRowID(string(rowID)).Warn().Err(err).Msg("failed checking row existence")
		return types.EmptyRow(rowID)
	}
	if !exists {
		b.enqueueFetch(ctx, rowID)
		return types.EmptyRow(rowID)
	}

	h, err := b.open(ctx, rowID)
	if err != nil {
		log.WithRowID(string(rowID)).Warn().Err(err).Msg("failed opening existing row")
		return types.EmptyRow(rowID)
	}

	var row types.Row
	_ = h.Read(ctx, func(doc crdt.Doc) error {
		row = rows.Read(doc, rowID)
		return nil
	})
	return row
}

// GetRowMeta returns only a row's metadata, with the same lazy-load
// discipline as GetRow.
func (b *Block) GetRowMeta(ctx context.Context, rowID types.RowID) types.RowMeta {
	return b.GetRow(ctx, rowID).Meta
}

// GetCell returns one field's cell for rowID, with the same lazy-load
// discipline as GetRow.
func (b *Block) GetCell(ctx context.Context, rowID types.RowID, fieldID string) (types.Cell, bool) {
	row := b.GetRow(ctx, rowID)
	cell, ok := row.Cells[fieldID]
	return cell, ok
}

// GetRowsFromRowOrders resolves a batch of row orders into rows, with the
// same lazy-load discipline as GetRow applied per row.
func (b *Block) GetRowsFromRowOrders(ctx context.Context, orders []types.RowOrder) []types.Row {
	result := make([]types.Row, 0, len(orders))
	for _, o := range orders {
		result = append(result, b.GetRow(ctx, o.RowID))
	}
	return result
}

// CreateRow allocates a new CRDT session for rowID, initializes it under
// one write transaction, inserts it into the cache, and returns a
// RowOrder for view insertion.
func (b *Block) CreateRow(ctx context.Context, row types.Row) (types.RowOrder, error) {
	h, err := b.open(ctx, row.Meta.RowID)
	if err != nil {
		return types.RowOrder{}, err
	}

	err = h.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.Create(doc, row, time.Now())
		return nil
	})
	if err != nil {
		return types.RowOrder{}, err
	}

	return types.RowOrder{RowID: row.Meta.RowID, Height: row.Meta.Height}, nil
}

// UpdateRow runs mutator inside a write transaction for rowID. It is a
// no-op if the row is not currently cached; callers must GetRow or
// CreateRow it first.
func (b *Block) UpdateRow(ctx context.Context, rowID types.RowID, mutator func(crdt.Doc) error) error {
	h, ok := b.cache.Get(rowID)
	if !ok {
		return nil
	}
	return h.Write(ctx, crdt.OriginLocal, mutator)
}

// UpdateRowMeta is UpdateRow specialized for the height/visibility
// metadata fields.
func (b *Block) UpdateRowMeta(ctx context.Context, rowID types.RowID, height int, visibility bool) error {
	return b.UpdateRow(ctx, rowID, func(doc crdt.Doc) error {
		rows.UpdateMeta(doc, height, visibility, time.Now())
		return nil
	})
}

// DeleteRow removes rowID from the cache and marks its underlying session
// deleted, writing a tombstone into the row's own document.
func (b *Block) DeleteRow(ctx context.Context, rowID types.RowID) error {
	h, ok := b.cache.Get(rowID)
	if !ok {
		return nil
	}
	b.cache.Remove(rowID)
	return h.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		doc.Map("row").Set("deleted", true)
		return nil
	})
}

// CloseRows evicts the given row ids from the cache without touching
// storage.
func (b *Block) CloseRows(rowIDs []types.RowID) {
	for _, id := range rowIDs {
		b.cache.Remove(id)
	}
}

// BatchLoadRows enqueues a multi-row fetch; each row's completion is
// forwarded to the notifier as a DidFetchRow-style batch as fetches
// finish, rather than waiting for every row in the batch.
func (b *Block) BatchLoadRows(ctx context.Context, rowIDs []types.RowID) {
	for _, rowID := range rowIDs {
		id := rowID
		ch := b.tasks.FetchRow(ctx, b.tenant, id)
		go func() {
			detail, ok := <-ch
			if !ok {
				return
			}
			if detail.Row != nil {
				b.insertFetched(id, *detail.Row)
			}
			b.notifier.Publish([]types.RowDetail{detail})
		}()
	}
}

func (b *Block) enqueueFetch(ctx context.Context, rowID types.RowID) {
	sequence := b.sequence.Add(1)
	ch := b.tasks.FetchRow(ctx, b.tenant, rowID)
	go func() {
		detail, ok := <-ch
		if !ok {
			return
		}
		// If the row was created locally while the fetch was in flight,
		// local wins: don't clobber a row already in the cache.
		if _, cached := b.cache.Get(rowID); cached {
			return
		}
		if detail.Row != nil {
			b.insertFetched(rowID, *detail.Row)
		}
		log.WithRowID(string(rowID)).Debug().Uint32("sequence", sequence).Msg("row fetch completed")
		b.notifier.Publish([]types.RowDetail{detail})
	}()
}

func (b *Block) insertFetched(rowID types.RowID, row types.Row) {
	h, err := b.open(context.Background(), rowID)
	if err != nil {
		return
	}
	_ = h.Write(context.Background(), crdt.OriginRemote, func(doc crdt.Doc) error {
		rows.Create(doc, row, row.Meta.LastModified)
		return nil
	})
}

func (b *Block) open(ctx context.Context, rowID types.RowID) (*session.Handle, error) {
	if h, ok := b.cache.Get(rowID); ok {
		return h, nil
	}
	identity := b.identity(rowID)
	h, err := b.sessions.Open(ctx, identity)
	if err != nil {
		return nil, err
	}
	b.cache.Add(rowID, h)
	metrics.RowCacheSize.Set(float64(b.cache.Len()))
	return h, nil
}

func (b *Block) identity(rowID types.RowID) types.ObjectIdentity {
	return types.ObjectIdentity{Tenant: b.tenant, Object: RowObjectID(rowID), Kind: types.ObjectKindDatabaseRow}
}
