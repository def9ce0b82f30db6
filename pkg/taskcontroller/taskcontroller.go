// Package taskcontroller runs the bounded-concurrency background fetcher
// that backs the row cache: requests for the same row coalesce onto one
// in-flight remote call, and a small worker pool bounds how many remote
// fetches run at once.
package taskcontroller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/database/rows"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/metrics"
	"github.com/cuemby/collabcore/pkg/remote"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
	"github.com/golang/groupcache/singleflight"
)

const defaultWorkers = 8

type key struct {
	tenant types.Tenant
	rowID  types.RowID
}

// Controller deduplicates and bounds concurrency for row-fetch tasks
// backed by a remote.Collaborator.
type Controller struct {
	collaborator remote.Collaborator
	factory      crdt.Factory
	log          *updatelog.Log

	group singleflight.Group
	sem   chan struct{}
	seq   uint64

	mu       sync.Mutex
	pending  map[key][]chan types.RowDetail
	canceled map[key]int // count of senders dropped before the fetch started
}

// New builds a controller with the given worker concurrency bound (0
// selects defaultWorkers).
func New(collaborator remote.Collaborator, factory crdt.Factory, log *updatelog.Log, workers int) *Controller {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Controller{
		collaborator: collaborator,
		factory:      factory,
		log:          log,
		sem:          make(chan struct{}, workers),
		pending:      map[key][]chan types.RowDetail{},
		canceled:     map[key]int{},
	}
}

// FetchRow enqueues a single-row fetch task, deduplicated with any other
// in-flight fetch for the same (tenant, rowID). It returns a buffered
// channel that receives exactly one types.RowDetail, or is closed without
// a value if the caller's context is canceled before the fetch starts.
func (c *Controller) FetchRow(ctx context.Context, tenant types.Tenant, rowID types.RowID) <-chan types.RowDetail {
	result := make(chan types.RowDetail, 1)
	k := key{tenant: tenant, rowID: rowID}

	c.mu.Lock()
	_, inFlight := c.pending[k]
	c.pending[k] = append(c.pending[k], result)
	c.mu.Unlock()

	sequence := atomic.AddUint64(&c.seq, 1)
	metrics.FetchTasksQueuedTotal.Inc()
	if inFlight {
		metrics.FetchTasksDedupedTotal.Inc()
	}
	metrics.FetchQueueDepth.Inc()

	if !inFlight {
		go c.run(ctx, k, sequence)
	}

	go func() {
		<-ctx.Done()
		c.dropSender(k, result)
	}()

	return result
}

// dropSender removes result from k's attached senders and closes it, since
// its caller is gone and nothing else will ever receive on it. If it was
// the last attached sender, the task is marked canceled so run can skip
// the remote call if it has not started yet.
func (c *Controller) dropSender(k key, result chan types.RowDetail) {
	c.mu.Lock()
	senders, ok := c.pending[k]
	if !ok {
		c.mu.Unlock()
		return
	}
	removed := false
	for i, s := range senders {
		if s == result {
			c.pending[k] = append(senders[:i], senders[i+1:]...)
			removed = true
			break
		}
	}
	if len(c.pending[k]) == 0 {
		c.canceled[k] = 1
	}
	c.mu.Unlock()
	if removed {
		close(result)
	}
}

func (c *Controller) run(ctx context.Context, k key, sequence uint64) {
	acquireCtx := ctx
	for {
		select {
		case c.sem <- struct{}{}:
		case <-acquireCtx.Done():
			c.mu.Lock()
			if len(c.pending[k]) > 0 {
				// Other callers are still waiting on this row even though
				// the context that started this task was canceled; keep
				// trying to acquire a permit on their behalf instead of
				// abandoning them.
				c.mu.Unlock()
				acquireCtx = context.Background()
				continue
			}
			delete(c.pending, k)
			delete(c.canceled, k)
			c.mu.Unlock()
			metrics.FetchQueueDepth.Dec()
			return
		}
		break
	}
	defer func() { <-c.sem }()

	c.mu.Lock()
	if c.canceled[k] > 0 {
		delete(c.pending, k)
		delete(c.canceled, k)
		c.mu.Unlock()
		metrics.FetchQueueDepth.Dec()
		return
	}
	c.mu.Unlock()

	timer := metrics.NewTimer()
	logger := log.WithRowID(string(k.rowID))

	// acquireCtx may have fallen back to context.Background() if the
	// caller that started this task was canceled while others were still
	// waiting on it; the fetch itself must not inherit that cancellation.
	detail, fetchErr := c.fetchOnce(acquireCtx, k)
	metrics.FetchQueueDepth.Dec()
	timer.ObserveDuration(metrics.FetchDuration)

	c.mu.Lock()
	senders := c.pending[k]
	delete(c.pending, k)
	delete(c.canceled, k)
	c.mu.Unlock()

	if fetchErr != nil {
		logger.Warn().Err(fetchErr).Uint64("sequence", sequence).Msg("row fetch failed")
		for _, s := range senders {
			close(s)
		}
		return
	}

	for _, s := range senders {
		s <- detail
	}
}

// fetchOnce calls the remote collaborator at most once per row, via
// singleflight.Group keyed the same as pending, constructs a transient
// CRDT document from the returned updates, appends them to the local log,
// and extracts the row payload.
func (c *Controller) fetchOnce(ctx context.Context, k key) (types.RowDetail, error) {
	sfKey := fmt.Sprintf("%d:%s", k.tenant, k.rowID)
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		updates, err := c.collaborator.GetUpdates(ctx, k.tenant, types.ObjectID(k.rowID), types.ObjectKindDatabaseRow)
		if err != nil {
			return nil, err
		}
		if len(updates) == 0 {
			return types.RowDetail{RowID: k.rowID, Row: nil}, nil
		}

		sess, err := c.factory.Open(ctx, updates)
		if err != nil {
			return nil, err
		}
		defer sess.Close()

		for _, u := range updates {
			if _, err := c.log.Append(ctx, k.tenant, types.ObjectID(k.rowID), u); err != nil {
				log.WithRowID(string(k.rowID)).Warn().Err(err).Msg("failed to persist fetched update")
			}
		}

		var row types.Row
		readErr := sess.Read(ctx, func(doc crdt.Doc) error {
			row = rows.Read(doc, k.rowID)
			return nil
		})
		if readErr != nil {
			return nil, readErr
		}
		return types.RowDetail{RowID: k.rowID, Row: &row}, nil
	})
	if err != nil {
		return types.RowDetail{}, err
	}
	return v.(types.RowDetail), nil
}
