package taskcontroller_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/database/rows"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/taskcontroller"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

// fakeCollaborator serves canned update payloads and counts how many
// times GetUpdates is actually invoked, so tests can assert deduping.
type fakeCollaborator struct {
	mu      sync.Mutex
	updates map[types.ObjectID][][]byte
	calls   int32
	delay   time.Duration
}

func (f *fakeCollaborator) GetUpdates(ctx context.Context, _ types.Tenant, object types.ObjectID, _ types.ObjectKind) ([][]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[object], nil
}

func (f *fakeCollaborator) BatchGetUpdates(ctx context.Context, tenant types.Tenant, objects []types.ObjectID, kind types.ObjectKind) (map[types.ObjectID][][]byte, error) {
	out := map[types.ObjectID][][]byte{}
	for _, o := range objects {
		updates, err := f.GetUpdates(ctx, tenant, o, kind)
		if err != nil {
			return nil, err
		}
		out[o] = updates
	}
	return out, nil
}

func buildRowUpdate(t *testing.T, rowID types.RowID) []byte {
	t.Helper()
	sess, err := crdt.NewFactory().Open(context.Background(), nil)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Write(context.Background(), crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.Create(doc, types.Row{Meta: types.RowMeta{RowID: rowID, Height: 30}, Cells: map[string]types.Cell{}}, time.Now())
		return nil
	}))
	payload, err := sess.Encode()
	require.NoError(t, err)
	return payload
}

func TestFetchRowReturnsMaterializedRow(t *testing.T) {
	rowID := types.RowID("row-1")
	collab := &fakeCollaborator{updates: map[types.ObjectID][][]byte{
		types.ObjectID(rowID): {buildRowUpdate(t, rowID)},
	}}

	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := taskcontroller.New(collab, crdt.NewFactory(), updatelog.New(store), 4)

	ch := ctrl.FetchRow(context.Background(), 1, rowID)
	select {
	case detail, ok := <-ch:
		require.True(t, ok)
		require.Equal(t, rowID, detail.RowID)
		require.NotNil(t, detail.Row)
		require.Equal(t, 30, detail.Row.Meta.Height)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete in time")
	}
}

func TestFetchRowDedupesConcurrentRequestsForSameRow(t *testing.T) {
	rowID := types.RowID("row-1")
	collab := &fakeCollaborator{
		delay:   100 * time.Millisecond,
		updates: map[types.ObjectID][][]byte{types.ObjectID(rowID): {buildRowUpdate(t, rowID)}},
	}

	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := taskcontroller.New(collab, crdt.NewFactory(), updatelog.New(store), 4)

	ctx := context.Background()
	chA := ctrl.FetchRow(ctx, 1, rowID)
	chB := ctrl.FetchRow(ctx, 1, rowID)

	for _, ch := range []<-chan types.RowDetail{chA, chB} {
		select {
		case detail, ok := <-ch:
			require.True(t, ok)
			require.Equal(t, rowID, detail.RowID)
		case <-time.After(2 * time.Second):
			t.Fatal("fetch did not complete in time")
		}
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&collab.calls), "concurrent requests for the same row must coalesce onto one remote call")
}

func TestFetchRowSkipsRemoteCallWhenCallerCancelsBeforeFetchStarts(t *testing.T) {
	rowID := types.RowID("row-1")
	collab := &fakeCollaborator{
		delay:   200 * time.Millisecond,
		updates: map[types.ObjectID][][]byte{types.ObjectID(rowID): {buildRowUpdate(t, rowID)}},
	}

	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// One worker, occupied by an unrelated in-flight fetch, so the second
	// request's run() is still waiting on the semaphore when its context
	// is canceled.
	ctrl := taskcontroller.New(collab, crdt.NewFactory(), updatelog.New(store), 1)

	busyCtx := context.Background()
	_ = ctrl.FetchRow(busyCtx, 1, "other-row")

	cancelCtx, cancel := context.WithCancel(context.Background())
	ch := ctrl.FetchRow(cancelCtx, 1, "row-2")
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "canceled fetch with no remaining senders must close without a value")
	case <-time.After(2 * time.Second):
		t.Fatal("canceled fetch channel was never closed")
	}
}

func TestFetchRowKeysDeduplicationByTenantAndRow(t *testing.T) {
	rowID := types.RowID("shared-row")
	collab := &fakeCollaborator{updates: map[types.ObjectID][][]byte{
		types.ObjectID(rowID): {buildRowUpdate(t, rowID)},
	}}

	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := taskcontroller.New(collab, crdt.NewFactory(), updatelog.New(store), 4)

	chA := ctrl.FetchRow(context.Background(), 1, rowID)
	chB := ctrl.FetchRow(context.Background(), 2, rowID)

	for _, ch := range []<-chan types.RowDetail{chA, chB} {
		select {
		case detail, ok := <-ch:
			require.True(t, ok)
			require.Equal(t, rowID, detail.RowID)
		case <-time.After(2 * time.Second):
			t.Fatal("fetch did not complete in time")
		}
	}

	require.Equal(t, int32(2), atomic.LoadInt32(&collab.calls), "distinct tenants sharing a row id must not collide in the singleflight key")
}

func TestFetchRowMissingRemoteRowReturnsNilRow(t *testing.T) {
	rowID := types.RowID("ghost-row")
	collab := &fakeCollaborator{updates: map[types.ObjectID][][]byte{}}

	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := taskcontroller.New(collab, crdt.NewFactory(), updatelog.New(store), 2)

	ch := ctrl.FetchRow(context.Background(), 1, rowID)
	select {
	case detail, ok := <-ch:
		require.True(t, ok)
		require.Nil(t, detail.Row)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete in time")
	}
}
