package updatelog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/types"
	"github.com/cuemby/collabcore/pkg/updatelog"
)

func openStore(t *testing.T) kvstore.Store {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateThenAppendAssignsSequentialClocks(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	require.NoError(t, log.Create(ctx, 1, "doc-1", []byte("initial")))
	clock, err := log.Append(ctx, 1, "doc-1", []byte("update-1"))
	require.NoError(t, err)
	require.Equal(t, types.Clock(1), clock)

	clock, err = log.Append(ctx, 1, "doc-1", []byte("update-2"))
	require.NoError(t, err)
	require.Equal(t, types.Clock(2), clock)
}

func TestCreateTwiceFailsWithAlreadyExists(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	require.NoError(t, log.Create(ctx, 1, "doc-1", []byte("initial")))
	err := log.Create(ctx, 1, "doc-1", []byte("initial-again"))
	require.True(t, cerrors.HasKind(err, cerrors.KindAlreadyExists))
}

func TestLoadReplaysUpdatesInClockOrder(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	require.NoError(t, log.Create(ctx, 1, "doc-1", []byte("u0")))
	_, err := log.Append(ctx, 1, "doc-1", []byte("u1"))
	require.NoError(t, err)
	_, err = log.Append(ctx, 1, "doc-1", []byte("u2"))
	require.NoError(t, err)

	var got []string
	require.NoError(t, log.Load(ctx, 1, "doc-1", func(payload []byte) error {
		got = append(got, string(payload))
		return nil
	}))
	require.Equal(t, []string{"u0", "u1", "u2"}, got)
}

func TestCompactToSnapshotLeavesNewerUpdatesAndLoadsOnlyFromSnapshot(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	require.NoError(t, log.Create(ctx, 1, "doc-1", []byte("u0")))
	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, 1, "doc-1", []byte("u"))
		require.NoError(t, err)
	}
	// clocks 0..3 now exist; compact through clock 2, leaving clock 3.
	require.NoError(t, log.CompactToSnapshot(ctx, 1, "doc-1", []byte("snapshot-at-2"), 2))

	var got []string
	require.NoError(t, log.Load(ctx, 1, "doc-1", func(payload []byte) error {
		got = append(got, string(payload))
		return nil
	}))
	require.Equal(t, []string{"snapshot-at-2", "u"}, got, "only the snapshot plus the one post-compaction update should replay")
}

func TestExistsIsFalseForUnknownObject(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	exists, err := log.Exists(ctx, 1, "never-created")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestObjectsAreIsolatedByTenantAndID(t *testing.T) {
	store := openStore(t)
	log := updatelog.New(store)
	ctx := context.Background()

	require.NoError(t, log.Create(ctx, 1, "doc-a", []byte("a0")))
	require.NoError(t, log.Create(ctx, 1, "doc-b", []byte("b0")))
	require.NoError(t, log.Create(ctx, 2, "doc-a", []byte("tenant2-a0")))

	var got []string
	require.NoError(t, log.Load(ctx, 1, "doc-a", func(payload []byte) error {
		got = append(got, string(payload))
		return nil
	}))
	require.Equal(t, []string{"a0"}, got)
}
