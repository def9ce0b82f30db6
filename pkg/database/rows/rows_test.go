package rows_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/database/rows"
	"github.com/cuemby/collabcore/pkg/types"
)

func newSession(t *testing.T) crdt.Session {
	t.Helper()
	sess, err := crdt.NewFactory().Open(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// TestUpdateCellStampsCreatedOnceAndModifiedEveryWrite mirrors the
// CellsUpdate::insert_cell invariant: created_at is set on the first
// write to a cell and never again, while last_modified advances on
// every subsequent write.
func TestUpdateCellStampsCreatedOnceAndModifiedEveryWrite(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()

	row := types.Row{
		Meta:  types.RowMeta{RowID: "row-1", Height: 36, Visibility: true},
		Cells: map[string]types.Cell{},
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.Create(doc, row, t0)
		return nil
	}))

	t1 := t0.Add(time.Minute)
	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.UpdateCell(doc, "field-title", "text", map[string]any{"text": "hello"}, t1)
		return nil
	}))

	var got types.Row
	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		got = rows.Read(doc, "row-1")
		return nil
	}))

	cell, ok := got.Cells["field-title"]
	require.True(t, ok)
	require.Equal(t, "text", cell.FieldType)
	require.Equal(t, "hello", cell.Data["text"])
	require.True(t, cell.CreatedAt.Equal(t1))
	require.True(t, cell.LastModified.Equal(t1))

	t2 := t1.Add(time.Minute)
	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.UpdateCell(doc, "field-title", "text", map[string]any{"text": "updated"}, t2)
		return nil
	}))

	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		got = rows.Read(doc, "row-1")
		return nil
	}))

	cell = got.Cells["field-title"]
	require.Equal(t, "updated", cell.Data["text"])
	require.True(t, cell.CreatedAt.Equal(t1), "created_at must not move on a second write")
	require.True(t, cell.LastModified.Equal(t2))
}

func TestUpdateMetaStampsLastModified(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.Create(doc, types.Row{Meta: types.RowMeta{RowID: "row-1"}, Cells: map[string]types.Cell{}}, t0)
		return nil
	}))

	t1 := t0.Add(time.Hour)
	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		rows.UpdateMeta(doc, 60, false, t1)
		return nil
	}))

	var got types.Row
	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		got = rows.Read(doc, "row-1")
		return nil
	}))
	require.Equal(t, 60, got.Meta.Height)
	require.False(t, got.Meta.Visibility)
	require.True(t, got.Meta.LastModified.Equal(t1))
}
