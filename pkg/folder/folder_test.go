package folder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/folder"
	"github.com/cuemby/collabcore/pkg/types"
)

func newSession(t *testing.T) crdt.Session {
	t.Helper()
	sess, err := crdt.NewFactory().Open(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestMoveViewReparentsNestedView(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		folder.InsertView(doc, types.FolderView{ID: "workspace", Name: "Workspace", CreatedAt: time.Now()})
		folder.InsertView(doc, types.FolderView{ID: "folder-a", ParentID: "workspace", Name: "Folder A", CreatedAt: time.Now()})
		folder.InsertView(doc, types.FolderView{ID: "folder-b", ParentID: "workspace", Name: "Folder B", CreatedAt: time.Now()})
		folder.MoveView(doc, "folder-a", "workspace")
		folder.MoveView(doc, "folder-b", "workspace")
		folder.InsertView(doc, types.FolderView{ID: "page-1", ParentID: "folder-a", Name: "Page 1", CreatedAt: time.Now()})
		folder.MoveView(doc, "page-1", "folder-a")
		return nil
	}))

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		folder.MoveView(doc, "page-1", "folder-b")
		return nil
	}))

	var page1, folderA, folderB types.FolderView
	var okA, okB, okPage bool
	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		page1, okPage = folder.GetView(doc, "page-1")
		folderA, okA = folder.GetView(doc, "folder-a")
		folderB, okB = folder.GetView(doc, "folder-b")
		return nil
	}))
	require.True(t, okPage)
	require.True(t, okA)
	require.True(t, okB)

	require.Equal(t, "folder-b", page1.ParentID)
	require.NotContains(t, folderA.ChildIDs, "page-1")
	require.Contains(t, folderB.ChildIDs, "page-1")
}

func TestMigrateWorkspaceToViewIsIdempotentAndLeavesLegacyKeysAlone(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		legacy := doc.Map("folder").SubArray("workspaces")
		legacy.Append(map[string]any{"id": "ws-1", "name": "My Workspace"})
		favorites := doc.Map("folder").SubArray("FAVORITES_V1")
		favorites.Append("view-9")
		return nil
	}))

	var ws types.Workspace
	var migrated bool
	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		ws, migrated = folder.MigrateWorkspaceToView(doc)
		return nil
	}))
	require.True(t, migrated)
	require.Equal(t, "ws-1", ws.ID)

	var view types.FolderView
	var exists bool
	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		view, exists = folder.GetView(doc, "ws-1")
		return nil
	}))
	require.True(t, exists)
	require.Equal(t, "My Workspace", view.Name)

	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		ws2, migrated2 := folder.MigrateWorkspaceToView(doc)
		require.True(t, migrated2)
		require.Equal(t, ws.ID, ws2.ID)
		return nil
	}))

	require.NoError(t, sess.Read(ctx, func(doc crdt.Doc) error {
		favs := folder.LegacyFavoritesV1(doc)
		require.Equal(t, []string{"view-9"}, favs)
		return nil
	}))
}

func TestMigrateWorkspaceToViewNoopWhenNoLegacyData(t *testing.T) {
	sess := newSession(t)
	ctx := context.Background()

	var migrated bool
	require.NoError(t, sess.Write(ctx, crdt.OriginLocal, func(doc crdt.Doc) error {
		_, migrated = folder.MigrateWorkspaceToView(doc)
		return nil
	}))
	require.False(t, migrated)
}
