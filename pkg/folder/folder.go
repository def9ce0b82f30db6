// Package folder translates workspace/view-tree operations into
// CRDT-session transactions, and carries the one-shot legacy migration
// that promotes a v1 workspace array into the current view tree.
package folder

import (
	"time"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/types"
)

const (
	rootMap = "folder"

	subViews     = "views"
	subWorkspace = "workspace"

	viewFieldParentID   = "parent_id"
	viewFieldName       = "name"
	viewFieldIcon       = "icon"
	viewFieldChildIDs   = "child_ids"
	viewFieldIsFavorite = "is_favorite"
	viewFieldCreatedAt  = "created_at"

	workspaceFieldID        = "id"
	workspaceFieldName      = "name"
	workspaceFieldCreatedAt = "created_at"

	// legacyWorkspaces and legacyFavoritesV1 are the deprecated keys a
	// migration reads from but never writes to or deletes.
	legacyWorkspaces  = "workspaces"
	legacyFavoritesV1 = "FAVORITES_V1"
)

// InsertView adds or replaces a folder view node under one write
// transaction.
func InsertView(doc crdt.Doc, v types.FolderView) {
	views := doc.Map(rootMap).SubMap(subViews)
	writeView(views.SubMap(v.ID), v)
}

// GetView reads one folder view node by id.
func GetView(doc crdt.Doc, viewID string) (types.FolderView, bool) {
	views := doc.Map(rootMap).SubMap(subViews)
	sub := views.SubMap(viewID)
	if _, ok := sub.Get(viewFieldName); !ok {
		return types.FolderView{}, false
	}
	return readView(viewID, sub), true
}

// MoveView reparents a view: removes it from its old parent's child list
// and appends it to the new parent's.
func MoveView(doc crdt.Doc, viewID, newParentID string) {
	views := doc.Map(rootMap).SubMap(subViews)
	sub := views.SubMap(viewID)
	if oldParent, ok := sub.Get(viewFieldParentID); ok {
		if pid, ok := oldParent.(string); ok && pid != "" {
			removeChild(views, pid, viewID)
		}
	}
	sub.Set(viewFieldParentID, newParentID)
	if newParentID != "" {
		addChild(views, newParentID, viewID)
	}
}

func addChild(views crdt.Map, parentID, childID string) {
	parent := views.SubMap(parentID)
	children := parent.SubArray(viewFieldChildIDs)
	children.Append(childID)
}

func removeChild(views crdt.Map, parentID, childID string) {
	parent := views.SubMap(parentID)
	children := parent.SubArray(viewFieldChildIDs)
	for i := 0; i < children.Len(); i++ {
		if v, ok := children.Get(i); ok {
			if s, ok := v.(string); ok && s == childID {
				children.Delete(i)
				return
			}
		}
	}
}

func writeView(m crdt.Map, v types.FolderView) {
	m.Set(viewFieldParentID, v.ParentID)
	m.Set(viewFieldName, v.Name)
	m.Set(viewFieldIcon, v.Icon)
	m.Set(viewFieldIsFavorite, v.IsFavorite)
	m.Set(viewFieldCreatedAt, v.CreatedAt.Format(time.RFC3339Nano))
	children := m.SubArray(viewFieldChildIDs)
	for _, id := range v.ChildIDs {
		children.Append(id)
	}
}

func readView(id string, m crdt.Map) types.FolderView {
	v := types.FolderView{ID: id}
	if s, ok := m.Get(viewFieldParentID); ok {
		v.ParentID, _ = s.(string)
	}
	if s, ok := m.Get(viewFieldName); ok {
		v.Name, _ = s.(string)
	}
	if s, ok := m.Get(viewFieldIcon); ok {
		v.Icon, _ = s.(string)
	}
	if b, ok := m.Get(viewFieldIsFavorite); ok {
		v.IsFavorite, _ = b.(bool)
	}
	v.CreatedAt = getTime(m, viewFieldCreatedAt)
	children := m.SubArray(viewFieldChildIDs)
	for i := 0; i < children.Len(); i++ {
		if val, ok := children.Get(i); ok {
			if s, ok := val.(string); ok {
				v.ChildIDs = append(v.ChildIDs, s)
			}
		}
	}
	return v
}

// MigrateWorkspaceToView reads the legacy "workspaces" array and produces
// a single root workspace view inserted into the current view tree. It is
// idempotent: calling it again after the root view already exists is a
// no-op, and the legacy keys (legacyWorkspaces, legacyFavoritesV1) are
// left untouched either way.
func MigrateWorkspaceToView(doc crdt.Doc) (types.Workspace, bool) {
	root := doc.Map(rootMap)
	legacy := root.SubArray(legacyWorkspaces)
	if legacy.Len() == 0 {
		return types.Workspace{}, false
	}

	val, ok := legacy.Get(0)
	if !ok {
		return types.Workspace{}, false
	}
	entry, ok := val.(map[string]any)
	if !ok {
		return types.Workspace{}, false
	}

	ws := types.Workspace{}
	if s, ok := entry[workspaceFieldID].(string); ok {
		ws.ID = s
	}
	if s, ok := entry[workspaceFieldName].(string); ok {
		ws.Name = s
	}
	if ws.ID == "" {
		return types.Workspace{}, false
	}

	if _, exists := GetView(doc, ws.ID); exists {
		return ws, true
	}

	InsertView(doc, types.FolderView{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: time.Now(),
	})
	return ws, true
}

// LegacyFavoritesV1 returns the raw ids stored under the deprecated
// FAVORITES_V1 key, for callers migrating favorites separately from the
// workspace tree.
func LegacyFavoritesV1(doc crdt.Doc) []string {
	arr := doc.Map(rootMap).SubArray(legacyFavoritesV1)
	out := make([]string, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if v, ok := arr.Get(i); ok {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func getTime(m crdt.Map, key string) time.Time {
	v, ok := m.Get(key)
	if !ok {
		return time.Time{}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
