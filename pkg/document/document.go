// Package document translates block-tree mutations into CRDT-session
// transactions. A document lives in its own CRDT session: the root map
// holds the page id, a block map, and a meta map containing an ordered
// children list per parent and an attributed text delta per external id.
package document

import (
	"github.com/cuemby/collabcore/pkg/cerrors"
	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/types"
)

const (
	rootMap = "document"

	fieldPageID = "page_id"
	subBlocks   = "blocks"
	subMeta     = "meta"

	metaChildrenMap = "children_map"
	metaTextMap     = "text_map"

	blockFieldType       = "type"
	blockFieldParentID   = "parent_id"
	blockFieldChildrenID = "children_id"
	blockFieldExternalID = "external_id"
	blockFieldData       = "data"
)

// Create initializes an empty document tree with pageID as the root
// block's id under one write transaction.
func Create(doc crdt.Doc, pageID string) error {
	if pageID == "" {
		return cerrors.New(cerrors.KindPageIDEmpty, "page id must not be empty")
	}
	m := doc.Map(rootMap)
	m.Set(fieldPageID, pageID)
	m.SubMap(subBlocks)
	meta := m.SubMap(subMeta)
	meta.SubMap(metaChildrenMap)
	meta.SubMap(metaTextMap)
	return nil
}

// Read materializes the full DocumentData from an already-open
// transaction.
func Read(doc crdt.Doc) types.DocumentData {
	m := doc.Map(rootMap)
	data := types.DocumentData{
		Blocks:      map[string]types.Block{},
		ChildrenMap: map[string][]string{},
		TextMap:     map[string][]types.TextOp{},
	}
	if v, ok := m.Get(fieldPageID); ok {
		if s, ok := v.(string); ok {
			data.PageID = s
		}
	}

	blocks := m.SubMap(subBlocks)
	for _, id := range blocks.Keys() {
		sub := blocks.SubMap(id)
		data.Blocks[id] = readBlock(id, sub)
	}

	meta := m.SubMap(subMeta)
	children := meta.SubMap(metaChildrenMap)
	for _, parentID := range children.Keys() {
		arr := children.SubArray(parentID)
		ids := make([]string, 0, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			if v, ok := arr.Get(i); ok {
				if s, ok := v.(string); ok {
					ids = append(ids, s)
				}
			}
		}
		data.ChildrenMap[parentID] = ids
	}

	text := meta.SubMap(metaTextMap)
	for _, externalID := range text.Keys() {
		arr := text.SubArray(externalID)
		data.TextMap[externalID] = readDelta(arr)
	}

	return data
}

func readBlock(id string, m crdt.Map) types.Block {
	b := types.Block{ID: id, Data: map[string]any{}}
	if v, ok := m.Get(blockFieldType); ok {
		if s, ok := v.(string); ok {
			b.Type = s
		}
	}
	if v, ok := m.Get(blockFieldParentID); ok {
		if s, ok := v.(string); ok {
			b.ParentID = s
		}
	}
	if v, ok := m.Get(blockFieldChildrenID); ok {
		if s, ok := v.(string); ok {
			b.ChildrenID = s
		}
	}
	if v, ok := m.Get(blockFieldExternalID); ok {
		if s, ok := v.(string); ok {
			b.ExternalID = s
		}
	}
	data := m.SubMap(blockFieldData)
	for _, k := range data.Keys() {
		if v, ok := data.Get(k); ok {
			b.Data[k] = v
		}
	}
	return b
}

func readDelta(arr crdt.Array) []types.TextOp {
	out := make([]types.TextOp, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		v, ok := arr.Get(i)
		if !ok {
			continue
		}
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		op := types.TextOp{}
		if s, ok := entry["insert"].(string); ok {
			op.Insert = s
		}
		if n, ok := entry["delete"]; ok {
			op.Delete = toInt(n)
		}
		if n, ok := entry["retain"]; ok {
			op.Retain = toInt(n)
		}
		if attrs, ok := entry["attributes"].(map[string]any); ok {
			op.Attributes = attrs
		}
		out = append(out, op)
	}
	return out
}

// ApplyActions runs every action against doc in order, inside the caller's
// write transaction. It aborts and returns the first error without
// applying any later action; since the caller's transaction has not
// committed yet, none of the already-applied actions in this call persist
// either.
func ApplyActions(doc crdt.Doc, actions []types.BlockAction) error {
	for _, action := range actions {
		if err := applyOne(doc, action); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(doc crdt.Doc, action types.BlockAction) error {
	switch action.Action {
	case types.BlockActionInsert:
		return insertBlock(doc, action.Block, action.ParentID, action.PrevID)
	case types.BlockActionUpdate:
		return updateBlock(doc, action.Block)
	case types.BlockActionDelete:
		return deleteBlock(doc, action.Block.ID)
	case types.BlockActionMove:
		return moveBlock(doc, action.Block.ID, action.ParentID, action.PrevID)
	case types.BlockActionInsertText:
		return setDelta(doc, action.Block.ExternalID, action.Delta)
	case types.BlockActionApplyTextDelta:
		return appendDelta(doc, action.Block.ExternalID, action.Delta)
	default:
		return cerrors.Newf(cerrors.KindInternal, "unknown block action %d", action.Action)
	}
}

func insertBlock(doc crdt.Doc, block types.Block, parentID, prevID string) error {
	m := doc.Map(rootMap)
	blocks := m.SubMap(subBlocks)
	if _, exists := blocks.Get(block.ID); exists {
		return cerrors.Newf(cerrors.KindAlreadyExists, "block %q already exists", block.ID)
	}
	block.ParentID = parentID
	writeBlock(blocks.SubMap(block.ID), block)

	if parentID != "" {
		if err := insertIntoParent(m, parentID, block.ID, prevID); err != nil {
			return err
		}
	}
	return nil
}

func updateBlock(doc crdt.Doc, block types.Block) error {
	m := doc.Map(rootMap)
	blocks := m.SubMap(subBlocks)
	if _, exists := blocks.Get(block.ID); !exists {
		return cerrors.Newf(cerrors.KindBlockNotFound, "block %q not found", block.ID)
	}
	writeBlock(blocks.SubMap(block.ID), block)
	return nil
}

// deleteBlock recursively deletes block and all of its descendants, then
// removes it from its parent's children list.
func deleteBlock(doc crdt.Doc, blockID string) error {
	m := doc.Map(rootMap)
	blocks := m.SubMap(subBlocks)
	sub := blocks.SubMap(blockID)
	parentID, _ := sub.Get(blockFieldParentID)

	children := m.SubMap(subMeta).SubMap(metaChildrenMap)
	// Snapshot the child ids first: each recursive delete removes its id
	// from this same array, which would shift the remaining entries.
	for _, v := range children.SubArray(blockID).Values() {
		if childID, ok := v.(string); ok {
			if err := deleteBlock(doc, childID); err != nil {
				return err
			}
		}
	}

	blocks.Delete(blockID)
	if pid, ok := parentID.(string); ok && pid != "" {
		removeFromParent(m, pid, blockID)
	}
	return nil
}

// moveBlock deletes blockID from its current parent's children list and
// inserts it into newParentID at prevID+1 (or position 0 if prevID is
// absent).
func moveBlock(doc crdt.Doc, blockID, newParentID, prevID string) error {
	m := doc.Map(rootMap)
	blocks := m.SubMap(subBlocks)
	sub := blocks.SubMap(blockID)
	if oldParent, ok := sub.Get(blockFieldParentID); ok {
		if pid, ok := oldParent.(string); ok && pid != "" {
			removeFromParent(m, pid, blockID)
		}
	}
	sub.Set(blockFieldParentID, newParentID)
	return insertIntoParent(m, newParentID, blockID, prevID)
}

func insertIntoParent(m crdt.Map, parentID, blockID, prevID string) error {
	children := m.SubMap(subMeta).SubMap(metaChildrenMap)
	arr := children.SubArray(parentID)
	if prevID == "" {
		arr.Insert(0, blockID)
		return nil
	}
	for i := 0; i < arr.Len(); i++ {
		if v, ok := arr.Get(i); ok {
			if s, ok := v.(string); ok && s == prevID {
				arr.Insert(i+1, blockID)
				return nil
			}
		}
	}
	return cerrors.Newf(cerrors.KindParentNotFound, "prev block %q not found under parent %q", prevID, parentID)
}

func removeFromParent(m crdt.Map, parentID, blockID string) {
	children := m.SubMap(subMeta).SubMap(metaChildrenMap)
	arr := children.SubArray(parentID)
	for i := 0; i < arr.Len(); i++ {
		if v, ok := arr.Get(i); ok {
			if s, ok := v.(string); ok && s == blockID {
				arr.Delete(i)
				return
			}
		}
	}
}

func setDelta(doc crdt.Doc, externalID string, delta []types.TextOp) error {
	if externalID == "" {
		return cerrors.New(cerrors.KindTextActionParams, "external id must not be empty")
	}
	text := doc.Map(rootMap).SubMap(subMeta).SubMap(metaTextMap)
	arr := text.SubArray(externalID)
	for arr.Len() > 0 {
		arr.Delete(0)
	}
	for _, op := range delta {
		arr.Append(encodeOp(op))
	}
	return nil
}

func appendDelta(doc crdt.Doc, externalID string, delta []types.TextOp) error {
	if externalID == "" {
		return cerrors.New(cerrors.KindTextActionParams, "external id must not be empty")
	}
	text := doc.Map(rootMap).SubMap(subMeta).SubMap(metaTextMap)
	arr := text.SubArray(externalID)
	for _, op := range delta {
		arr.Append(encodeOp(op))
	}
	return nil
}

func encodeOp(op types.TextOp) map[string]any {
	return map[string]any{
		"insert":     op.Insert,
		"delete":     int64(op.Delete),
		"retain":     int64(op.Retain),
		"attributes": op.Attributes,
	}
}

func writeBlock(m crdt.Map, b types.Block) {
	m.Set(blockFieldType, b.Type)
	m.Set(blockFieldParentID, b.ParentID)
	m.Set(blockFieldChildrenID, b.ChildrenID)
	m.Set(blockFieldExternalID, b.ExternalID)
	data := m.SubMap(blockFieldData)
	for k, v := range b.Data {
		data.Set(k, v)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
