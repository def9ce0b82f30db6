/*
Package types defines the core data structures shared across collabcore.

These are the types every other package exchanges: object identity, update
and snapshot records, row and cell shapes, view layouts, document blocks,
folder entries, and the outbound sync message vocabulary. No package
constructs its own parallel notion of a row or an object id; they all
import this one.

# Core Types

Object identity and the update log:
  - Tenant, ObjectID, ObjectKind, ObjectIdentity
  - Clock: the monotonic per-(tenant,object) sequence number
  - UpdateRecord, SnapshotRecord

Rows and cells (pkg/database/rows, pkg/rowcache):
  - Row, RowMeta, Cell, RowOrder, RowDetail
  - EmptyRow: the placeholder returned by read-side row accessors for a
    row that does not exist, so callers never branch on a not-found error
    just to render a blank row

Database views (pkg/database/views):
  - DatabaseLayout, LayoutSetting, View, Filter, Sort, Group

Document trees (pkg/document):
  - Block, BlockAction, BlockActionType, TextOp, DocumentData

Folders (pkg/folder):
  - Workspace, FolderView

Outbound sync (pkg/sink):
  - MsgID, MsgPriority, MsgState, SinkState

# Usage

Identifying an object:

	id := types.ObjectIdentity{Tenant: 7, Object: "doc-1", Kind: types.ObjectKindDocument}

Building a row:

	row := types.Row{
		Meta: types.RowMeta{RowID: "row-1", CreatedAt: now, LastModified: now},
		Cells: map[string]types.Cell{
			"title": {FieldID: "title", FieldType: "text", Data: map[string]any{"text": "hello"}},
		},
	}

Read-side callers never see a not-found error for a missing row:

	row := block.GetRow(ctx, rowID) // returns types.EmptyRow(rowID) if absent
*/
package types
