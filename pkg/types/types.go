package types

import "time"

// Tenant is a signed 64-bit tenant identifier. Tenants partition every key
// in the update log and every entry in the row cache; two tenants never
// observe each other's objects.
type Tenant int64

// ObjectID identifies a CRDT-backed object (a document, a database, a
// folder) within a tenant.
type ObjectID string

// ObjectKind distinguishes the CRDT document types sharing the update log
// and key schema.
type ObjectKind uint8

const (
	ObjectKindDatabase ObjectKind = iota
	ObjectKindDatabaseRow
	ObjectKindDocument
	ObjectKindFolder
	ObjectKindWorkspace
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectKindDatabase:
		return "database"
	case ObjectKindDatabaseRow:
		return "database_row"
	case ObjectKindDocument:
		return "document"
	case ObjectKindFolder:
		return "folder"
	case ObjectKindWorkspace:
		return "workspace"
	default:
		return "unknown"
	}
}

// ObjectIdentity names an object uniquely within the store.
type ObjectIdentity struct {
	Tenant Tenant
	Object ObjectID
	Kind   ObjectKind
}

// Clock is the monotonic per-(tenant,object) sequence number assigned to
// each appended update record.
type Clock uint64

// UpdateRecord is a single appended CRDT update. Clocks within a
// (tenant, object) pair are strictly increasing.
type UpdateRecord struct {
	Tenant  Tenant
	Object  ObjectID
	Clock   Clock
	Payload []byte
}

// SnapshotRecord is a compacted state snapshot taken at a given clock. A
// newer snapshot overwrites an older one; it never accumulates a clock
// range of its own.
type SnapshotRecord struct {
	Tenant  Tenant
	Object  ObjectID
	Clock   Clock
	Payload []byte
}

// RowID identifies a database row. Row ids are opaque; the row cache maps
// each one deterministically to the CRDT object id that stores the row
// (rowcache.RowObjectID), so every client derives the same object id.
type RowID string

// RowMeta carries the row attributes that live outside the cell map:
// layout height, visibility, and audit timestamps.
type RowMeta struct {
	RowID        RowID
	Height       int
	Visibility   bool
	CreatedAt    time.Time
	LastModified time.Time
}

// Cell is an opaque field payload. FieldType tags how Data should be
// interpreted by a caller; collabcore never inspects Data itself.
type Cell struct {
	FieldID      string
	FieldType    string
	Data         map[string]any
	CreatedAt    time.Time
	LastModified time.Time
}

// Row is a fully materialized row: its metadata plus its cell map keyed by
// field id.
type Row struct {
	Meta  RowMeta
	Cells map[string]Cell
}

// EmptyRow returns the placeholder returned by read-side row accessors
// when a row does not exist, so UI callers never have to special-case a
// missing row as an error.
func EmptyRow(id RowID) Row {
	return Row{Meta: RowMeta{RowID: id}, Cells: map[string]Cell{}}
}

// RowOrder is a lightweight reference into a database's row ordering,
// independent of whether the row itself has been materialized.
type RowOrder struct {
	RowID  RowID
	Height int
}

// RowDetail is the result handed back by the task controller once a row
// fetch completes: the row id plus its materialized content, or nil
// Row if the remote reported the row does not exist.
type RowDetail struct {
	RowID RowID
	Row   *Row
}

// DatabaseLayout selects how a database's rows are rendered by a view.
type DatabaseLayout int

const (
	LayoutGrid DatabaseLayout = iota
	LayoutBoard
	LayoutCalendar
)

func (l DatabaseLayout) String() string {
	switch l {
	case LayoutGrid:
		return "grid"
	case LayoutBoard:
		return "board"
	case LayoutCalendar:
		return "calendar"
	default:
		return "unknown"
	}
}

// LayoutSetting is an opaque, layout-specific settings blob (filters,
// sorts, group configuration) keyed by the layout it applies to.
type LayoutSetting map[string]any

// View describes one way of presenting a database's rows.
type View struct {
	ID             string
	DatabaseID     string
	Name           string
	Layout         DatabaseLayout
	LayoutSettings map[DatabaseLayout]LayoutSetting
	FieldOrder     []string
	RowOrders      []RowOrder
	Filters        []Filter
	Sorts          []Sort
	Groups         []Group
	CreatedAt      time.Time
}

// Filter restricts which rows a view displays.
type Filter struct {
	ID        string
	FieldID   string
	Condition string
	Value     any
}

// Sort orders rows within a view.
type Sort struct {
	ID        string
	FieldID   string
	Ascending bool
}

// Group clusters rows within a view by a field's value.
type Group struct {
	ID      string
	FieldID string
}

// BlockActionType is the sum type of mutations applied to a document tree
// in a single transaction.
type BlockActionType int

const (
	BlockActionInsert BlockActionType = iota
	BlockActionUpdate
	BlockActionDelete
	BlockActionMove
	BlockActionInsertText
	BlockActionApplyTextDelta
)

// Block is one node of a document's tree. Its ordered children are listed
// in the tree's children map under the block's own ID; ChildrenID is
// stored with the block but is not used as that map's key. ExternalID
// (when non-empty) names the entry in the text map holding this block's
// rich text delta.
type Block struct {
	ID         string
	Type       string
	ParentID   string
	ChildrenID string
	ExternalID string
	Data       map[string]any
}

// BlockAction is one step of a document tree mutation, applied in order
// inside a single write transaction.
type BlockAction struct {
	Action   BlockActionType
	Block    Block
	ParentID string
	PrevID   string
	Delta    []TextOp
}

// TextOp is one operation of an attributed rich-text delta (insert,
// delete, or retain with formatting attributes).
type TextOp struct {
	Insert     string
	Delete     int
	Retain     int
	Attributes map[string]any
}

// DocumentData is the externally visible shape of a document tree: its
// root block id, the full block map, and the children/text maps.
type DocumentData struct {
	PageID      string
	Blocks      map[string]Block
	ChildrenMap map[string][]string
	TextMap     map[string][]TextOp
}

// Workspace is the root of a folder hierarchy.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// View kinds within a folder tree reuse the same node shape as database
// views but nest arbitrarily (a folder's "View" is a page/workspace entry,
// distinct from types.View above which belongs to a database).
type FolderView struct {
	ID         string
	ParentID   string
	Name       string
	Icon       string
	ChildIDs   []string
	IsFavorite bool
	CreatedAt  time.Time
}

// MsgID is the monotonically increasing identifier assigned to outbound
// sync messages.
type MsgID uint64

// MsgPriority orders pending outbound messages; lower sorts first.
type MsgPriority int

const (
	PriorityInit MsgPriority = iota
	PriorityNormal
	PriorityUrgent
)

// MsgState is the outbound message lifecycle.
type MsgState int

const (
	MsgPending MsgState = iota
	MsgProcessing
	MsgDone
	MsgTimeout
)

func (s MsgState) String() string {
	switch s {
	case MsgPending:
		return "pending"
	case MsgProcessing:
		return "processing"
	case MsgDone:
		return "done"
	case MsgTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// SinkState is the externally observable state of an outbound sync sink.
type SinkState int

const (
	SinkInit SinkState = iota
	SinkSyncing
	SinkFinished
)

func (s SinkState) String() string {
	switch s {
	case SinkInit:
		return "init"
	case SinkSyncing:
		return "syncing"
	case SinkFinished:
		return "finished"
	default:
		return "unknown"
	}
}
