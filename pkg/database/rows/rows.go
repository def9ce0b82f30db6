// Package rows translates database row and cell operations into CRDT
// transactions. A row lives in its own CRDT session; within that
// session's document, the root map holds the row's metadata fields
// directly and a nested "cells" map keyed by field id.
package rows

import (
	"time"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/types"
)

const (
	rootMap = "row"

	fieldRowID        = "row_id"
	fieldHeight       = "height"
	fieldVisibility   = "visibility"
	fieldCreatedAt    = "created_at"
	fieldLastModified = "last_modified"
	fieldCells        = "cells"

	cellFieldType    = "field_type"
	cellCreatedAt    = "created_at"
	cellLastModified = "last_modified"
	cellData         = "data"
)

// Read materializes a Row from an already-open read or write transaction.
func Read(doc crdt.Doc, rowID types.RowID) types.Row {
	m := doc.Map(rootMap)

	meta := types.RowMeta{RowID: rowID}
	if v, ok := m.Get(fieldHeight); ok {
		if h, ok := v.(int64); ok {
			meta.Height = int(h)
		} else if h, ok := v.(int); ok {
			meta.Height = h
		}
	}
	if v, ok := m.Get(fieldVisibility); ok {
		if b, ok := v.(bool); ok {
			meta.Visibility = b
		}
	}
	meta.CreatedAt = getTime(m, fieldCreatedAt)
	meta.LastModified = getTime(m, fieldLastModified)

	cells := map[string]types.Cell{}
	cellsMap := m.SubMap(fieldCells)
	for _, fieldID := range cellsMap.Keys() {
		fieldCellMap := cellsMap.SubMap(fieldID)
		cell := types.Cell{
			FieldID:      fieldID,
			CreatedAt:    getTime(fieldCellMap, cellCreatedAt),
			LastModified: getTime(fieldCellMap, cellLastModified),
			Data:         map[string]any{},
		}
		if v, ok := fieldCellMap.Get(cellFieldType); ok {
			if s, ok := v.(string); ok {
				cell.FieldType = s
			}
		}
		dataMap := fieldCellMap.SubMap(cellData)
		for _, k := range dataMap.Keys() {
			if v, ok := dataMap.Get(k); ok {
				cell.Data[k] = v
			}
		}
		cells[fieldID] = cell
	}

	return types.Row{Meta: meta, Cells: cells}
}

// Create initializes a brand-new row's metadata and cells inside an
// open write transaction.
func Create(doc crdt.Doc, row types.Row, now time.Time) {
	m := doc.Map(rootMap)
	m.Set(fieldRowID, string(row.Meta.RowID))
	m.Set(fieldHeight, int64(row.Meta.Height))
	m.Set(fieldVisibility, row.Meta.Visibility)
	m.Set(fieldCreatedAt, now.Format(time.RFC3339Nano))
	m.Set(fieldLastModified, now.Format(time.RFC3339Nano))

	cellsMap := m.SubMap(fieldCells)
	for fieldID, cell := range row.Cells {
		writeCell(cellsMap.SubMap(fieldID), cell, now)
	}
}

// UpdateCell inserts or updates one field's cell. created_at is stamped
// only on the cell's first write; last_modified is stamped on every
// write, matching the CellsUpdate::insert_cell invariant.
func UpdateCell(doc crdt.Doc, fieldID, fieldType string, data map[string]any, now time.Time) {
	m := doc.Map(rootMap)
	cellsMap := m.SubMap(fieldCells)
	fieldCellMap := cellsMap.SubMap(fieldID)

	if _, exists := fieldCellMap.Get(cellCreatedAt); !exists {
		fieldCellMap.Set(cellCreatedAt, now.Format(time.RFC3339Nano))
	}
	fieldCellMap.Set(cellLastModified, now.Format(time.RFC3339Nano))
	fieldCellMap.Set(cellFieldType, fieldType)

	dataMap := fieldCellMap.SubMap(cellData)
	for k, v := range data {
		dataMap.Set(k, v)
	}

	m.Set(fieldLastModified, now.Format(time.RFC3339Nano))
}

// UpdateMeta mutates the row's height/visibility fields and stamps
// last_modified.
func UpdateMeta(doc crdt.Doc, height int, visibility bool, now time.Time) {
	m := doc.Map(rootMap)
	m.Set(fieldHeight, int64(height))
	m.Set(fieldVisibility, visibility)
	m.Set(fieldLastModified, now.Format(time.RFC3339Nano))
}

func writeCell(m crdt.Map, cell types.Cell, now time.Time) {
	created := cell.CreatedAt
	if created.IsZero() {
		created = now
	}
	modified := cell.LastModified
	if modified.IsZero() {
		modified = now
	}
	m.Set(cellCreatedAt, created.Format(time.RFC3339Nano))
	m.Set(cellLastModified, modified.Format(time.RFC3339Nano))
	m.Set(cellFieldType, cell.FieldType)
	dataMap := m.SubMap(cellData)
	for k, v := range cell.Data {
		dataMap.Set(k, v)
	}
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
