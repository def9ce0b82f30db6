// Package views translates database view operations into CRDT-session
// transactions: row and field ordering, filters, sorts, groups, and the
// layout tag, stored under a single view document per view.
package views

import (
	"strconv"
	"time"

	"github.com/cuemby/collabcore/pkg/crdt"
	"github.com/cuemby/collabcore/pkg/types"
)

const (
	rootMap = "view"

	fieldID         = "id"
	fieldDatabaseID = "database_id"
	fieldName       = "name"
	fieldLayout     = "layout"
	fieldCreatedAt  = "created_at"

	subRowOrders      = "row_orders"
	subFieldOrder     = "field_order"
	subLayoutSettings = "layout_settings"
	subFilters        = "filters"
	subSorts          = "sorts"
	subGroups         = "groups"

	rowOrderFieldRowID  = "row_id"
	rowOrderFieldHeight = "height"

	filterID        = "id"
	filterFieldID   = "field_id"
	filterCondition = "condition"
	filterValue     = "value"

	sortID    = "id"
	sortField = "field_id"
	sortAsc   = "ascending"

	groupID      = "id"
	groupFieldID = "field_id"
)

// Create initializes a new view document under one write transaction.
func Create(doc crdt.Doc, v types.View) {
	m := doc.Map(rootMap)
	m.Set(fieldID, string(v.ID))
	m.Set(fieldDatabaseID, v.DatabaseID)
	m.Set(fieldName, v.Name)
	m.Set(fieldLayout, int64(v.Layout))
	m.Set(fieldCreatedAt, v.CreatedAt.Format(time.RFC3339Nano))

	fieldOrder := m.SubArray(subFieldOrder)
	for _, f := range v.FieldOrder {
		fieldOrder.Append(f)
	}

	rowOrders := m.SubArray(subRowOrders)
	for _, ro := range v.RowOrders {
		entry := map[string]any{rowOrderFieldRowID: string(ro.RowID), rowOrderFieldHeight: int64(ro.Height)}
		rowOrders.Append(entry)
	}

	settings := m.SubMap(subLayoutSettings)
	for layout, setting := range v.LayoutSettings {
		layoutMap := settings.SubMap(layoutKey(layout))
		for k, val := range setting {
			layoutMap.Set(k, val)
		}
	}

	writeFilters(m, v.Filters)
	writeSorts(m, v.Sorts)
	writeGroups(m, v.Groups)
}

// Read materializes a View from an already-open transaction.
func Read(doc crdt.Doc, viewID string) types.View {
	m := doc.Map(rootMap)

	v := types.View{ID: viewID}
	if val, ok := m.Get(fieldDatabaseID); ok {
		if s, ok := val.(string); ok {
			v.DatabaseID = s
		}
	}
	if val, ok := m.Get(fieldName); ok {
		if s, ok := val.(string); ok {
			v.Name = s
		}
	}
	if val, ok := m.Get(fieldLayout); ok {
		v.Layout = types.DatabaseLayout(toInt(val))
	}
	v.CreatedAt = getTime(m, fieldCreatedAt)

	fieldOrder := m.SubArray(subFieldOrder)
	for i := 0; i < fieldOrder.Len(); i++ {
		if val, ok := fieldOrder.Get(i); ok {
			if s, ok := val.(string); ok {
				v.FieldOrder = append(v.FieldOrder, s)
			}
		}
	}

	rowOrders := m.SubArray(subRowOrders)
	for i := 0; i < rowOrders.Len(); i++ {
		val, ok := rowOrders.Get(i)
		if !ok {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		ro := types.RowOrder{}
		if rid, ok := entry[rowOrderFieldRowID].(string); ok {
			ro.RowID = types.RowID(rid)
		}
		if h, ok := entry[rowOrderFieldHeight]; ok {
			ro.Height = toInt(h)
		}
		v.RowOrders = append(v.RowOrders, ro)
	}

	settings := m.SubMap(subLayoutSettings)
	v.LayoutSettings = map[types.DatabaseLayout]types.LayoutSetting{}
	for _, layoutStr := range settings.Keys() {
		layoutMap := settings.SubMap(layoutStr)
		setting := types.LayoutSetting{}
		for _, k := range layoutMap.Keys() {
			if val, ok := layoutMap.Get(k); ok {
				setting[k] = val
			}
		}
		v.LayoutSettings[parseLayoutKey(layoutStr)] = setting
	}

	v.Filters = readFilters(m)
	v.Sorts = readSorts(m)
	v.Groups = readGroups(m)
	return v
}

// Duplicate clones every sub-map of src into dst under one write
// transaction, assigning dst the new view's own identity and name.
func Duplicate(srcDoc crdt.Doc, dstDoc crdt.Doc, newID, newName string) {
	src := Read(srcDoc, "")
	src.ID = newID
	src.Name = newName
	Create(dstDoc, src)
}

// InsertRowOrder appends a row order; callers are responsible for keeping
// per-group filtering/sorting consistent on their own schedule.
func InsertRowOrder(doc crdt.Doc, ro types.RowOrder) {
	m := doc.Map(rootMap)
	rowOrders := m.SubArray(subRowOrders)
	entry := map[string]any{rowOrderFieldRowID: string(ro.RowID), rowOrderFieldHeight: int64(ro.Height)}
	rowOrders.Append(entry)
}

// RemoveRowOrder deletes the first row order entry matching rowID.
func RemoveRowOrder(doc crdt.Doc, rowID types.RowID) {
	m := doc.Map(rootMap)
	rowOrders := m.SubArray(subRowOrders)
	for i := 0; i < rowOrders.Len(); i++ {
		val, ok := rowOrders.Get(i)
		if !ok {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		if rid, ok := entry[rowOrderFieldRowID].(string); ok && types.RowID(rid) == rowID {
			rowOrders.Delete(i)
			return
		}
	}
}

func writeFilters(m crdt.Map, filters []types.Filter) {
	arr := m.SubArray(subFilters)
	for _, f := range filters {
		arr.Append(map[string]any{
			filterID:        f.ID,
			filterFieldID:   f.FieldID,
			filterCondition: f.Condition,
			filterValue:     f.Value,
		})
	}
}

func readFilters(m crdt.Map) []types.Filter {
	arr := m.SubArray(subFilters)
	var out []types.Filter
	for i := 0; i < arr.Len(); i++ {
		val, ok := arr.Get(i)
		if !ok {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		f := types.Filter{}
		if s, ok := entry[filterID].(string); ok {
			f.ID = s
		}
		if s, ok := entry[filterFieldID].(string); ok {
			f.FieldID = s
		}
		if s, ok := entry[filterCondition].(string); ok {
			f.Condition = s
		}
		f.Value = entry[filterValue]
		out = append(out, f)
	}
	return out
}

func writeSorts(m crdt.Map, sorts []types.Sort) {
	arr := m.SubArray(subSorts)
	for _, s := range sorts {
		arr.Append(map[string]any{
			sortID:    s.ID,
			sortField: s.FieldID,
			sortAsc:   s.Ascending,
		})
	}
}

func readSorts(m crdt.Map) []types.Sort {
	arr := m.SubArray(subSorts)
	var out []types.Sort
	for i := 0; i < arr.Len(); i++ {
		val, ok := arr.Get(i)
		if !ok {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		s := types.Sort{}
		if id, ok := entry[sortID].(string); ok {
			s.ID = id
		}
		if fid, ok := entry[sortField].(string); ok {
			s.FieldID = fid
		}
		if asc, ok := entry[sortAsc].(bool); ok {
			s.Ascending = asc
		}
		out = append(out, s)
	}
	return out
}

func writeGroups(m crdt.Map, groups []types.Group) {
	arr := m.SubArray(subGroups)
	for _, g := range groups {
		arr.Append(map[string]any{
			groupID:      g.ID,
			groupFieldID: g.FieldID,
		})
	}
}

func readGroups(m crdt.Map) []types.Group {
	arr := m.SubArray(subGroups)
	var out []types.Group
	for i := 0; i < arr.Len(); i++ {
		val, ok := arr.Get(i)
		if !ok {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		g := types.Group{}
		if id, ok := entry[groupID].(string); ok {
			g.ID = id
		}
		if fid, ok := entry[groupFieldID].(string); ok {
			g.FieldID = fid
		}
		out = append(out, g)
	}
	return out
}

func layoutKey(l types.DatabaseLayout) string {
	return strconv.Itoa(int(l))
}

func parseLayoutKey(s string) types.DatabaseLayout {
	n, _ := strconv.Atoi(s)
	return types.DatabaseLayout(n)
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
