package handlers

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// columnValueAt extracts the Go value of one array element, recursing into
// struct columns. Returns nil for a null slot.
func columnValueAt(col arrow.Array, idx int) any {
	if col.IsNull(idx) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(idx)
	case *array.Int32:
		return a.Value(idx)
	case *array.Uint32:
		return a.Value(idx)
	case *array.Uint64:
		return a.Value(idx)
	case *array.Float64:
		return a.Value(idx)
	case *array.Float32:
		return a.Value(idx)
	case *array.Boolean:
		return a.Value(idx)
	case *array.String:
		return a.Value(idx)
	case *array.Binary:
		return a.Value(idx)
	case *array.Struct:
		out := make(map[string]any, a.NumField())
		structType := a.DataType().(*arrow.StructType)
		for i, f := range structType.Fields() {
			out[f.Name] = columnValueAt(a.Field(i), idx)
		}
		return out
	default:
		return nil
	}
}
