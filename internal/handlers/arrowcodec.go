package handlers

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BuildRecordBatch encodes a slice of flattened column maps into one Arrow
// record batch conforming to schema. Each map is one row; rows is built
// column-by-column via the standard Arrow record builder.
func BuildRecordBatch(schema *arrow.Schema, rows []map[string]any) (arrow.Record, error) {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i, field := range schema.Fields() {
		col := b.Field(i)
		for _, row := range rows {
			v, ok := row[field.Name]
			if !ok || v == nil {
				col.AppendNull()
				continue
			}
			if err := appendValue(col, field.Type, v); err != nil {
				return nil, fmt.Errorf("handlers: encoding column %q: %w", field.Name, err)
			}
		}
	}
	return b.NewRecord(), nil
}

// appendValue appends one Go value onto an Arrow array builder, dispatching
// on the builder's declared Arrow type.
func appendValue(b array.Builder, dt arrow.DataType, v any) error {
	switch builder := b.(type) {
	case *array.Int64Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		builder.Append(n)
	case *array.Int32Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		builder.Append(int32(n))
	case *array.Uint32Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		builder.Append(uint32(n))
	case *array.Uint64Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		builder.Append(uint64(n))
	case *array.Float64Builder:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		builder.Append(f)
	case *array.Float32Builder:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		builder.Append(float32(f))
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("handlers: expected bool, got %T", v)
		}
		builder.Append(bv)
	case *array.StringBuilder:
		sv, ok := v.(string)
		if !ok {
			return fmt.Errorf("handlers: expected string, got %T", v)
		}
		builder.Append(sv)
	case *array.BinaryBuilder:
		bv, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("handlers: expected []byte, got %T", v)
		}
		builder.Append(bv)
	case *array.StructBuilder:
		structType, ok := dt.(*arrow.StructType)
		if !ok {
			return fmt.Errorf("handlers: struct builder with non-struct type %T", dt)
		}
		row, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("handlers: expected map[string]any for struct field, got %T", v)
		}
		builder.Append(true)
		for i, f := range structType.Fields() {
			sub := builder.FieldBuilder(i)
			sv, present := row[f.Name]
			if !present || sv == nil {
				sub.AppendNull()
				continue
			}
			if err := appendValue(sub, f.Type, sv); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	default:
		return fmt.Errorf("handlers: unsupported arrow builder type %T for value %v", b, v)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("handlers: cannot convert %T to integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("handlers: cannot convert %T to float", v)
	}
}

// MeasureSerializedSize stream-encodes a single record batch to measure its
// exact wire size (schema overhead included), used by the byte-mode push
// path to decide whether a message would overflow B or M.
func MeasureSerializedSize(rec arrow.Record) (int64, error) {
	counter := &byteCounter{}
	w := ipcStreamWriter(counter, rec.Schema())
	if err := w.Write(rec); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return counter.n, nil
}
