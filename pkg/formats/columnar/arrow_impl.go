package columnar

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// arrowSchema maps dataset columns onto nullable Arrow fields.
func arrowSchema(ds *dataset.Dataset) *arrow.Schema {
	fields := make([]arrow.Field, ds.NumColumns())
	for i, col := range ds.Columns() {
		fields[i] = arrow.Field{
			Name:     col.Name(),
			Type:     arrowType(col.Type()),
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{typeKey}, []string{string(col.Type())}),
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t dataset.Type) arrow.DataType {
	switch t {
	case dataset.Integer:
		return arrow.PrimitiveTypes.Int64
	case dataset.Float:
		return arrow.PrimitiveTypes.Float64
	case dataset.Boolean:
		return arrow.FixedWidthTypes.Boolean
	case dataset.Datetime:
		return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

// records slices ds into Arrow record batches of at most batch rows.
func records(ds *dataset.Dataset, schema *arrow.Schema, batch int) []arrow.Record {
	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	var out []arrow.Record
	n := ds.NumRows()
	for start := 0; ; start += batch {
		end := min(start+batch, n)
		for j, col := range ds.Columns() {
			appendColumn(builder.Field(j), col, start, end)
		}
		out = append(out, builder.NewRecord())
		if end >= n {
			break
		}
	}
	return out
}

func appendColumn(b array.Builder, col *dataset.Column, start, end int) {
	for i := start; i < end; i++ {
		v := col.Value(i)
		if v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.Int64Builder:
			bb.Append(v.(int64))
		case *array.Float64Builder:
			bb.Append(v.(float64))
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.TimestampBuilder:
			bb.Append(arrow.Timestamp(v.(time.Time).UnixNano()))
		case *array.StringBuilder:
			bb.Append(dataset.FormatValue(v))
		default:
			b.AppendNull()
		}
	}
}

// columnsFromArrow rebuilds dataset columns from a schema and the chunks of
// each column.
func columnsFromArrow(schema *arrow.Schema, chunks [][]arrow.Array) (*dataset.Dataset, error) {
	cols := make([]*dataset.Column, len(schema.Fields()))
	for j, field := range schema.Fields() {
		typ := fieldType(field)
		var values []any
		for _, arr := range chunks[j] {
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					values = append(values, nil)
					continue
				}
				v, err := arrowValue(arr, i)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", field.Name, err)
				}
				values = append(values, v)
			}
		}
		col, err := dataset.NewColumn(field.Name, typ, values)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	return dataset.New(cols...)
}

func fieldType(field arrow.Field) dataset.Type {
	if i := field.Metadata.FindKey(typeKey); i >= 0 {
		if t, err := dataset.ParseType(field.Metadata.Values()[i]); err == nil {
			return t
		}
	}
	switch field.Type.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		return dataset.Integer
	case arrow.FLOAT32, arrow.FLOAT64:
		return dataset.Float
	case arrow.BOOL:
		return dataset.Boolean
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return dataset.Datetime
	}
	return dataset.String
}

func arrowValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	case *array.Date32:
		return a.Value(i).ToTime().UTC(), nil
	}
	return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
}

func writeArrow(w io.Writer, ds *dataset.Dataset, config *WriterConfig) error {
	schema := arrowSchema(ds)
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return fmt.Errorf("failed to create Arrow writer: %w", err)
	}
	for _, rec := range records(ds, schema, config.BatchSize) {
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("failed to write record batch: %w", err)
		}
	}
	return fw.Close()
}

func readArrow(r io.Reader) (*dataset.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Arrow data: %w", err)
	}
	fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	chunks := make([][]arrow.Array, len(schema.Fields()))
	for b := 0; b < fr.NumRecords(); b++ {
		rec, err := fr.RecordAt(b)
		if err != nil {
			return nil, fmt.Errorf("failed to read record batch: %w", err)
		}
		defer rec.Release()
		for j := range chunks {
			chunks[j] = append(chunks[j], rec.Column(j))
		}
	}
	return columnsFromArrow(schema, chunks)
}
