package columnar

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	pjson "github.com/ajitpratap0/prepdash/pkg/json"
	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// avroName is the union branch name goavro uses for each column type.
func avroName(t dataset.Type) string {
	switch t {
	case dataset.Integer:
		return "long"
	case dataset.Float:
		return "double"
	case dataset.Boolean:
		return "boolean"
	case dataset.Datetime:
		return "long.timestamp-micros"
	default:
		return "string"
	}
}

func avroSchema(ds *dataset.Dataset) (string, error) {
	fields := make([]map[string]any, ds.NumColumns())
	for i, col := range ds.Columns() {
		var branch any = avroName(col.Type())
		if col.Type() == dataset.Datetime {
			branch = map[string]any{"type": "long", "logicalType": "timestamp-micros"}
		}
		fields[i] = map[string]any{
			"name":    avroFieldName(i),
			"type":    []any{"null", branch},
			"default": nil,
			"doc":     col.Name(),
			typeKey:   string(col.Type()),
		}
	}
	schema := map[string]any{
		"type":   "record",
		"name":   "Dataset",
		"fields": fields,
	}
	out, err := pjson.Marshal(schema)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Column names may contain characters Avro rejects in field names, so fields
// are positional and the real name travels in doc.
func avroFieldName(i int) string {
	return fmt.Sprintf("c%d", i)
}

func writeAvro(w io.Writer, ds *dataset.Dataset, config *WriterConfig) error {
	schema, err := avroSchema(ds)
	if err != nil {
		return fmt.Errorf("failed to build Avro schema: %w", err)
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return fmt.Errorf("failed to create Avro codec: %w", err)
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: avroCompression(config.Compression),
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	batch := make([]any, 0, min(config.BatchSize, ds.NumRows()))
	for i := 0; i < ds.NumRows(); i++ {
		rec := make(map[string]any, ds.NumColumns())
		for j, col := range ds.Columns() {
			rec[avroFieldName(j)] = avroValue(col.Type(), col.Value(i))
		}
		batch = append(batch, rec)
		if len(batch) == config.BatchSize {
			if err := ocf.Append(batch); err != nil {
				return fmt.Errorf("failed to append Avro records: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := ocf.Append(batch); err != nil {
			return fmt.Errorf("failed to append Avro records: %w", err)
		}
	}
	return nil
}

func avroValue(t dataset.Type, v any) any {
	if v == nil {
		return goavro.Union("null", nil)
	}
	if t == dataset.String || t == dataset.Category {
		v = dataset.FormatValue(v)
	}
	return goavro.Union(avroName(t), v)
}

func avroCompression(name string) string {
	switch strings.ToLower(name) {
	case "deflate", "gzip":
		return goavro.CompressionDeflateLabel
	case "none", "null", "":
		return goavro.CompressionNullLabel
	default:
		return goavro.CompressionSnappyLabel
	}
}

type avroField struct {
	Name string `json:"name"`
	Doc  string `json:"doc"`
	Type string `json:"prepdash.type"`
}

func readAvro(r io.Reader) (*dataset.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Avro data: %w", err)
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF reader: %w", err)
	}

	var schema struct {
		Fields []avroField `json:"fields"`
	}
	if err := pjson.Unmarshal([]byte(ocf.Codec().Schema()), &schema); err != nil {
		return nil, fmt.Errorf("failed to parse Avro schema: %w", err)
	}
	types := make([]dataset.Type, len(schema.Fields))
	for j, f := range schema.Fields {
		t, err := dataset.ParseType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		types[j] = t
	}

	values := make([][]any, len(schema.Fields))
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read Avro record: %w", err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected Avro datum %T", datum)
		}
		for j, f := range schema.Fields {
			values[j] = append(values[j], unwrapUnion(rec[f.Name]))
		}
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Avro file: %w", err)
	}

	cols := make([]*dataset.Column, len(schema.Fields))
	for j, f := range schema.Fields {
		col, err := dataset.NewColumn(f.Doc, types[j], values[j])
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	return dataset.New(cols...)
}

func unwrapUnion(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, inner := range m {
		if t, ok := inner.(time.Time); ok {
			return t.UTC()
		}
		return inner
	}
	return nil
}
