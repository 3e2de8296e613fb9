// Package codec converts datasets to and from their wire forms: the split
// JSON document used by the store and the HTTP transport, and the CSV text
// accepted on upload.
package codec

import (
	"bytes"
	"io"
	"math"
	"time"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/json"
)

const (
	posInf = "Infinity"
	negInf = "-Infinity"
)

// Document is the split-oriented form of a dataset: column names, their
// types, a row index and a row-major value matrix. A null cell is missing;
// every other cell is read according to its column's dtype. Datetimes are
// RFC 3339 text with nanosecond precision.
type Document struct {
	Columns []string       `json:"columns"`
	Dtypes  []dataset.Type `json:"dtypes,omitempty"`
	Index   []int          `json:"index"`
	Data    [][]any        `json:"data"`
}

// ToDocument lays ds out as a split document.
func ToDocument(ds *dataset.Dataset) *Document {
	rows, cols := ds.Shape()
	doc := &Document{
		Columns: ds.Names(),
		Dtypes:  make([]dataset.Type, cols),
		Index:   make([]int, rows),
		Data:    make([][]any, rows),
	}
	for j := 0; j < cols; j++ {
		doc.Dtypes[j] = ds.ColumnAt(j).Type()
	}
	for i := 0; i < rows; i++ {
		doc.Index[i] = i
		row := make([]any, cols)
		for j := 0; j < cols; j++ {
			row[j] = encodeCell(ds.ColumnAt(j).Value(i))
		}
		doc.Data[i] = row
	}
	return doc
}

func encodeCell(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsInf(x, 1) {
			return posInf
		}
		if math.IsInf(x, -1) {
			return negInf
		}
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// FromDocument rebuilds a dataset. Documents without dtypes get per-column
// types inferred from the JSON values.
func FromDocument(doc *Document) (*dataset.Dataset, error) {
	if len(doc.Dtypes) != 0 && len(doc.Dtypes) != len(doc.Columns) {
		return nil, errors.Newf(errors.ErrorTypeParse, "document has %d dtypes for %d columns",
			len(doc.Dtypes), len(doc.Columns))
	}
	for i, row := range doc.Data {
		if len(row) != len(doc.Columns) {
			return nil, errors.Newf(errors.ErrorTypeParse, "row %d has %d cells, expected %d",
				i, len(row), len(doc.Columns))
		}
	}

	columns := make([]*dataset.Column, len(doc.Columns))
	for j, name := range doc.Columns {
		raw := make([]any, len(doc.Data))
		for i, row := range doc.Data {
			raw[i] = row[j]
		}
		var typ dataset.Type
		if len(doc.Dtypes) > 0 {
			typ = doc.Dtypes[j]
		} else {
			typ = inferJSONType(raw)
		}
		values := make([]any, len(raw))
		for i, cell := range raw {
			v, err := decodeCell(typ, cell)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeParse, "invalid cell").
					WithDetail("column", name).
					WithDetail("row", i)
			}
			values[i] = v
		}
		col, err := dataset.NewColumn(name, typ, values)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeParse, "invalid column")
		}
		columns[j] = col
	}
	ds, err := dataset.NewWithRows(len(doc.Data), columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "invalid document")
	}
	return ds, nil
}

func decodeCell(typ dataset.Type, cell any) (any, error) {
	if cell == nil {
		return nil, nil
	}
	switch typ {
	case dataset.Integer:
		switch x := cell.(type) {
		case json.Number:
			return x.Int64()
		case int64:
			return x, nil
		}
	case dataset.Float:
		switch x := cell.(type) {
		case json.Number:
			return x.Float64()
		case float64:
			return x, nil
		case string:
			switch x {
			case posInf:
				return math.Inf(1), nil
			case negInf:
				return math.Inf(-1), nil
			case "NaN":
				return nil, nil
			}
		}
	case dataset.String, dataset.Category:
		if s, ok := cell.(string); ok {
			return s, nil
		}
	case dataset.Boolean:
		if b, ok := cell.(bool); ok {
			return b, nil
		}
	case dataset.Datetime:
		if s, ok := cell.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeParse, "unknown dtype %q", typ)
	}
	return nil, errors.Newf(errors.ErrorTypeParse, "value %v does not fit dtype %s", cell, typ)
}

func inferJSONType(raw []any) dataset.Type {
	typ := dataset.Type("")
	for _, cell := range raw {
		var t dataset.Type
		switch x := cell.(type) {
		case nil:
			continue
		case bool:
			t = dataset.Boolean
		case string:
			t = dataset.String
		case json.Number:
			t = dataset.Float
			if _, err := x.Int64(); err == nil {
				t = dataset.Integer
			}
		default:
			return dataset.String
		}
		switch {
		case typ == "":
			typ = t
		case typ == t:
		case typ.IsNumeric() && t.IsNumeric():
			typ = dataset.Float
		default:
			return dataset.String
		}
	}
	if typ == "" {
		return dataset.Float
	}
	return typ
}

// EncodeSplit writes the split document for ds to w.
func EncodeSplit(w io.Writer, ds *dataset.Dataset) error {
	if err := json.Encode(w, ToDocument(ds)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode dataset")
	}
	return nil
}

// MarshalSplit returns the split document for ds.
func MarshalSplit(ds *dataset.Dataset) ([]byte, error) {
	buf := json.GetBuffer()
	defer json.PutBuffer(buf)
	if err := EncodeSplit(buf, ds); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeSplit reads a split document from r.
func DecodeSplit(r io.Reader) (*dataset.Dataset, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "could not read dataset document")
	}
	return FromDocument(&doc)
}

// UnmarshalSplit decodes a split document.
func UnmarshalSplit(data []byte) (*dataset.Dataset, error) {
	return DecodeSplit(bytes.NewReader(data))
}
