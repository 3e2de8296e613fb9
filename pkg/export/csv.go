package export

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// WriteCSV writes a header row followed by one record per row. Datetime
// columns whose values all fall on midnight are written as plain dates.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Names()); err != nil {
		return err
	}

	cols := ds.Columns()
	dateOnly := make([]bool, len(cols))
	for j, col := range cols {
		dateOnly[j] = col.Type() == dataset.Datetime && allMidnight(col)
	}

	record := make([]string, len(cols))
	for i := 0; i < ds.NumRows(); i++ {
		for j, col := range cols {
			v := col.Value(i)
			if t, ok := v.(time.Time); ok {
				record[j] = dataset.FormatTime(t, dateOnly[j])
				continue
			}
			record[j] = dataset.FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func allMidnight(col *dataset.Column) bool {
	for i := 0; i < col.Len(); i++ {
		if t, ok := col.Value(i).(time.Time); ok && !dataset.IsMidnight(t) {
			return false
		}
	}
	return true
}
