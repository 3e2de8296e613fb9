package export

import (
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

const sheetName = "processed_dataset"

// WriteXLSX writes ds as a single worksheet with a styled header row.
// Missing cells are left blank; infinite floats are written as text.
func WriteXLSX(w io.Writer, ds *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return err
	}
	datetimeStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}
	cols := ds.Columns()
	if err := sw.SetColWidth(1, max(len(cols), 1), 15); err != nil {
		return err
	}

	header := make([]interface{}, len(cols))
	timeStyle := make([]int, len(cols))
	for j, col := range cols {
		header[j] = excelize.Cell{StyleID: headerStyle, Value: col.Name()}
		timeStyle[j] = datetimeStyle
		if col.Type() == dataset.Datetime && allMidnight(col) {
			timeStyle[j] = dateStyle
		}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i := 0; i < ds.NumRows(); i++ {
		row := make([]interface{}, len(cols))
		for j, col := range cols {
			row[j] = xlsxValue(col.Value(i), timeStyle[j])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

func xlsxValue(v any, timeStyle int) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsInf(x, 0) {
			return dataset.FormatFloat(x)
		}
		return x
	case time.Time:
		return excelize.Cell{StyleID: timeStyle, Value: x}
	}
	return v
}
