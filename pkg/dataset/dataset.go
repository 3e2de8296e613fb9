package dataset

import (
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Dataset is an immutable snapshot of ordered, uniquely named columns of
// equal length. Every transformation returns a new Dataset; columns that a
// transformation leaves alone are shared between snapshots.
type Dataset struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New assembles a dataset, checking that names are unique and lengths agree.
func New(columns ...*Column) (*Dataset, error) {
	return build(-1, columns)
}

// NewWithRows is New with an explicit row count, which a dataset with no
// columns still carries. Every column must hold exactly rows values.
func NewWithRows(rows int, columns ...*Column) (*Dataset, error) {
	if rows < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "row count must not be negative, got %d", rows)
	}
	return build(rows, columns)
}

func build(rows int, columns []*Column) (*Dataset, error) {
	d := &Dataset{
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		rows:    max(rows, 0),
	}
	for i, c := range columns {
		if c == nil {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %d is nil", i)
		}
		if _, dup := d.index[c.name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "duplicate column name %q", c.name).
				WithDetail("column", c.name)
		}
		if i == 0 && rows < 0 {
			d.rows = c.Len()
		} else if c.Len() != d.rows {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"column %q has %d rows, expected %d", c.name, c.Len(), d.rows).
				WithDetail("column", c.name)
		}
		d.index[c.name] = len(d.columns)
		d.columns = append(d.columns, c)
	}
	return d, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(columns ...*Column) *Dataset {
	d, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return d
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return d.rows }

// NumColumns returns the column count.
func (d *Dataset) NumColumns() int { return len(d.columns) }

// Shape returns rows and columns.
func (d *Dataset) Shape() (int, int) { return d.rows, len(d.columns) }

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy; the columns
// themselves are immutable.
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// ColumnAt returns the i-th column.
func (d *Dataset) ColumnAt(i int) *Column { return d.columns[i] }

// Column looks a column up by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// Has reports whether a column named name exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Require returns the named column or a validation error naming it.
func (d *Dataset) Require(name string) (*Column, error) {
	c, ok := d.Column(name)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %s does not exist", name).
			WithDetail("column", name)
	}
	return c, nil
}

// Row returns the cells of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.columns))
	for j, c := range d.columns {
		row[j] = c.values[i]
	}
	return row
}

// TotalMissing counts missing cells across all columns.
func (d *Dataset) TotalMissing() int {
	n := 0
	for _, c := range d.columns {
		n += c.MissingCount()
	}
	return n
}

// WithColumn returns a dataset with col appended at the end.
func (d *Dataset) WithColumn(col *Column) (*Dataset, error) {
	if d.Has(col.name) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %s already exists", col.name).
			WithDetail("column", col.name)
	}
	cols := append(d.Columns(), col)
	return New(cols...)
}

// ReplaceColumn returns a dataset where the column named col.Name() is
// swapped for col, keeping its position.
func (d *Dataset) ReplaceColumn(col *Column) (*Dataset, error) {
	i, ok := d.index[col.name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %s does not exist", col.name).
			WithDetail("column", col.name)
	}
	cols := d.Columns()
	cols[i] = col
	return New(cols...)
}

// DropColumns returns a dataset without the named columns.
func (d *Dataset) DropColumns(names ...string) (*Dataset, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		if !d.Has(n) {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %s does not exist", n).
				WithDetail("column", n)
		}
		drop[n] = struct{}{}
	}
	cols := make([]*Column, 0, len(d.columns))
	for _, c := range d.columns {
		if _, ok := drop[c.name]; !ok {
			cols = append(cols, c)
		}
	}
	return NewWithRows(d.rows, cols...)
}

// SelectRows returns a dataset containing rows in the given order.
func (d *Dataset) SelectRows(rows []int) *Dataset {
	cols := make([]*Column, len(d.columns))
	for i, c := range d.columns {
		cols[i] = c.take(rows)
	}
	out := &Dataset{columns: cols, index: make(map[string]int, len(cols)), rows: len(rows)}
	for i, c := range cols {
		out.index[c.name] = i
	}
	return out
}

// Equal reports whether two datasets hold the same names, order, types and
// cells.
func (d *Dataset) Equal(o *Dataset) bool {
	if d.rows != o.rows || len(d.columns) != len(o.columns) {
		return false
	}
	for i := range d.columns {
		if !d.columns[i].Equal(o.columns[i]) {
			return false
		}
	}
	return true
}
