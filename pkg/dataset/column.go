package dataset

import (
	"math"
	"time"

	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Column is an immutable, named sequence of cells of a single declared type.
// A nil cell is the missing marker.
type Column struct {
	name   string
	typ    Type
	values []any
}

// NewColumn builds a column, copying values. Go numeric kinds are widened
// to the column's storage type, float NaN becomes missing and datetimes are
// normalized to UTC. A value that does not fit typ is a validation error.
func NewColumn(name string, typ Type, values []any) (*Column, error) {
	if name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "column name must not be empty")
	}
	if !typ.valid() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %s has unknown type %q", name, typ)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		c, err := normalize(typ, v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid cell").
				WithDetail("column", name).
				WithDetail("row", i)
		}
		cells[i] = c
	}
	return &Column{name: name, typ: typ, values: cells}, nil
}

// MustColumn is NewColumn for fixtures; it panics on invalid input.
func MustColumn(name string, typ Type, values ...any) *Column {
	c, err := NewColumn(name, typ, values)
	if err != nil {
		panic(err)
	}
	return c
}

func normalize(typ Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case Integer:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		}
	case Float:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int64:
			f = float64(x)
		case int:
			f = float64(x)
		case int32:
			f = float64(x)
		default:
			return nil, errors.Newf(errors.ErrorTypeValidation, "value %v (%T) is not a float", v, v)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case String, Category:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Datetime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeValidation, "value %v (%T) does not fit a %s column", v, v, typ)
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the declared type.
func (c *Column) Type() Type { return c.typ }

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.values) }

// Value returns cell i; nil means missing.
func (c *Column) Value(i int) any { return c.values[i] }

// IsMissing reports whether cell i holds the missing marker.
func (c *Column) IsMissing(i int) bool { return c.values[i] == nil }

// Values returns a copy of the cells.
func (c *Column) Values() []any {
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// MissingCount counts missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.values {
		if v == nil {
			n++
		}
	}
	return n
}

// Float reads cell i as a number. It reports false for missing cells and
// for values with no numeric reading.
func (c *Column) Float(i int) (float64, bool) {
	return ToFloat(c.values[i])
}

// Floats returns the present numeric values in row order.
func (c *Column) Floats() []float64 {
	out := make([]float64, 0, len(c.values))
	for _, v := range c.values {
		if f, ok := ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// Renamed returns the same cells under a new name.
func (c *Column) Renamed(name string) *Column {
	return &Column{name: name, typ: c.typ, values: c.values}
}

// take returns the cells at rows, in order.
func (c *Column) take(rows []int) *Column {
	cells := make([]any, len(rows))
	for i, r := range rows {
		cells[i] = c.values[r]
	}
	return &Column{name: c.name, typ: c.typ, values: cells}
}

// Equal reports whether two columns have the same name, type and cells.
func (c *Column) Equal(o *Column) bool {
	if c.name != o.name || c.typ != o.typ || len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if !cellEqual(c.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

func cellEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}
