package transform

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/inspect"
)

// MissingMethod selects how missing cells are treated.
type MissingMethod string

const (
	MissingDrop     MissingMethod = "drop"
	MissingMean     MissingMethod = "mean"
	MissingMedian   MissingMethod = "median"
	MissingMode     MissingMethod = "mode"
	MissingConstant MissingMethod = "constant"
)

// MissingMethods lists the accepted methods in display order.
var MissingMethods = []MissingMethod{MissingDrop, MissingMean, MissingMedian, MissingMode, MissingConstant}

// MissingParams configures missing-value treatment.
type MissingParams struct {
	Column string        `json:"column" yaml:"column"`
	Method MissingMethod `json:"method" yaml:"method"`
	// Value is the fill for the constant method, as entered by the user.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Missing drops or fills missing cells of one column.
type Missing struct {
	params MissingParams
}

// NewMissing binds parameters, rejecting an empty column or unknown method.
func NewMissing(p MissingParams) (*Missing, error) {
	if p.Column == "" || p.Method == "" {
		return nil, validationf("Select a column and method.")
	}
	switch p.Method {
	case MissingDrop, MissingMean, MissingMedian, MissingMode, MissingConstant:
	default:
		return nil, validationf("unknown missing-value method %q", p.Method)
	}
	return &Missing{params: p}, nil
}

// Name implements Step.
func (m *Missing) Name() string { return StepMissing }

// Params returns the bound parameters.
func (m *Missing) Params() MissingParams { return m.params }

// Validate implements Step.
func (m *Missing) Validate(ds *dataset.Dataset) error {
	_, err := m.fill(ds)
	return err
}

// Apply implements Step.
func (m *Missing) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	col, err := ds.Require(m.params.Column)
	if err != nil {
		return nil, err
	}

	if m.params.Method == MissingDrop {
		keep := make([]int, 0, ds.NumRows())
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) {
				keep = append(keep, i)
			}
		}
		return &Result{
			Dataset: ds.SelectRows(keep),
			Message: fmt.Sprintf("Dropped rows where %s was missing.", col.Name()),
		}, nil
	}

	fill, err := m.fill(ds)
	if err != nil {
		return nil, err
	}
	typ := col.Type()
	if f, ok := fill.(float64); ok && typ == dataset.Integer {
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			fill = int64(f)
		} else {
			typ = dataset.Float
		}
	}

	values := col.Values()
	for i, v := range values {
		if v == nil {
			values[i] = fill
		}
	}
	filled, err := dataset.NewColumn(col.Name(), typ, values)
	if err != nil {
		return nil, err
	}
	out, err := ds.ReplaceColumn(filled)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Filled missing %s with %s.", col.Name(), m.params.Method)
	if m.params.Method == MissingConstant {
		msg = fmt.Sprintf("Filled missing %s with constant value: %s", col.Name(), m.params.Value)
	}
	return &Result{Dataset: out, Message: msg}, nil
}

// fill resolves the replacement value for the configured method. Numeric
// statistics come back as float64; the caller narrows them for integer
// columns.
func (m *Missing) fill(ds *dataset.Dataset) (any, error) {
	col, err := ds.Require(m.params.Column)
	if err != nil {
		return nil, err
	}

	switch m.params.Method {
	case MissingDrop:
		return nil, nil
	case MissingMean, MissingMedian:
		if err := requireNumeric(col); err != nil {
			return nil, err
		}
		xs := col.Floats()
		if len(xs) == 0 {
			return nil, validationf("column %s has no values to compute a %s from", col.Name(), m.params.Method)
		}
		if m.params.Method == MissingMedian {
			return inspect.Median(xs), nil
		}
		sum := 0.0
		for _, x := range xs {
			sum += x
		}
		return sum / float64(len(xs)), nil
	case MissingMode:
		v, ok := mode(col)
		if !ok {
			return nil, validationf("column %s has no values to compute a mode from", col.Name())
		}
		return v, nil
	default:
		return parseConstant(col, m.params.Value)
	}
}

// mode returns the most frequent present value, ties going to the value
// seen first.
func mode(col *dataset.Column) (any, bool) {
	counts := make(map[any]int)
	var order []any
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if v == nil {
			continue
		}
		key := modeKey(v)
		if counts[key] == 0 {
			order = append(order, v)
		}
		counts[key]++
	}
	var best any
	bestCount := 0
	for _, v := range order {
		if n := counts[modeKey(v)]; n > bestCount {
			best, bestCount = v, n
		}
	}
	return best, bestCount > 0
}

// modeKey makes datetimes comparable by instant.
func modeKey(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UnixNano()
	}
	return v
}

func parseConstant(col *dataset.Column, raw string) (any, error) {
	switch col.Type() {
	case dataset.Integer, dataset.Float:
		f, ok := dataset.ParseNumber(raw)
		if !ok {
			return nil, validationf("constant %q is not a number but column %s is numeric", raw, col.Name()).
				WithDetail("column", col.Name())
		}
		return f, nil
	case dataset.Boolean:
		b, ok := dataset.ParseBool(raw)
		if !ok {
			return nil, validationf("constant %q is not true or false but column %s is boolean", raw, col.Name())
		}
		return b, nil
	case dataset.Datetime:
		t, ok := dataset.ParseTime(raw)
		if !ok {
			return nil, validationf("constant %q is not a date but column %s is a datetime", raw, col.Name())
		}
		return t, nil
	default:
		return raw, nil
	}
}
