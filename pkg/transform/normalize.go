package transform

import (
	"context"
	"fmt"
	"math"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// NormalizeParams configures min-max scaling.
type NormalizeParams struct {
	Columns []string `json:"columns" yaml:"columns"`
}

// Normalize rescales each selected numeric column to [0, 1] using its
// observed minimum and maximum. A column whose range is empty or zero is
// left untouched.
type Normalize struct {
	params NormalizeParams
}

// NewNormalize binds parameters.
func NewNormalize(p NormalizeParams) (*Normalize, error) {
	if len(p.Columns) == 0 {
		return nil, validationf("Select at least one numeric column to normalize.")
	}
	return &Normalize{params: p}, nil
}

// Name implements Step.
func (n *Normalize) Name() string { return StepNormalize }

// Params returns the bound parameters.
func (n *Normalize) Params() NormalizeParams { return n.params }

// Validate implements Step.
func (n *Normalize) Validate(ds *dataset.Dataset) error {
	cols, err := resolveColumns(ds, n.params.Columns, "Select at least one numeric column to normalize.")
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := requireNumeric(c); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements Step.
func (n *Normalize) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := n.Validate(ds); err != nil {
		return nil, err
	}
	out := ds
	for _, name := range n.params.Columns {
		col, _ := out.Column(name)
		scaled, changed, err := minMax(col)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		if out, err = out.ReplaceColumn(scaled); err != nil {
			return nil, err
		}
	}
	return &Result{
		Dataset: out,
		Message: fmt.Sprintf("Applied min-max normalization to: %s.", joinNames(n.params.Columns)),
	}, nil
}

func minMax(col *dataset.Column) (*dataset.Column, bool, error) {
	xs := col.Floats()
	if len(xs) == 0 {
		return col, false, nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	span := hi - lo
	if span == 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return col, false, nil
	}
	values := make([]any, col.Len())
	for i := range values {
		if x, ok := col.Float(i); ok {
			values[i] = (x - lo) / span
		}
	}
	scaled, err := dataset.NewColumn(col.Name(), dataset.Float, values)
	return scaled, true, err
}
