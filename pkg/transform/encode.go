package transform

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// EncodeMethod selects the categorical encoding.
type EncodeMethod string

const (
	EncodeOneHot EncodeMethod = "onehot"
	EncodeLabel  EncodeMethod = "label"
)

// EncodeParams configures categorical encoding.
type EncodeParams struct {
	Columns []string     `json:"columns" yaml:"columns"`
	Method  EncodeMethod `json:"method" yaml:"method"`
}

// Encode turns categorical columns into numbers.
//
// One-hot encoding takes the distinct present values of a column in order of
// first appearance, treats the first as the reference category and appends
// one boolean indicator "<column>_<value>" for each of the others, removing
// the source column. A row whose source cell is missing gets false in every
// indicator.
//
// Label encoding replaces the column in place with integer codes assigned in
// order of first appearance; missing cells stay missing.
type Encode struct {
	params EncodeParams
}

// NewEncode binds parameters.
func NewEncode(p EncodeParams) (*Encode, error) {
	if len(p.Columns) == 0 || p.Method == "" {
		return nil, validationf("Select categorical columns and an encoding method.")
	}
	if p.Method != EncodeOneHot && p.Method != EncodeLabel {
		return nil, validationf("unknown encoding method %q", p.Method)
	}
	return &Encode{params: p}, nil
}

// Name implements Step.
func (e *Encode) Name() string { return StepEncode }

// Params returns the bound parameters.
func (e *Encode) Params() EncodeParams { return e.params }

// Validate implements Step.
func (e *Encode) Validate(ds *dataset.Dataset) error {
	cols, err := resolveColumns(ds, e.params.Columns, "Select categorical columns and an encoding method.")
	if err != nil {
		return err
	}
	for _, c := range cols {
		if !c.Type().IsCategorical() {
			return validationf("column %s is not categorical (type %s)", c.Name(), c.Type()).
				WithDetail("column", c.Name())
		}
	}
	if e.params.Method == EncodeOneHot {
		_, err := e.indicatorNames(ds, cols)
		return err
	}
	return nil
}

// Apply implements Step.
func (e *Encode) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := e.Validate(ds); err != nil {
		return nil, err
	}
	cols, _ := resolveColumns(ds, e.params.Columns, "")

	var (
		out *dataset.Dataset
		err error
		msg string
	)
	switch e.params.Method {
	case EncodeOneHot:
		out, err = e.oneHot(ds, cols)
		msg = fmt.Sprintf("Applied one-hot encoding to: %s.", joinNames(e.params.Columns))
	default:
		out, err = e.label(ds, cols)
		msg = fmt.Sprintf("Applied label encoding to: %s.", joinNames(e.params.Columns))
	}
	if err != nil {
		return nil, err
	}
	return &Result{Dataset: out, Message: msg}, nil
}

// categories returns distinct present values in first-seen order, keyed by
// their text form.
func categories(col *dataset.Column) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if v == nil {
			continue
		}
		k := dataset.FormatValue(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// indicatorNames returns the generated names per source column and rejects
// any that would clash with a surviving column or with each other.
func (e *Encode) indicatorNames(ds *dataset.Dataset, cols []*dataset.Column) ([][]string, error) {
	removed := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		removed[c.Name()] = struct{}{}
	}
	generated := make(map[string]string)
	names := make([][]string, len(cols))
	for i, c := range cols {
		cats := categories(c)
		if len(cats) > 0 {
			cats = cats[1:]
		}
		for _, cat := range cats {
			name := c.Name() + "_" + cat
			if _, gone := removed[name]; !gone && ds.Has(name) {
				return nil, validationf("one-hot column %s already exists", name).WithDetail("column", name)
			}
			if other, dup := generated[name]; dup {
				return nil, validationf("one-hot column %s would be generated for both %s and %s", name, other, c.Name()).
					WithDetail("column", name)
			}
			generated[name] = c.Name()
			names[i] = append(names[i], name)
		}
	}
	return names, nil
}

func (e *Encode) oneHot(ds *dataset.Dataset, cols []*dataset.Column) (*dataset.Dataset, error) {
	names, err := e.indicatorNames(ds, cols)
	if err != nil {
		return nil, err
	}
	out, err := ds.DropColumns(e.params.Columns...)
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		for _, name := range names[i] {
			category := name[len(c.Name())+1:]
			values := make([]any, c.Len())
			for r := range values {
				v := c.Value(r)
				values[r] = v != nil && dataset.FormatValue(v) == category
			}
			indicator, err := dataset.NewColumn(name, dataset.Boolean, values)
			if err != nil {
				return nil, err
			}
			if out, err = out.WithColumn(indicator); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (e *Encode) label(ds *dataset.Dataset, cols []*dataset.Column) (*dataset.Dataset, error) {
	out := ds
	for _, c := range cols {
		codes := make(map[string]int64)
		for i, k := range categories(c) {
			codes[k] = int64(i)
		}
		values := make([]any, c.Len())
		for r := range values {
			if v := c.Value(r); v != nil {
				values[r] = codes[dataset.FormatValue(v)]
			}
		}
		encoded, err := dataset.NewColumn(c.Name(), dataset.Integer, values)
		if err != nil {
			return nil, err
		}
		if out, err = out.ReplaceColumn(encoded); err != nil {
			return nil, err
		}
	}
	return out, nil
}
