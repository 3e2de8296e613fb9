package transform

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// ConvertTargets lists the types a column can be converted to.
var ConvertTargets = []dataset.Type{dataset.Integer, dataset.Float, dataset.Category, dataset.Datetime, dataset.String}

// ConvertParams configures a type conversion.
type ConvertParams struct {
	Column string       `json:"column" yaml:"column"`
	Type   dataset.Type `json:"type" yaml:"type"`
}

// ConversionReport is the artifact of a conversion: how many present cells
// could not be represented in the target type and became missing.
type ConversionReport struct {
	Column  string       `json:"column"`
	From    dataset.Type `json:"from"`
	To      dataset.Type `json:"to"`
	Coerced int          `json:"coerced"`
}

// Convert changes the declared type of one column. Cells that fail to
// convert become missing instead of failing the step.
type Convert struct {
	params ConvertParams
}

// NewConvert binds parameters.
func NewConvert(p ConvertParams) (*Convert, error) {
	if p.Column == "" || p.Type == "" {
		return nil, validationf("Select a column and new data type.")
	}
	ok := false
	for _, t := range ConvertTargets {
		ok = ok || t == p.Type
	}
	if !ok {
		return nil, validationf("cannot convert to %q; choose one of integer, float, category, datetime, string", p.Type)
	}
	return &Convert{params: p}, nil
}

// Name implements Step.
func (c *Convert) Name() string { return StepConvert }

// Params returns the bound parameters.
func (c *Convert) Params() ConvertParams { return c.params }

// Validate implements Step.
func (c *Convert) Validate(ds *dataset.Dataset) error {
	col, err := ds.Require(c.params.Column)
	if err != nil {
		return err
	}
	if col.Type() == dataset.Boolean && c.params.Type == dataset.Datetime {
		return errors.Newf(errors.ErrorTypeCoercion, "boolean column %s cannot be converted to datetime", col.Name()).
			WithDetail("column", col.Name())
	}
	return nil
}

// Apply implements Step.
func (c *Convert) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := c.Validate(ds); err != nil {
		return nil, err
	}
	col, _ := ds.Column(c.params.Column)
	target := c.params.Type

	values := make([]any, col.Len())
	coerced := 0
	for i := range values {
		v := col.Value(i)
		if v == nil {
			continue
		}
		out, ok := convertCell(v, target)
		if !ok {
			coerced++
			continue
		}
		values[i] = out
	}

	converted, err := dataset.NewColumn(col.Name(), target, values)
	if err != nil {
		return nil, err
	}
	out, err := ds.ReplaceColumn(converted)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Converted %s to %s.", col.Name(), target)
	if coerced > 0 {
		msg += fmt.Sprintf(" %d value(s) could not be converted and are now missing.", coerced)
	}
	return &Result{
		Dataset:  out,
		Artifact: &ConversionReport{Column: col.Name(), From: col.Type(), To: target, Coerced: coerced},
		Message:  msg,
	}, nil
}

// convertCell converts a present cell, reporting false when the value has
// no representation in the target type.
func convertCell(v any, target dataset.Type) (any, bool) {
	switch target {
	case dataset.Integer:
		if s, ok := v.(string); ok {
			if i, ok := dataset.ParseInt(s); ok {
				return i, true
			}
		}
		if i, ok := v.(int64); ok {
			return i, true
		}
		if t, ok := v.(time.Time); ok {
			return t.UnixNano(), true
		}
		f, ok := dataset.ToFloat(v)
		if !ok || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
			return nil, false
		}
		return int64(f), true
	case dataset.Float:
		return dataset.ToFloat(v)
	case dataset.String, dataset.Category:
		return dataset.FormatValue(v), true
	case dataset.Datetime:
		switch x := v.(type) {
		case time.Time:
			return x, true
		case int64:
			return time.Unix(0, x).UTC(), true
		case float64:
			if math.IsInf(x, 0) || math.Abs(x) >= 1<<63 {
				return nil, false
			}
			return time.Unix(0, int64(x)).UTC(), true
		case string:
			return dataset.ParseTime(strings.TrimSpace(x))
		}
	}
	return nil, false
}
