// Package transform implements the preprocessing steps. Each step validates
// its parameters against a dataset snapshot and, when valid, returns a new
// snapshot; the input is never modified. Steps hold no state between calls.
package transform

import (
	"context"
	"strings"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Step names as used by the registry, the HTTP API and recipe files.
const (
	StepMissing    = "missing"
	StepConvert    = "convert"
	StepDiscretize = "discretize"
	StepNormalize  = "normalize"
	StepEncode     = "encode"
	StepSplit      = "split"
)

// Step is one preprocessing operation with its parameters bound.
type Step interface {
	// Name returns the registry name of the step.
	Name() string
	// Validate checks the parameters against ds without transforming it.
	Validate(ds *dataset.Dataset) error
	// Apply validates and then transforms ds.
	Apply(ctx context.Context, ds *dataset.Dataset) (*Result, error)
}

// Result is the outcome of a successful step.
type Result struct {
	// Dataset is the new working snapshot, or nil for steps that only
	// produce an artifact.
	Dataset *dataset.Dataset
	// Artifact carries step-specific output such as a split summary.
	Artifact any
	// Message is the confirmation shown to the user.
	Message string
}

func validationf(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.ErrorTypeValidation, format, args...)
}

// resolveColumns looks up a non-empty, duplicate-free selection.
func resolveColumns(ds *dataset.Dataset, names []string, prompt string) ([]*dataset.Column, error) {
	if len(names) == 0 {
		return nil, validationf("%s", prompt)
	}
	seen := make(map[string]struct{}, len(names))
	cols := make([]*dataset.Column, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, validationf("column %s is selected more than once", n).WithDetail("column", n)
		}
		seen[n] = struct{}{}
		c, err := ds.Require(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func requireNumeric(c *dataset.Column) error {
	if !c.Type().IsNumeric() {
		return validationf("column %s is not numeric (type %s)", c.Name(), c.Type()).
			WithDetail("column", c.Name())
	}
	return nil
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
