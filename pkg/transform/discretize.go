package transform

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

const (
	// MinBins is the smallest accepted bin count.
	MinBins = 2
	// MaxBins is the largest accepted bin count.
	MaxBins = 1000
	// BinSuffix is appended to the source column name.
	BinSuffix = "_bin"
)

// DiscretizeParams configures equal-width binning.
type DiscretizeParams struct {
	Column string `json:"column" yaml:"column"`
	Bins   int    `json:"bins" yaml:"bins"`
}

// Discretize appends "<column>_bin", an integer bucket index in [0, bins)
// computed from equal-width intervals over the observed range. Intervals are
// closed on the right and the lowest edge is inclusive. Missing cells stay
// missing.
type Discretize struct {
	params DiscretizeParams
}

// NewDiscretize binds parameters.
func NewDiscretize(p DiscretizeParams) (*Discretize, error) {
	if p.Column == "" {
		return nil, validationf("Select a numeric column and number of bins.")
	}
	if p.Bins < MinBins || p.Bins > MaxBins {
		return nil, validationf("number of bins must be between %d and %d, got %d", MinBins, MaxBins, p.Bins)
	}
	return &Discretize{params: p}, nil
}

// Name implements Step.
func (d *Discretize) Name() string { return StepDiscretize }

// Params returns the bound parameters.
func (d *Discretize) Params() DiscretizeParams { return d.params }

// OutputColumn is the name of the generated column.
func (d *Discretize) OutputColumn() string { return d.params.Column + BinSuffix }

// Validate implements Step.
func (d *Discretize) Validate(ds *dataset.Dataset) error {
	col, err := ds.Require(d.params.Column)
	if err != nil {
		return err
	}
	if err := requireNumeric(col); err != nil {
		return err
	}
	if len(col.Floats()) == 0 {
		return validationf("column %s has no values to bin", col.Name())
	}
	if ds.Has(d.OutputColumn()) {
		return validationf("column %s already exists", d.OutputColumn()).WithDetail("column", d.OutputColumn())
	}
	return nil
}

// Apply implements Step.
func (d *Discretize) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := d.Validate(ds); err != nil {
		return nil, err
	}
	col, _ := ds.Column(d.params.Column)
	edges := binEdges(col.Floats(), d.params.Bins)

	values := make([]any, col.Len())
	for i := range values {
		x, ok := col.Float(i)
		if !ok {
			continue
		}
		values[i] = int64(bucket(edges, x))
	}
	binned, err := dataset.NewColumn(d.OutputColumn(), dataset.Integer, values)
	if err != nil {
		return nil, err
	}
	out, err := ds.WithColumn(binned)
	if err != nil {
		return nil, err
	}
	return &Result{
		Dataset: out,
		Message: fmt.Sprintf("Created discretized column %s with %d bins.", d.OutputColumn(), d.params.Bins),
	}, nil
}

// binEdges returns bins+1 ascending edges spanning [min, max]. A degenerate
// range returns nil, which puts every value in bucket 0.
func binEdges(xs []float64, bins int) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if lo == hi || math.IsInf(hi-lo, 0) {
		return nil
	}
	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi
	return edges
}

// bucket finds i with edges[i] < x <= edges[i+1]; values on the lowest edge
// land in bucket 0.
func bucket(edges []float64, x float64) int {
	if edges == nil {
		return 0
	}
	inner := edges[1:]
	i := sort.SearchFloat64s(inner, x)
	if i >= len(inner) {
		i = len(inner) - 1
	}
	return i
}
