package inspect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// MissingEntry is a row of the missing-value table.
type MissingEntry struct {
	Column  string `json:"column"`
	Missing int    `json:"missing"`
}

// DtypeEntry is a row of the column-type table.
type DtypeEntry struct {
	Column string       `json:"column"`
	Type   dataset.Type `json:"type"`
}

// ColumnOptions are the column lists used to populate step inputs.
type ColumnOptions struct {
	All         []string `json:"all"`
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// Overview summarizes a dataset for the preprocessing page.
type Overview struct {
	Rows         int            `json:"rows"`
	Columns      int            `json:"columns"`
	TotalMissing int            `json:"total_missing"`
	Missing      []MissingEntry `json:"missing"`
	Dtypes       []DtypeEntry   `json:"dtypes"`
	Options      ColumnOptions  `json:"options"`
}

// Summary renders the one-line header of the preprocessing page.
func (o *Overview) Summary() string {
	return fmt.Sprintf("Rows: %d | Columns: %d | Total missing values: %d", o.Rows, o.Columns, o.TotalMissing)
}

// NewOverview builds the overview. The missing table lists only columns with
// at least one missing cell.
func NewOverview(ds *dataset.Dataset) *Overview {
	rows, cols := ds.Shape()
	o := &Overview{
		Rows:    rows,
		Columns: cols,
		Missing: []MissingEntry{},
		Dtypes:  make([]DtypeEntry, 0, cols),
		Options: ColumnOptions{All: []string{}, Numeric: []string{}, Categorical: []string{}},
	}
	for _, col := range ds.Columns() {
		m := col.MissingCount()
		o.TotalMissing += m
		if m > 0 {
			o.Missing = append(o.Missing, MissingEntry{Column: col.Name(), Missing: m})
		}
		o.Dtypes = append(o.Dtypes, DtypeEntry{Column: col.Name(), Type: col.Type()})
		o.Options.All = append(o.Options.All, col.Name())
		switch col.Type().Kind() {
		case dataset.KindNumeric:
			o.Options.Numeric = append(o.Options.Numeric, col.Name())
		case dataset.KindCategorical:
			o.Options.Categorical = append(o.Options.Categorical, col.Name())
		}
	}
	return o
}

// Univariate describes a single column of ds.
func Univariate(ds *dataset.Dataset, column string) (*ColumnMetadata, error) {
	col, err := ds.Require(column)
	if err != nil {
		return nil, err
	}
	meta := DescribeColumn(col)
	return &meta, nil
}

// Bin is one histogram bucket covering [Low, High), the last one closed.
type Bin struct {
	Low   Float `json:"low"`
	High  Float `json:"high"`
	Count int   `json:"count"`
}

// MaxBins is the largest histogram bin count.
const MaxBins = 1000

// Histogram buckets the present finite values of a numeric column into bins
// of equal width. Infinite values are not counted.
func Histogram(ds *dataset.Dataset, column string, bins int) ([]Bin, error) {
	col, err := ds.Require(column)
	if err != nil {
		return nil, err
	}
	if !col.Type().IsNumeric() {
		return nil, errors.Newf(errors.ErrorTypeValidation, "column %s is not numeric", column)
	}
	if bins < 1 || bins > MaxBins {
		return nil, errors.Newf(errors.ErrorTypeValidation, "bins must be between 1 and %d, got %d", MaxBins, bins)
	}
	xs := finite(col.Floats())
	if len(xs) == 0 {
		return []Bin{}, nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if lo == hi {
		return []Bin{{Low: Float(lo), High: Float(hi), Count: len(xs)}}, nil
	}
	// scaled before subtracting so extreme ranges do not overflow
	width := hi/float64(bins) - lo/float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Low: Float(lo + float64(i)*width), High: Float(lo + float64(i+1)*width)}
	}
	out[bins-1].High = Float(hi)
	for _, x := range xs {
		out[binIndex((x-lo)/width, bins)].Count++
	}
	return out, nil
}

func finite(xs []float64) []float64 {
	out := xs[:0:0]
	for _, x := range xs {
		if !math.IsInf(x, 0) && !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

func binIndex(pos float64, bins int) int {
	switch {
	case math.IsNaN(pos) || pos < 0:
		return 0
	case pos >= float64(bins):
		return bins - 1
	}
	return int(pos)
}

// Correlation is the bivariate summary for a pair of columns.
type Correlation struct {
	X           string `json:"x"`
	Y           string `json:"y"`
	Numeric     bool   `json:"numeric"`
	Pairs       int    `json:"pairs"`
	Coefficient *Float `json:"coefficient,omitempty"`
	Message     string `json:"message"`
}

// Bivariate computes the Pearson correlation of two numeric columns over
// rows where both cells are present. Non-numeric pairs get an explanatory
// message instead of a coefficient.
func Bivariate(ds *dataset.Dataset, x, y string) (*Correlation, error) {
	if x == "" || y == "" {
		return &Correlation{X: x, Y: y, Message: "Please select both X and Y variables."}, nil
	}
	cx, err := ds.Require(x)
	if err != nil {
		return nil, err
	}
	cy, err := ds.Require(y)
	if err != nil {
		return nil, err
	}
	out := &Correlation{X: x, Y: y}
	if !cx.Type().IsNumeric() || !cy.Type().IsNumeric() {
		out.Message = "Correlation only computed for numeric X and Y."
		return out, nil
	}
	out.Numeric = true

	var xs, ys []float64
	for i := 0; i < ds.NumRows(); i++ {
		a, okA := cx.Float(i)
		b, okB := cy.Float(i)
		if okA && okB {
			xs = append(xs, a)
			ys = append(ys, b)
		}
	}
	out.Pairs = len(xs)
	r := math.NaN()
	if len(xs) >= 2 {
		r = stat.Correlation(xs, ys, nil)
	}
	coef := Float(r)
	out.Coefficient = &coef
	if math.IsNaN(r) {
		out.Message = fmt.Sprintf("Correlation between %s and %s: nan", x, y)
	} else {
		out.Message = fmt.Sprintf("Correlation between %s and %s: %.3f", x, y, r)
	}
	return out, nil
}
