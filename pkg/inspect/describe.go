// Package inspect derives read-only metadata from a dataset: per-column
// descriptions, the overview tables shown beside the preprocessing controls,
// and the univariate and bivariate summaries of the analysis pages.
//
// Nothing here is cached; every call recomputes from the snapshot it is
// given, so results always reflect the latest commit.
package inspect

import (
	"math"
	"slices"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// Float is a statistic that encodes non-finite values as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// NumericStats is the describe() block of a numeric column. Quantiles use
// linear interpolation between closest ranks; Std is the sample standard
// deviation and is NaN for fewer than two values.
type NumericStats struct {
	Count  int   `json:"count"`
	Mean   Float `json:"mean"`
	Std    Float `json:"std"`
	Min    Float `json:"min"`
	Q1     Float `json:"25%"`
	Median Float `json:"50%"`
	Q3     Float `json:"75%"`
	Max    Float `json:"max"`
}

// Frequency is one row of a value-count table.
type Frequency struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnMetadata describes one column.
type ColumnMetadata struct {
	Name        string        `json:"name"`
	Type        dataset.Type  `json:"type"`
	Kind        dataset.Kind  `json:"kind"`
	Count       int           `json:"count"`
	Missing     int           `json:"missing"`
	Unique      int           `json:"unique"`
	Stats       *NumericStats `json:"stats,omitempty"`
	Frequencies []Frequency   `json:"frequencies,omitempty"`
}

// Describe returns metadata for every column in order. An empty dataset
// yields an empty list.
func Describe(ds *dataset.Dataset) []ColumnMetadata {
	out := make([]ColumnMetadata, 0, ds.NumColumns())
	for _, col := range ds.Columns() {
		out = append(out, DescribeColumn(col))
	}
	return out
}

// DescribeColumn returns the metadata of a single column.
func DescribeColumn(col *dataset.Column) ColumnMetadata {
	missing := col.MissingCount()
	meta := ColumnMetadata{
		Name:    col.Name(),
		Type:    col.Type(),
		Kind:    col.Type().Kind(),
		Count:   col.Len() - missing,
		Missing: missing,
	}
	freqs := ValueCounts(col)
	meta.Unique = len(freqs)
	if col.Type().IsNumeric() {
		meta.Stats = Summarize(col.Floats())
	} else {
		meta.Frequencies = freqs
	}
	return meta
}

// Summarize computes the numeric describe block over xs. It returns nil for
// an empty input.
func Summarize(xs []float64) *NumericStats {
	if len(xs) == 0 {
		return nil
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = math.NaN()
	}
	return &NumericStats{
		Count:  len(sorted),
		Mean:   Float(mean),
		Std:    Float(std),
		Min:    Float(sorted[0]),
		Q1:     Float(Quantile(sorted, 0.25)),
		Median: Float(Quantile(sorted, 0.5)),
		Q3:     Float(Quantile(sorted, 0.75)),
		Max:    Float(sorted[len(sorted)-1]),
	}
}

// Quantile returns the p-quantile of sorted data using linear interpolation
// between the two nearest ranks, h = (n-1)p. sorted must be ascending and
// non-empty.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	if frac == 0 {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Median is the 50% quantile of the present values in xs.
func Median(xs []float64) float64 {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return Quantile(sorted, 0.5)
}

// ValueCounts tallies present values by their text form, most frequent
// first and ties in order of first appearance.
func ValueCounts(col *dataset.Column) []Frequency {
	counts := make(map[string]int)
	order := make([]string, 0)
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if v == nil {
			continue
		}
		key := dataset.FormatValue(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	out := make([]Frequency, len(order))
	for i, k := range order {
		out[i] = Frequency{Value: k, Count: counts[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
