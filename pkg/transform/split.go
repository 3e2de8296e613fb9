package transform

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
)

// DefaultSeed is the shuffle seed used when none is configured.
const DefaultSeed uint64 = 42

// SplitParams configures a train/test partition.
type SplitParams struct {
	Target    string  `json:"target" yaml:"target"`
	TrainSize float64 `json:"train_size" yaml:"train_size"`
	// Seed overrides DefaultSeed when non-zero.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Shape is a (rows, columns) pair; Columns is -1 for one-dimensional targets.
type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

func (s Shape) String() string {
	if s.Columns < 0 {
		return fmt.Sprintf("(%d,)", s.Rows)
	}
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Columns)
}

// SplitSummary is the artifact of a train/test split.
type SplitSummary struct {
	Target    string  `json:"target"`
	TrainSize float64 `json:"train_size"`
	Seed      uint64  `json:"seed"`
	XTrain    Shape   `json:"x_train"`
	XTest     Shape   `json:"x_test"`
	YTrain    Shape   `json:"y_train"`
	YTest     Shape   `json:"y_test"`
	// TrainRows and TestRows are row positions in the working dataset.
	TrainRows []int `json:"train_rows"`
	TestRows  []int `json:"test_rows"`
}

// Split partitions rows into train and test sets after a seeded shuffle.
// The working dataset is not modified; the result carries only a summary.
type Split struct {
	params SplitParams
}

// NewSplit binds parameters.
func NewSplit(p SplitParams) (*Split, error) {
	if p.Target == "" {
		return nil, validationf("Select a target column.")
	}
	if !(p.TrainSize > 0 && p.TrainSize < 1) {
		return nil, validationf("train size must be strictly between 0 and 1, got %v", p.TrainSize)
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
	return &Split{params: p}, nil
}

// Name implements Step.
func (s *Split) Name() string { return StepSplit }

// Params returns the bound parameters.
func (s *Split) Params() SplitParams { return s.params }

// sizes returns the train and test row counts for n rows.
func (s *Split) sizes(n int) (int, int) {
	train := int(math.Floor(s.params.TrainSize*float64(n) + 1e-9))
	return train, n - train
}

// Validate implements Step.
func (s *Split) Validate(ds *dataset.Dataset) error {
	if _, err := ds.Require(s.params.Target); err != nil {
		return err
	}
	train, test := s.sizes(ds.NumRows())
	if train < 1 || test < 1 {
		return validationf("train size %v leaves an empty partition for %d rows (train %d, test %d)",
			s.params.TrainSize, ds.NumRows(), train, test)
	}
	return nil
}

// Apply implements Step.
func (s *Split) Apply(_ context.Context, ds *dataset.Dataset) (*Result, error) {
	if err := s.Validate(ds); err != nil {
		return nil, err
	}
	n := ds.NumRows()
	train, test := s.sizes(n)
	features := ds.NumColumns() - 1

	rng := rand.New(rand.NewPCG(s.params.Seed, s.params.Seed))
	perm := rng.Perm(n)

	summary := &SplitSummary{
		Target:    s.params.Target,
		TrainSize: s.params.TrainSize,
		Seed:      s.params.Seed,
		XTrain:    Shape{Rows: train, Columns: features},
		XTest:     Shape{Rows: test, Columns: features},
		YTrain:    Shape{Rows: train, Columns: -1},
		YTest:     Shape{Rows: test, Columns: -1},
		TestRows:  perm[:test],
		TrainRows: perm[test:],
	}
	msg := fmt.Sprintf("Train-test split done with train_size=%s.\nX_train: %s, X_test: %s, y_train: %s, y_test: %s",
		strconv.FormatFloat(s.params.TrainSize, 'g', -1, 64),
		summary.XTrain, summary.XTest, summary.YTrain, summary.YTest)

	return &Result{Artifact: summary, Message: msg}, nil
}

// Partition materializes the train and test datasets described by a summary.
func Partition(ds *dataset.Dataset, summary *SplitSummary) (train, test *dataset.Dataset) {
	return ds.SelectRows(summary.TrainRows), ds.SelectRows(summary.TestRows)
}
