// Package prepdash is an interactive preprocessing engine for tabular
// datasets.
//
// A session holds two datasets: a working dataset that preprocessing steps
// modify, and an analysis baseline used by the univariate and bivariate
// views. Each step reads the latest committed working dataset, validates
// its parameters, and either commits a new immutable snapshot or reports a
// user-facing error without touching the committed data.
//
// # Steps
//
//   - missing: drop rows or fill with mean, median, mode or a constant
//   - convert: change a column's type (integer, float, category, datetime, string)
//   - discretize: equal-width binning into <column>_bin
//   - normalize: min-max scaling of numeric columns
//   - encode: one-hot (first category dropped) or label encoding
//   - split: seeded train/test partition summary
//
// # Layout
//
//   - pkg/dataset: typed columns with a missing marker
//   - pkg/codec: split JSON documents and CSV upload decoding
//   - pkg/store: memory and Redis snapshot stores
//   - pkg/source, pkg/storage: loading from files, S3, GCS and PostgreSQL
//   - pkg/inspect: describe, overview, univariate and bivariate summaries
//   - pkg/transform: the steps and their parameter registry
//   - pkg/export: CSV, JSON, Parquet, Avro and XLSX export
//   - internal/pipeline: sessions and the apply/commit controller
//   - internal/server: the HTTP API
//   - cmd/prepdash: the serve, describe, run and version commands
//
// # Quick Start
//
//	prepdash serve --working data/churn.csv
//	prepdash run --input data/churn.csv --recipe cleanup.yaml --output out/
package prepdash
