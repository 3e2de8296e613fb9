package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/inspect"
	"github.com/ajitpratap0/prepdash/pkg/json"
	"github.com/ajitpratap0/prepdash/pkg/source"
	"github.com/ajitpratap0/prepdash/pkg/storage"
)

func newDescribeCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <uri>",
		Short: "Summarize a dataset",
		Long: `Load a dataset and print its overview and per-column statistics.

The URI may be a local path, file://, s3://, gs:// or postgres:// location.

Example:
  prepdash describe data/churn.csv
  prepdash describe s3://bucket/churn.parquet --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.Flags(), nil)
			if err != nil {
				return err
			}
			log, err := setupLogger(cfg, true)
			if err != nil {
				return err
			}
			objects := storage.NewClient(cfg.Sources.Storage, log)
			defer objects.Close()

			ds, err := source.NewLoader(objects, cfg.Sources.MaxRows, log).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeDescriptionJSON(cmd.OutOrStdout(), ds)
			}
			return writeDescription(cmd.OutOrStdout(), ds)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the description as JSON")
	return cmd
}

func writeDescriptionJSON(w io.Writer, ds *dataset.Dataset) error {
	data, err := json.MarshalIndent(map[string]any{
		"overview": inspect.NewOverview(ds),
		"columns":  inspect.Describe(ds),
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeDescription(w io.Writer, ds *dataset.Dataset) error {
	overview := inspect.NewOverview(ds)
	fmt.Fprintln(w, overview.Summary())
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tMISSING\tUNIQUE\tMEAN\tSTD\tMIN\tMAX\tTOP")
	for _, meta := range inspect.Describe(ds) {
		mean, std, lo, hi, top := "-", "-", "-", "-", "-"
		if s := meta.Stats; s != nil {
			mean = dataset.FormatFloat(float64(s.Mean))
			std = dataset.FormatFloat(float64(s.Std))
			lo = dataset.FormatFloat(float64(s.Min))
			hi = dataset.FormatFloat(float64(s.Max))
		}
		if len(meta.Frequencies) > 0 {
			top = fmt.Sprintf("%s (%d)", meta.Frequencies[0].Value, meta.Frequencies[0].Count)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			meta.Name, meta.Type, meta.Missing, meta.Unique, mean, std, lo, hi, top)
	}
	return tw.Flush()
}
