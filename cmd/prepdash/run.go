package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/config"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/export"
	"github.com/ajitpratap0/prepdash/pkg/source"
	"github.com/ajitpratap0/prepdash/pkg/storage"
	"github.com/ajitpratap0/prepdash/pkg/store"
	"github.com/ajitpratap0/prepdash/pkg/transform"
)

type runOptions struct {
	input       string
	recipe      string
	output      string
	format      string
	compression string
	timeout     time.Duration
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a recipe of steps to a dataset and export the result",
		Long: `Load a dataset, replay the steps of a YAML recipe in order and export the
processed dataset. Processing stops at the first failing step.

Example:
  prepdash run --input data/churn.csv --recipe cleanup.yaml --output out/ --format parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cmd.Flags(), map[string]string{
				"sources.working":    "input",
				"export.destination": "output",
				"export.format":      "format",
				"export.compression": "compression",
			})
			if err != nil {
				return err
			}
			opts.input = cfg.Sources.Working
			opts.output = cfg.Export.Destination
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runRecipe(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Dataset URI to process (required)")
	cmd.Flags().StringVarP(&opts.recipe, "recipe", "r", "", "Path to the YAML recipe (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "./", "Output file or directory URI; a trailing / appends processed_dataset.<ext>")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Export format (csv, json, parquet, avro, xlsx)")
	cmd.Flags().StringVar(&opts.compression, "compression", "none", "Export compression (none, gzip, zstd, snappy, s2, lz4)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Overall timeout")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func runRecipe(ctx context.Context, out io.Writer, cfg *config.Config, opts *runOptions) error {
	if opts.input == "" {
		return errors.New(errors.ErrorTypeValidation, "an input dataset is required: pass --input or set sources.working")
	}
	log, err := setupLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	recipe, err := config.LoadRecipe(opts.recipe)
	if err != nil {
		return err
	}
	registry := transform.NewRegistry(transform.Options{Seed: cfg.Pipeline.Seed})
	steps := make([]transform.Step, 0, len(recipe.Steps))
	for i, rs := range recipe.Steps {
		step, err := registry.Build(rs.Step, transform.Params(rs.Params))
		if err != nil {
			return fmt.Errorf("recipe step %d (%s): %w", i+1, rs.Step, err)
		}
		steps = append(steps, step)
	}
	exportOpts, err := cfg.ExportOptions()
	if err != nil {
		return err
	}

	objects := storage.NewClient(cfg.Sources.Storage, log)
	defer objects.Close()
	ds, err := source.NewLoader(objects, cfg.Sources.MaxRows, log).Load(ctx, opts.input)
	if err != nil {
		return err
	}

	st := store.NewMemoryStore()
	defer st.Close()
	ctrl := pipeline.NewController(st, log)
	sess, err := ctrl.NewSession(ctx, ds, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close(context.Background(), sess) }()

	log.Info("running recipe",
		zap.String("recipe", recipe.Name),
		zap.String("input", opts.input),
		zap.Int("steps", len(steps)))
	for _, o := range ctrl.Run(ctx, sess, steps) {
		fmt.Fprintln(out, o.Message)
		if !o.OK() {
			return fmt.Errorf("step %s failed: %w", o.Step, o.Err)
		}
	}

	result, err := ctrl.Working(ctx, sess)
	if err != nil {
		return err
	}
	path, err := export.Save(ctx, objects, opts.output, result, exportOpts)
	if err != nil {
		return err
	}
	rows, cols := result.Shape()
	fmt.Fprintf(out, "Exported %s | Shape: %d rows, %d columns\n", path, rows, cols)
	return nil
}
