package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "prepdash",
		Short: "prepdash - interactive dataset preprocessing",
		Long: `prepdash loads a tabular dataset, lets you inspect it and apply cleaning
steps one at a time (missing values, type conversion, discretization,
normalization, encoding, train/test split), and exports the result.

It runs as an HTTP server for interactive sessions, or replays a recipe of
steps from the command line.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(flags),
		newDescribeCommand(flags),
		newRunCommand(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "prepdash v%s\n", version)
				fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}
