// factctl runs the fact pipeline against local CSV files: structure
// analysis, mapping suggestions and full processing, without the HTTP
// server. It uses the in-memory store unless a database is configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/factflow/internal/app"
	"github.com/JonMunkholm/factflow/internal/config"
	"github.com/JonMunkholm/factflow/internal/core"
	"github.com/JonMunkholm/factflow/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintf(os.Stderr, "%s\n  %v\n", core.FormatUserError(err), err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	storeDriver string
	threshold   float64
	logLevel    string
	jsonOutput  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "factctl",
		Short: "Analyze, map and load statistical CSV files into fact records",
		Long: `factctl drives the CSV-to-fact pipeline from the command line.

Files are registered in place, analyzed for structure, mapped to
dimensions and transformed into fact records. Without DATABASE_URL the
in-memory store is used, so results live only for the command.

Examples:
  # Inspect the detected structure
  factctl analyze indicators.csv

  # Show mapping suggestions and their validation
  factctl suggest indicators.csv

  # Load the file, overriding the mapping of column 0
  factctl process indicators.csv --map 0=INDICATOR_NAME --facts`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env values never override the caller's environment here.
			_ = godotenv.Load()
			logging.Setup(cmd.ErrOrStderr(), opts.logLevel, "text")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.storeDriver, "store", "", "Store driver: memory or postgres (default: postgres when DATABASE_URL is set)")
	root.PersistentFlags().Float64Var(&opts.threshold, "threshold", 0, "Mapping confidence threshold (default: MAPPING_CONFIDENCE_THRESHOLD)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newSuggestCmd(opts),
		newProcessCmd(opts),
	)
	return root
}

// loadConfig reads the environment configuration with the CLI's overrides.
// Without any database settings the in-memory store is used.
func (o *options) loadConfig() (*config.Config, error) {
	driver := o.storeDriver
	if driver == "" && os.Getenv("STORE_DRIVER") == "" &&
		os.Getenv("DATABASE_URL") == "" && os.Getenv("DB_URL") == "" {
		driver = config.DriverMemory
	}

	cfg, err := config.LoadFrom(config.Overlay(os.Getenv, map[string]string{
		"STORE_DRIVER": driver,
	}))
	if err != nil {
		return nil, err
	}
	if o.threshold > 0 {
		cfg.Mapping.ConfidenceThreshold = o.threshold
	}
	return cfg, nil
}

// build wires the pipeline for one command invocation.
func (o *options) build(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}
