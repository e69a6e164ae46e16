package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tordrt/schemamap"
	"github.com/tordrt/schemamap/internal/config"
	"github.com/tordrt/schemamap/internal/db"
	"github.com/tordrt/schemamap/internal/formatter"
	"github.com/tordrt/schemamap/internal/telemetry"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

type cliFlags struct {
	configPath string
	format     string
	outputDir  string
	schema     string
	ignore     string
	logLevel   string
	otel       bool
	quiet      bool
}

// entrypoint runs one analysis, writes its artifacts and prints the summary
// to out when out is not nil
type entrypoint func(ctx context.Context, catalog schemamap.Catalog, opts *schemamap.Options, w *formatter.MultiFileWriter, out io.Writer) error

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	rootCmd := &cobra.Command{
		Use:           "schemamap",
		Short:         "Map the structure and relationships of a database schema",
		Long:          `schemamap reads the catalog of a PostgreSQL, MySQL, SQL Server or SQLite database and writes its structure, declared and inferred relationships, and table statistics as JSON, YAML or XML.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", config.DefaultPath, "Configuration file (JSON or YAML)")
	pf.StringVarP(&f.format, "format", "f", "", "Output format: json, yaml or xml (default: json)")
	pf.StringVarP(&f.outputDir, "output-dir", "d", "", "Output directory (default: .)")
	pf.StringVarP(&f.schema, "schema", "s", "", "Only process this schema")
	pf.StringVar(&f.ignore, "ignore", "", "Tables to ignore (comma-separated, added to the configured list)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVar(&f.otel, "otel", false, "Export traces and metrics over OTLP")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the summary")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "structure",
			Short: "Dump columns, constraints, indexes, row counts and sizes of every table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, f, runStructure)
			},
		},
		&cobra.Command{
			Use:   "relationships",
			Short: "Write declared foreign keys, inferred relationships and table statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, f, runRelationships)
			},
		},
	)

	return rootCmd
}

// resolveConfigPath picks the file to load. The default file is optional; a path
// given with --config must exist.
func (f *cliFlags) resolveConfigPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return f.configPath
	}
	if _, err := os.Stat(f.configPath); err != nil {
		return ""
	}
	return f.configPath
}

func (f *cliFlags) overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		Ignore:      parseTableList(f.ignore),
		OTelEnabled: f.otel,
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		o.Format = &f.format
	}
	if flags.Changed("output-dir") {
		o.OutputDir = &f.outputDir
	}
	if flags.Changed("schema") {
		o.Schema = &f.schema
	}
	if flags.Changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	return o
}

func run(cmd *cobra.Command, f *cliFlags, entry entrypoint) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(f.resolveConfigPath(cmd), f.overrides(cmd))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout carries the summary.
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if !formatter.Known(cfg.Output.Format) {
		logger.Warn("unknown output format, writing JSON", slog.String("format", cfg.Output.Format))
	}

	ctx := cmd.Context()
	opts := &schemamap.Options{
		IgnoredTables: cfg.Options.IgnoredTables,
		Logger:        logger,
	}

	if cfg.OTelEnabled {
		dialect, err := db.ParseDialect(cfg.Database.Type)
		if err != nil {
			return err
		}
		otelProvider, err := telemetry.Init(ctx, telemetry.RunInfo{
			ServiceName: "schemamap",
			Version:     version,
			Dialect:     dialect,
			Database:    cfg.Database.Database,
		})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := otelProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		opts.Tracer = otelProvider.Tracer()
		opts.Inst = telemetry.NewInstruments()
		logger.Debug("telemetry enabled")
	}

	provider, err := db.Open(ctx, cfg.Database.ConnConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(context.Background()); err != nil {
			logger.Warn("failed to close database connection", slog.String("error", err.Error()))
		}
	}()

	logger.Info("database connected",
		slog.String("db.system", provider.Dialect()),
		slog.String("version", version),
	)

	w := formatter.NewMultiFileWriter(cfg.Output.Directory, formatter.ParseFormat(cfg.Output.Format), formatter.Bundle{
		StructureFile:     cfg.Output.StructureFile,
		RelationshipsFile: cfg.Output.RelationshipsFile,
		StatsFile:         cfg.Output.StatsFile,
	})

	var out io.Writer
	if !f.quiet {
		out = cmd.OutOrStdout()
	}
	return entry(ctx, provider, opts, w, out)
}

func runStructure(ctx context.Context, catalog schemamap.Catalog, opts *schemamap.Options, w *formatter.MultiFileWriter, out io.Writer) error {
	dump, err := schemamap.DumpStructure(ctx, catalog, opts)
	if err != nil {
		return err
	}

	path, err := w.WriteStructure(dump)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if out != nil {
		formatter.NewTextFormatter(out).FormatStructure(dump, path)
	}
	return nil
}

func runRelationships(ctx context.Context, catalog schemamap.Catalog, opts *schemamap.Options, w *formatter.MultiFileWriter, out io.Writer) error {
	report, err := schemamap.AnalyzeRelationships(ctx, catalog, opts)
	if err != nil {
		return err
	}

	paths, err := w.WriteRelationships(report)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if out != nil {
		formatter.NewTextFormatter(out).FormatRelationships(report, paths...)
	}
	return nil
}

// parseTableList splits a comma-separated table list
func parseTableList(tables string) []string {
	return config.SplitList(tables)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
