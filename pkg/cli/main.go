// Package cli builds the bookstore command tree: run, healthcheck, config and version.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nimburion/bookstore/pkg/catalog"
	"github.com/nimburion/bookstore/pkg/catalog/script"
	"github.com/nimburion/bookstore/pkg/config"
	"github.com/nimburion/bookstore/pkg/configschema"
	"github.com/nimburion/bookstore/pkg/health"
	"github.com/nimburion/bookstore/pkg/observability/logger"
	"github.com/nimburion/bookstore/pkg/observability/metrics"
	"github.com/nimburion/bookstore/pkg/observability/tracing"
	"github.com/nimburion/bookstore/pkg/repository/document"
	"github.com/nimburion/bookstore/pkg/store"
	"github.com/nimburion/bookstore/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommandOptions configures the root command.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewRootCommand creates the CLI with run, healthcheck, config, version and completion subcommands.
// Running the root command without a subcommand is the same as "run".
func NewRootCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "bookstore"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "BOOKSTORE"
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return version.Current(opts.Name).Write(cmd.OutOrStdout())
		},
	})

	// run command
	var output string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Seed the catalog and print every query section",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := script.ParseFormat(output)
			if err != nil {
				return err
			}
			cfg, log, err := LoadConfigAndLogger(cfgPath, opts.EnvPrefix, runFlagBindings(cmd.Flags()), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunCatalog(ctx, cfg, log, format, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	runCmd.Flags().String("backend", "", "store backend (memory|mongodb)")
	runCmd.Flags().String("mongodb-url", "", "MongoDB connection string")
	runCmd.Flags().String("collection", "", "collection name")
	runCmd.Flags().String("log-level", "", "log level (debug|info|warn|error)")
	runCmd.Flags().Bool("metrics", false, "print a collection operation summary to stderr")
	runCmd.Flags().StringVarP(&output, "output", "o", string(script.FormatText), "report format (text|json)")
	rootCmd.AddCommand(runCmd)
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())

	// config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).Load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).Load()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := configschema.BuildSchema()
			if err != nil {
				return err
			}
			out, err := configschema.Marshal(schema)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	rootCmd.AddCommand(configCmd)

	// healthcheck command
	healthCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check that the configured store is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := LoadConfigAndLogger(cfgPath, opts.EnvPrefix, runFlagBindings(cmd.Flags()), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return CheckHealth(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}
	healthCmd.Flags().String("backend", "", "store backend (memory|mongodb)")
	healthCmd.Flags().String("mongodb-url", "", "MongoDB connection string")
	rootCmd.AddCommand(healthCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// runFlagBindings maps run flags to configuration keys.
func runFlagBindings(flags *pflag.FlagSet) map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"store.backend":    flags.Lookup("backend"),
		"store.url":        flags.Lookup("mongodb-url"),
		"store.collection": flags.Lookup("collection"),
		"log.level":        flags.Lookup("log-level"),
		"metrics.enabled":  flags.Lookup("metrics"),
	}
}

// LoadConfigAndLogger loads configuration (flags > env > file > defaults) and builds
// the zap logger writing to logOut.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags map[string]*pflag.Flag, logOut io.Writer) (*config.Config, *logger.ZapLogger, error) {
	loader := config.NewViperLoader(cfgPath, envPrefix)
	for key, flag := range flags {
		loader.BindFlag(key, flag)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format, Output: logOut})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	if level == logger.DebugLevel {
		log.Debug("effective configuration", "config", fmt.Sprintf("%+v", *cfg))
	}
	return cfg, log, nil
}

// RunCatalog opens the configured collection, runs the catalog script and writes the
// report to out. The metrics summary, when enabled, goes to errOut.
func RunCatalog(ctx context.Context, cfg *config.Config, log logger.Logger, format script.Format, out, errOut io.Writer) error {
	ctx = logger.ContextWithRunID(ctx, uuid.NewString())
	runLog := log.WithContext(ctx)

	info := version.Current(cfg.Service.Name)
	tp, err := tracing.NewTracerProvider(ctx, tracing.FromConfig(cfg, info.Version))
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			runLog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	h, err := OpenCollection(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			runLog.Warn("store close failed", "error", err)
		}
	}()

	var (
		observer document.OperationObserver
		registry *metrics.Registry
	)
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
		collMetrics, err := metrics.NewCollectionMetrics(registry)
		if err != nil {
			return err
		}
		observer = collMetrics
	}
	instrumented := document.NewInstrumentedCollection(h.Collection, observer, log,
		document.WithTracer(tp.Tracer(tracing.InstrumentationName)),
		document.WithSystem(h.Backend),
	)

	runLog.Info("catalog run started", "backend", cfg.Store.Backend, "collection", cfg.Store.Collection, "version", info.Version)
	rep, err := script.NewRunner(instrumented, log).Run(ctx)
	if err != nil {
		return fmt.Errorf("catalog run failed: %w", err)
	}
	if err := script.Write(out, rep, format); err != nil {
		return err
	}
	runLog.Info("catalog run completed", "sections", len(rep.Sections))

	if registry != nil {
		rows, err := metrics.Summary(registry.Gatherer())
		if err != nil {
			return err
		}
		return metrics.WriteSummary(errOut, rows)
	}
	return nil
}

// CheckHealth pings the configured store and prints the result. It fails when the
// store is unhealthy.
func CheckHealth(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) error {
	registry := health.NewRegistry()
	h, err := OpenCollection(cfg, log)
	if err != nil {
		registry.Register(health.NewPingChecker("store", failedStore{err}, cfg.Store.ConnectTimeout))
	} else {
		defer func() { _ = h.Close() }()
		registry.Register(health.NewPingChecker("store", h, cfg.Store.OperationTimeout))
	}

	result := registry.Check(ctx)
	if err := result.Write(out); err != nil {
		return err
	}
	if !result.IsHealthy() {
		return fmt.Errorf("health check failed: %s", result.Status)
	}
	return nil
}

type failedStore struct{ err error }

func (f failedStore) Ping(context.Context) error { return f.err }

// OpenCollection opens the configured book collection with the book validator installed.
func OpenCollection(cfg *config.Config, log logger.Logger) (*store.Handle, error) {
	return store.Open(cfg.Store, log, document.WithValidator(catalog.ValidateDocument))
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
