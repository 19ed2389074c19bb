package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/svvoii/evs-charging-france-dashboard/internal/audit"
	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
	"github.com/svvoii/evs-charging-france-dashboard/internal/db"
	"github.com/svvoii/evs-charging-france-dashboard/internal/debug"
	"github.com/svvoii/evs-charging-france-dashboard/internal/etl"
	"github.com/svvoii/evs-charging-france-dashboard/internal/geocode"
	"github.com/svvoii/evs-charging-france-dashboard/internal/logging"
	"github.com/svvoii/evs-charging-france-dashboard/internal/pivot"
	"github.com/svvoii/evs-charging-france-dashboard/internal/web"
)

var (
	configPath string
	logLevel   string
	localDebug bool

	cfg    *config.Pipeline
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create root command
	rootCmd := &cobra.Command{
		Use:   "epoints",
		Short: "EV charging point and registration preprocessing",
		Long: `Resolves postal codes and departments of the French IRVE charging points,
aggregates charging points and EV registrations per department and year, and
serves the resulting tables to the dashboard.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "pipeline YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&localDebug, "debug", false, "enable debug output")

	// Add subcommands
	rootCmd.AddCommand(createGeocodeCmd())
	rootCmd.AddCommand(createPreprocessCmd())
	rootCmd.AddCommand(createPublishCmd())
	rootCmd.AddCommand(createServeCmd())

	// Execute root command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	level := logLevel
	if localDebug && level == "" {
		level = "debug"
	}
	var err error
	logger, err = logging.NewLogger(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	debug.SetLogger(logger)

	cfg, err = config.LoadPipeline(configPath)
	if err != nil {
		return err
	}
	return nil
}

// extraCache returns the redis tier when one is configured.
func extraCache(ctx context.Context) (*geocode.RedisCache, error) {
	if cfg.Geocode.Redis == "" {
		return nil, nil
	}
	cache, err := geocode.NewRedisCache(ctx, cfg.Geocode.Redis, config.GetEnv("REDIS_PASSWORD", ""))
	if err != nil {
		return nil, err
	}
	logger.Info("using redis geocode cache", zap.String("addr", cfg.Geocode.Redis))
	return cache, nil
}

func newPipeline(ctx context.Context) (*etl.Pipeline, func(), error) {
	p := etl.NewPipeline(cfg, logger)
	redisCache, err := extraCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	if redisCache == nil {
		return p, func() {}, nil
	}
	return p.WithCache(redisCache), func() { redisCache.Close() }, nil
}

func createGeocodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geocode",
		Short: "Fill the geocode cache for uncached charging-point coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := config.GetEnv("GOOGLE_MAPS_API_KEY", "")
			if apiKey == "" {
				return errors.New("GOOGLE_MAPS_API_KEY is not set")
			}

			p, done, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			client := geocode.NewClient(geocode.ClientConfig{
				APIKey:   apiKey,
				Endpoint: cfg.Geocode.Endpoint,
				Interval: cfg.Geocode.Interval,
				Timeout:  cfg.Geocode.Timeout,
				Attempts: cfg.Geocode.Attempts,
				Backoff:  cfg.Geocode.Backoff,
			})

			stats, err := p.Geocode(cmd.Context(), localDebug, client)
			if errors.Is(err, context.Canceled) {
				logger.Warn("geocoding interrupted, partial cache saved", zap.Int("fetched", stats.Fetched))
				return nil
			}
			return err
		},
	}
}

func createPreprocessCmd() *cobra.Command {
	preprocessCmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Build the department-by-year tables",
	}

	preprocessCmd.AddCommand(&cobra.Command{
		Use:   "charging-points",
		Short: "Resolve charging-point departments and write the epoints tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			out, err := p.RunChargingPoints(cmd.Context(), localDebug)
			if err != nil {
				return err
			}
			printFiles(out)
			return nil
		},
	})

	preprocessCmd.AddCommand(&cobra.Command{
		Use:   "vehicles",
		Short: "Aggregate EV registrations and write the evs tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := etl.NewPipeline(cfg, logger).RunVehicles(cmd.Context(), localDebug)
			if err != nil {
				return err
			}
			printFiles(out)
			return nil
		},
	})

	return preprocessCmd
}

func printFiles(out *etl.Output) {
	for _, f := range out.Files {
		fmt.Printf("Wrote %s\n", f)
	}
}

func createPublishCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "publish [family...]",
		Short: "Copy written tables and quality reports into postgres",
		Long:  `Publishes the epoints and evs tables (or the named families) from the output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			families := args
			if len(families) == 0 {
				families = []string{etl.ChargingPoints, etl.Vehicles}
			}

			conn, err := db.NewConnection(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			for _, family := range families {
				if err := publishFamily(cmd.Context(), conn, family); err != nil {
					return fmt.Errorf("publish %s: %w", family, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string (defaults to DATABASE_URL or PG* variables)")
	return cmd
}

func publishFamily(ctx context.Context, conn *db.Connection, family string) error {
	pivotPath, cumulativePath, _, qualityPath := etl.Paths(cfg.Output.Dir, family)

	table, err := pivot.ReadCSVFile(pivotPath)
	if err != nil {
		return err
	}
	cumulative, err := pivot.ReadCSVFile(cumulativePath)
	if err != nil {
		return err
	}

	runID := ""
	report, err := audit.ReadFile(qualityPath)
	switch {
	case err == nil:
		runID = report.RunID
		if err := conn.SaveReport(ctx, report); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("no quality report to publish", zap.String("family", family))
	default:
		return err
	}

	n, err := conn.PublishPivot(ctx, localDebug, family, runID, table, cumulative)
	if err != nil {
		return err
	}
	fmt.Printf("Published %d %s rows\n", n, family)
	return nil
}

func createServeCmd() *cobra.Command {
	var webConfig string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the written tables over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			webCfg, err := web.LoadConfig(webConfig)
			if err != nil {
				return err
			}
			if webConfig == "" {
				webCfg.Data.Dir = cfg.Output.Dir
			}

			var server *web.Server
			if webCfg.Database.Enabled {
				conn, err := db.NewConnection(cmd.Context(), webCfg.Database.URL)
				if err != nil {
					return err
				}
				defer conn.Close()
				server = web.NewServer(webCfg, logger, conn)
			} else {
				server = web.NewServer(webCfg, logger, nil)
			}

			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&webConfig, "web-config", "", "web server JSON config")
	return cmd
}
