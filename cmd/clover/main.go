// Command clover runs the CRM deduplication pipeline: fuzzy-name merging of
// duplicate organizations and identity linking of orphaned activities.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/database"
	activityrepo "github.com/Ramsey-B/clover/internal/repositories/activity"
	mergerecordrepo "github.com/Ramsey-B/clover/internal/repositories/mergerecord"
	orgrepo "github.com/Ramsey-B/clover/internal/repositories/organization"
	personrepo "github.com/Ramsey-B/clover/internal/repositories/person"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/linker"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/report"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "clover",
		Short:         "CRM deduplication and identity-linking pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func setupTracing(appName string) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(&tracing.ConsoleExporter{}))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(otel.Tracer(appName))
}

func connect(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	return database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
}

func newRunCmd() *cobra.Command {
	var (
		workspaceID string
		reportPath  string
		threshold   float64
		pageSize    int
		workers     int
		maxRetries  int
		dryRun      bool
		skipMerge   bool
		skipOrphans bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a deduplication run for one workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			setupTracing(cfg.AppName)

			db, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			organizations := orgrepo.NewRepository(db, logger)
			people := personrepo.NewRepository(db, logger)
			activities := activityrepo.NewRepository(db, logger)
			records := mergerecordrepo.NewRepository(db, logger)

			executor := merging.NewExecutor(db, organizations, people, activities, records, logger)
			identityLinker := linker.NewLinker(db, people, organizations, activities, logger)

			var emitter *events.Emitter
			if cfg.KafkaEnabled {
				producer := kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				defer producer.Close()
				emitter = events.NewEmitter(producer, logger)
			}

			var locker dedupe.RunLocker
			if cfg.RedisEnabled {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				locker = redis.NewLocker(client, "")
			}

			runner := dedupe.NewRunner(organizations, people, activities, executor, identityLinker, emitter, locker, logger)

			params := models.RunParams{
				WorkspaceID:        workspaceID,
				AutoMergeThreshold: threshold,
				PageSize:           pageSize,
				WorkerCount:        workers,
				MaxRetries:         maxRetries,
				DryRun:             dryRun,
				SkipMergePass:      skipMerge,
				SkipOrphanPass:     skipOrphans,
			}
			if params.AutoMergeThreshold == 0 {
				params.AutoMergeThreshold = cfg.AutoMergeThreshold
			}
			if params.PageSize == 0 {
				params.PageSize = cfg.PageSize
			}
			if params.WorkerCount == 0 {
				params.WorkerCount = cfg.WorkerCount
			}
			if params.MaxRetries == 0 {
				params.MaxRetries = cfg.MaxRetries
			}

			rep, runErr := runner.Run(ctx, params)
			if rep != nil {
				if err := report.NewEmitter(logger).Emit(ctx, rep, reportPath); err != nil {
					logger.WithContext(ctx).WithError(err).Error("Failed to emit run report")
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace to process (required)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the full run report to this JSON file")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "auto-merge similarity threshold (default from env)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "records per page (default from env)")
	cmd.Flags().IntVar(&workers, "workers", 0, "scoring worker count (default from env)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries per conflicting transaction (default from env)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would merge and link without writing")
	cmd.Flags().BoolVar(&skipMerge, "skip-merge", false, "skip the organization merge pass")
	cmd.Flags().BoolVar(&skipOrphans, "skip-orphans", false, "skip the orphaned-activity linking pass")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			db, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			instance, ok := db.(*database.Instance)
			if !ok {
				return fmt.Errorf("unexpected database instance type")
			}
			driver, err := postgres.WithInstance(instance.DB.DB, &postgres.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}

			service := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return service.Migrate(cfg.DatabaseName, driver)
		},
	}
}
