package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/api"
	"github.com/atriumhq/atrium/pkg/bus"
	"github.com/atriumhq/atrium/pkg/config"
	"github.com/atriumhq/atrium/pkg/engine"
	"github.com/atriumhq/atrium/pkg/policy"
	"github.com/atriumhq/atrium/pkg/stores"
	"github.com/atriumhq/atrium/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane server",
		Long: `Start the Atrium control plane: the HTTP API, the operation engine,
the airlock state machine and the metrics endpoint.`,
		Example: `  # Run with the default configuration
  atrium serve

  # Run with a config file
  atrium serve --config /etc/atrium/atrium.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version, environment)
		},
	}

	cmd.Flags().StringVar(&environment, "environment", "development", "deployment environment")

	return cmd
}

func runServe(ctx context.Context, version, environment string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(ctx, cfg.Telemetry(version, environment))
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.Zerolog()
	logger.Info().Str("version", version).Str("environment", environment).Msg("starting atrium")

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.MigrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	messageBus := bus.NewBus(logger)
	queue := bus.NewDeploymentQueue(messageBus)
	publisher := bus.NewAirlockPublisher(messageBus)

	resolver := engine.NewTemplateResolver(store)
	builder := engine.NewBuilder(store, store, nil)
	dispatcher := engine.NewDispatcher(builder, store, resolver, queue, tel.Metrics, cfg.Engine.PatchRetries, logger)

	machine := airlock.NewStateMachine(store, publisher, nil, nil, logger)
	scans := airlock.NewScanProcessor(machine, cfg.Airlock.ScanningEnabled, logger)

	policyEngine, err := policy.NewEngine(logger, cfg.Policy.MaxExportFiles)
	if err != nil {
		return err
	}
	if cfg.Policy.Dir != "" {
		if err := policyEngine.LoadPolicies(ctx, cfg.Policy.Dir); err != nil {
			return err
		}
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Store:           store,
		Dispatcher:      dispatcher,
		Resolver:        resolver,
		Machine:         machine,
		Scans:           scans,
		Policy:          policyEngine,
		Results:         publisher,
		Metrics:         tel.Metrics,
		ScanningEnabled: cfg.Airlock.ScanningEnabled,
		Logger:          logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 3)

	go func() {
		errCh <- server.Run(runCtx)
	}()
	go func() {
		errCh <- tel.StartMetricsServer(runCtx)
	}()
	if configPath != "" {
		watcher := config.NewWatcher(configPath, logger, func(updated *config.Config) {
			level, parseErr := zerolog.ParseLevel(updated.Logging.Level)
			if parseErr != nil {
				return
			}
			zerolog.SetGlobalLevel(level)
		})
		go func() {
			errCh <- watcher.Run(runCtx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		cancel()
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}
