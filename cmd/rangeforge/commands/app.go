package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rangeforge/rangeforge/pkg/config"
	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/policy"
	"github.com/rangeforge/rangeforge/pkg/provider"
	"github.com/rangeforge/rangeforge/pkg/stores"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
	"github.com/rangeforge/rangeforge/pkg/worker"
)

// setup loads the configuration and builds the logger and metrics shared by
// every command. The --verbose flag overrides the configured log level.
func setup() (*config.Config, *telemetry.Logger, *telemetry.Metrics, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := telemetry.NewLogger(cfg.Logging, metrics)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, metrics, nil
}

// openStore opens and migrates the SQLite store.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newPolicyEngine builds the admission engine from the built-in policies
// plus any custom policy directory.
func newPolicyEngine(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*policy.Engine, error) {
	engine, err := policy.NewEngine(cfg.Policy.Limits, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Policy.Dir != "" {
		if err := engine.LoadDir(ctx, cfg.Policy.Dir); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// newWorkerPool wires the full deployment stack: synthesis engine, lifecycle
// engine, provider drivers, and the job pool. The production synthesis
// engine runs out of process; without dev_mode there is nothing to deploy
// against, so deploy and destroy refuse to start.
func newWorkerPool(cfg *config.Config, store *stores.SQLiteStore, admission worker.Admission, logger *telemetry.Logger, metrics *telemetry.Metrics) (*worker.Pool, *telemetry.Tracer, error) {
	if !cfg.DevMode {
		return nil, nil, fmt.Errorf("no synthesis engine is configured; set dev_mode: true to use the embedded simulator")
	}

	tracer, err := telemetry.NewTracer(cfg.Tracing, "rangeforge", buildVersion)
	if err != nil {
		return nil, nil, err
	}

	engine := lifecycle.NewEngine(synth.NewSimulator(), logger,
		lifecycle.WithMetrics(metrics),
		lifecycle.WithTracer(tracer),
	)

	pool := worker.NewPool(cfg.Worker.PoolConfig(), store, engine, provider.DefaultFactory(), logger,
		worker.WithMetrics(metrics),
		worker.WithAdmission(admission),
	)
	return pool, tracer, nil
}

// waitForJob polls a job until it reaches a terminal status or the context
// is cancelled.
func waitForJob(ctx context.Context, store stores.Store, jobID uuid.UUID) (*stores.Job, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == stores.JobStatusSucceeded || job.Status == stores.JobStatusFailed {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
