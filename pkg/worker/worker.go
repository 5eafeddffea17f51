// Package worker runs deployment and destruction jobs asynchronously: a
// fixed pool of goroutines drains a buffered queue, with per-target mutual
// exclusion so two jobs for the same blueprint or range never overlap. All
// credential handling happens inside the job: the caller hands over a master
// key copy, the worker decrypts the user's private key and secrets, and both
// are discarded when the job finishes. Database rows change strictly after
// the engine confirms an infrastructure change.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/stores"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// Store is the persistence surface the worker needs.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*stores.User, error)
	GetUserSecrets(ctx context.Context, userID uuid.UUID, provider string) (vault.Fields, error)
	GetBlueprint(ctx context.Context, id uuid.UUID) (*stores.Blueprint, error)
	CreateRange(ctx context.Context, rng *lifecycle.DeployedRange) error
	GetRange(ctx context.Context, id uuid.UUID) (*lifecycle.DeployedRange, error)
	UpdateRangeState(ctx context.Context, id uuid.UUID, state lifecycle.State) error
	DeleteRange(ctx context.Context, id uuid.UUID) error
	CreateJob(ctx context.Context, job *stores.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*stores.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status stores.JobStatus, errMsg *string) error
}

// Admission gates blueprints at submission time. A non-nil error rejects
// the submission before a job is created.
type Admission interface {
	Admit(ctx context.Context, bp *blueprint.Range, region string) error
}

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of concurrent job executors.
	Workers int `json:"workers"`

	// QueueSize is the job queue capacity. Submissions fail when full.
	QueueSize int `json:"queue_size"`

	// JobTimeout bounds one job's execution. The engine is never cancelled
	// mid-apply; on expiry the worker reconciles against what actually
	// exists before finalizing the job.
	JobTimeout time.Duration `json:"job_timeout"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  32,
		JobTimeout: 30 * time.Minute,
	}
}

// task is one queued unit of work. masterKey is the worker's own copy and
// is zeroed when the job finishes.
type task struct {
	job       *stores.Job
	masterKey []byte
	region    string
	blueprint *blueprint.Range
	targetKey string
}

// Pool executes deployment jobs from a buffered queue.
type Pool struct {
	cfg       Config
	store     Store
	engine    *lifecycle.Engine
	factory   lifecycle.DriverFactory
	admission Admission
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics

	queue chan *task
	locks *keyedMutex
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithAdmission attaches a blueprint admission policy.
func WithAdmission(a Admission) PoolOption {
	return func(p *Pool) { p.admission = a }
}

// NewPool creates a worker pool. Start must be called before submitted jobs
// execute.
func NewPool(cfg Config, store Store, engine *lifecycle.Engine, factory lifecycle.DriverFactory, logger *telemetry.Logger, opts ...PoolOption) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}

	p := &Pool{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		factory: factory,
		logger:  logger.NewComponentLogger("worker"),
		queue:   make(chan *task, cfg.QueueSize),
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	p.logger.Infof("worker pool started with %d workers", p.cfg.Workers)
}

// Stop closes the queue and waits for in-flight jobs to finish. Jobs already
// queued still execute; new submissions fail.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// SubmitDeploy validates and enqueues a deployment job for a stored
// blueprint. The returned job ID tracks progress via GetJobStatus. The
// master key is copied; the caller may zero its own copy immediately.
func (p *Pool) SubmitDeploy(ctx context.Context, userID, blueprintID uuid.UUID, region string, masterKey []byte) (uuid.UUID, error) {
	record, err := p.store.GetBlueprint(ctx, blueprintID)
	if err != nil {
		return uuid.Nil, err
	}

	bp, err := blueprint.Parse(record.Document)
	if err != nil {
		return uuid.Nil, err
	}
	bp.ID = record.ID

	if p.admission != nil {
		if err := p.admission.Admit(ctx, bp, region); err != nil {
			return uuid.Nil, err
		}
	}

	job := &stores.Job{
		ID:      uuid.New(),
		Kind:    stores.JobKindDeploy,
		Status:  stores.JobStatusQueued,
		UserID:  userID,
		RangeID: uuid.New(),
		Region:  region,
	}

	return p.submit(ctx, job, &task{
		job:       job,
		masterKey: copyKey(masterKey),
		region:    region,
		blueprint: bp,
		targetKey: "blueprint-" + blueprintID.String(),
	})
}

// SubmitDestroy enqueues a destruction job for a deployed range.
func (p *Pool) SubmitDestroy(ctx context.Context, userID, rangeID uuid.UUID, masterKey []byte) (uuid.UUID, error) {
	rng, err := p.store.GetRange(ctx, rangeID)
	if err != nil {
		return uuid.Nil, err
	}
	if rng.UserID != userID {
		return uuid.Nil, fmt.Errorf("range %s does not belong to user %s", rangeID, userID)
	}

	job := &stores.Job{
		ID:      uuid.New(),
		Kind:    stores.JobKindDestroy,
		Status:  stores.JobStatusQueued,
		UserID:  userID,
		RangeID: rangeID,
	}

	return p.submit(ctx, job, &task{
		job:       job,
		masterKey: copyKey(masterKey),
		targetKey: "range-" + rangeID.String(),
	})
}

// GetJobStatus returns the current job record.
func (p *Pool) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*stores.Job, error) {
	return p.store.GetJob(ctx, jobID)
}

// submit persists the job record and enqueues the task. A full queue fails
// the job immediately rather than blocking the caller.
func (p *Pool) submit(ctx context.Context, job *stores.Job, t *task) (uuid.UUID, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		vault.Zero(t.masterKey)
		return uuid.Nil, fmt.Errorf("worker pool is stopped")
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := p.store.CreateJob(ctx, job); err != nil {
		vault.Zero(t.masterKey)
		return uuid.Nil, err
	}

	select {
	case p.queue <- t:
		if p.metrics != nil {
			p.metrics.JobQueued(1)
		}
		return job.ID, nil
	default:
		vault.Zero(t.masterKey)
		msg := "job queue is full"
		_ = p.store.UpdateJobStatus(ctx, job.ID, stores.JobStatusFailed, &msg)
		return uuid.Nil, fmt.Errorf("job queue is full")
	}
}

// run is one worker goroutine's loop.
func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.queue {
		p.execute(t)
	}
}

// execute runs one job end to end: per-target lock, timeout context, the
// kind-specific pipeline, and finalization. The master key is zeroed on
// every path out.
func (p *Pool) execute(t *task) {
	defer vault.Zero(t.masterKey)

	if p.metrics != nil {
		p.metrics.JobQueued(-1)
		p.metrics.JobRunning(1)
		defer p.metrics.JobRunning(-1)
	}

	unlock := p.locks.Lock(t.targetKey)
	defer unlock()

	log := p.logger.WithJobID(t.job.ID.String()).WithRangeID(t.job.RangeID.String())

	// Finalization must not depend on the job's own deadline.
	bg := context.Background()
	if err := p.store.UpdateJobStatus(bg, t.job.ID, stores.JobStatusRunning, nil); err != nil {
		log.WithError(err).Error("failed to mark job running")
	}

	ctx, cancel := context.WithTimeout(bg, p.cfg.JobTimeout)
	defer cancel()

	var err error
	switch t.job.Kind {
	case stores.JobKindDeploy:
		err = p.runDeploy(ctx, t, log)
	case stores.JobKindDestroy:
		err = p.runDestroy(ctx, t, log)
	default:
		err = fmt.Errorf("unknown job kind %q", t.job.Kind)
	}

	if err != nil {
		msg := err.Error()
		if uerr := p.store.UpdateJobStatus(bg, t.job.ID, stores.JobStatusFailed, &msg); uerr != nil {
			log.WithError(uerr).Error("failed to record job failure")
		}
		log.WithError(err).Error("job failed")
		return
	}

	if uerr := p.store.UpdateJobStatus(bg, t.job.ID, stores.JobStatusSucceeded, nil); uerr != nil {
		log.WithError(uerr).Error("failed to record job success")
	}
	log.Info("job succeeded")
}

// unlockCredentials resolves the user and decrypts the credential fields for
// one provider. Every failure is typed and happens before any cloud call.
func (p *Pool) unlockCredentials(ctx context.Context, userID uuid.UUID, provider string, masterKey []byte) (vault.Fields, error) {
	user, err := p.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, lifecycle.NewError(lifecycle.KindUserNotFound,
				fmt.Sprintf("user %s does not exist", userID), err)
		}
		return nil, err
	}

	privateKey, err := vault.DecryptPrivateKey(user.EncryptedPrivateKey, masterKey)
	if err != nil {
		return nil, lifecycle.NewError(lifecycle.KindDecryptionFailed,
			"master key does not unlock the user's private key", err)
	}

	sealed, err := p.store.GetUserSecrets(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, lifecycle.NewError(lifecycle.KindInsufficientCredentials,
				fmt.Sprintf("no credentials stored for provider %s", provider), err).
				WithProvider(provider)
		}
		return nil, err
	}

	fields, err := vault.DecryptFields(sealed, privateKey)
	if err != nil {
		return nil, lifecycle.NewError(lifecycle.KindDecryptionFailed,
			"stored credentials could not be decrypted", err).
			WithProvider(provider)
	}

	return fields, nil
}

// runDeploy executes a deployment job.
func (p *Pool) runDeploy(ctx context.Context, t *task, log *telemetry.Logger) error {
	provider := t.blueprint.Provider

	secrets, err := p.unlockCredentials(ctx, t.job.UserID, provider, t.masterKey)
	if err != nil {
		return err
	}

	driver, err := p.factory.Get(provider)
	if err != nil {
		return err
	}

	rng, err := p.engine.Deploy(ctx, lifecycle.DeployRequest{
		RangeID:   t.job.RangeID,
		UserID:    t.job.UserID,
		Blueprint: t.blueprint,
		Region:    t.region,
		Driver:    driver,
		Secrets:   secrets,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return p.reconcileExpiredDeploy(t, driver, secrets, log)
		}
		return err
	}

	// Persist only after the engine confirmed the apply. A write failure
	// here means live infrastructure the database does not know about, so
	// tear it back down rather than strand it.
	if err := p.store.CreateRange(context.Background(), rng); err != nil {
		perr := lifecycle.NewError(lifecycle.KindPersistence,
			"deployed range could not be recorded", err).
			WithRange(rng.ID.String()).
			WithProvider(provider)

		if derr := p.engine.Destroy(context.Background(), lifecycle.DestroyRequest{
			Range:   rng,
			Driver:  driver,
			Secrets: secrets,
		}); derr != nil {
			if p.metrics != nil {
				p.metrics.IncDanglingResources()
			}
			log.WithError(derr).Criticalf(
				"range %s is deployed but unrecorded and teardown failed; cloud resources need manual cleanup", rng.ID)
		} else {
			log.Warn("unrecorded range torn down after persistence failure")
		}
		return perr
	}

	return nil
}

// reconcileExpiredDeploy handles a deploy whose deadline expired. The engine
// cannot be interrupted mid-apply, so the job's outcome comes from what
// actually exists: anything found live is torn down, because the job can no
// longer record it.
func (p *Pool) reconcileExpiredDeploy(t *task, driver lifecycle.Driver, secrets vault.Fields, log *telemetry.Logger) error {
	bg := context.Background()

	result, exists, err := p.engine.Reconcile(bg, t.job.RangeID)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncDanglingResources()
		}
		log.WithError(err).Criticalf(
			"deploy timed out and reconciliation failed; workspace %s may hold dangling cloud resources",
			lifecycle.Workspace(t.job.RangeID))
		return fmt.Errorf("deploy timed out after %s and reconciliation failed: %w", p.cfg.JobTimeout, err)
	}

	if !exists {
		return fmt.Errorf("deploy timed out after %s; no infrastructure was created", p.cfg.JobTimeout)
	}

	derr := p.engine.Destroy(bg, lifecycle.DestroyRequest{
		Range: &lifecycle.DeployedRange{
			ID:          t.job.RangeID,
			Provider:    driver.Name(),
			Region:      t.region,
			State:       lifecycle.StateDeployed,
			EngineState: result.State,
		},
		Driver:  driver,
		Secrets: secrets,
	})
	if derr != nil {
		if p.metrics != nil {
			p.metrics.IncDanglingResources()
		}
		log.WithError(derr).Criticalf(
			"deploy timed out, live infrastructure found, and teardown failed; workspace %s needs manual cleanup",
			lifecycle.Workspace(t.job.RangeID))
		return fmt.Errorf("deploy timed out after %s; teardown of live infrastructure failed: %w", p.cfg.JobTimeout, derr)
	}

	log.Warn("deploy timed out; live infrastructure was torn down")
	return fmt.Errorf("deploy timed out after %s; infrastructure was torn down", p.cfg.JobTimeout)
}

// runDestroy executes a destruction job.
func (p *Pool) runDestroy(ctx context.Context, t *task, log *telemetry.Logger) error {
	rng, err := p.store.GetRange(ctx, t.job.RangeID)
	if err != nil {
		return err
	}

	secrets, err := p.unlockCredentials(ctx, t.job.UserID, rng.Provider, t.masterKey)
	if err != nil {
		return err
	}

	driver, err := p.factory.Get(rng.Provider)
	if err != nil {
		return err
	}

	if err := p.store.UpdateRangeState(ctx, rng.ID, lifecycle.StateDestroying); err != nil {
		return err
	}

	err = p.engine.Destroy(ctx, lifecycle.DestroyRequest{
		Range:   rng,
		Driver:  driver,
		Secrets: secrets,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// The engine may have finished after the deadline. Only what
			// actually exists decides the outcome.
			if _, exists, rerr := p.engine.Reconcile(context.Background(), rng.ID); rerr == nil && !exists {
				return p.deleteDestroyedRange(rng.ID)
			}
		}
		if serr := p.store.UpdateRangeState(context.Background(), rng.ID, lifecycle.StateFailed); serr != nil {
			log.WithError(serr).Error("failed to record range failure state")
		}
		return err
	}

	return p.deleteDestroyedRange(rng.ID)
}

// deleteDestroyedRange removes the range row after confirmed teardown. A
// deletion failure is a persistence error: the database claims a range whose
// infrastructure is gone, which is recoverable, unlike the dangling case.
func (p *Pool) deleteDestroyedRange(rangeID uuid.UUID) error {
	if err := p.store.DeleteRange(context.Background(), rangeID); err != nil {
		return lifecycle.NewError(lifecycle.KindPersistence,
			"destroyed range could not be deleted from the database", err).
			WithRange(rangeID.String())
	}
	return nil
}

// copyKey returns the worker's own copy of key material.
func copyKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}
