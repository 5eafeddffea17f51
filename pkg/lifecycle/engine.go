package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// Engine drives the range deployment state machine. It never talks to a
// cloud API itself: drivers produce the program and configuration, the
// synthesis engine executes it, and this engine owns the ordering, the
// teardown-on-failure policy, and output validation.
type Engine struct {
	synth   synth.Engine
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer attaches a tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates a lifecycle engine on top of a synthesis engine.
func NewEngine(synthEngine synth.Engine, logger *telemetry.Logger, opts ...Option) *Engine {
	e := &Engine{
		synth:  synthEngine,
		logger: logger.NewComponentLogger("lifecycle"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeployRequest carries everything needed to materialize one blueprint.
// Secrets are the caller's already-decrypted credential fields; the engine
// never sees encrypted material or key derivation.
type DeployRequest struct {
	// RangeID is the identifier of the range being created.
	RangeID uuid.UUID

	// UserID is the owning tenant.
	UserID uuid.UUID

	// Blueprint is the validated topology template.
	Blueprint *blueprint.Range

	// Region is the target cloud region.
	Region string

	// Driver is the provider backend.
	Driver Driver

	// Secrets are the decrypted credential fields.
	Secrets vault.Fields
}

// DestroyRequest identifies a deployed range to tear down.
type DestroyRequest struct {
	// Range is the deployed range, including its engine state blob.
	Range *DeployedRange

	// Driver is the provider backend the range was deployed with.
	Driver Driver

	// Secrets are the decrypted credential fields.
	Secrets vault.Fields
}

// Deploy materializes a blueprint: credential gate, program synthesis,
// engine apply, output parsing. Any failure after resources may exist
// triggers exactly one automatic teardown attempt; a teardown failure is
// escalated on the critical channel but never masks the original error.
// The synthesis engine is never invoked when credentials are insufficient.
func (e *Engine) Deploy(ctx context.Context, req DeployRequest) (*DeployedRange, error) {
	log := e.logger.WithRangeID(req.RangeID.String()).WithProvider(req.Driver.Name())
	started := time.Now()

	if !req.Driver.HasSufficientCredentials(req.Secrets) {
		return nil, NewError(KindInsufficientCredentials,
			"credentials are missing required fields for provider "+req.Driver.Name(), nil).
			WithRange(req.RangeID.String()).
			WithProvider(req.Driver.Name())
	}

	config, err := req.Driver.ConfigurationValues(req.Region, req.Secrets)
	if err != nil {
		return nil, err
	}
	env, err := req.Driver.EnvironmentCredentials(req.Secrets)
	if err != nil {
		return nil, err
	}
	program := req.Driver.InfrastructureProgram(req.Blueprint, req.Region)

	stackReq := synth.StackRequest{
		Workspace: Workspace(req.RangeID),
		Config:    config,
		Env:       env,
		Program:   program,
	}

	if e.tracer != nil {
		spanCtx, s := e.tracer.StartSpan(ctx, "range.deploy",
			attribute.String("range.id", req.RangeID.String()),
			attribute.String("range.provider", req.Driver.Name()),
			attribute.String("range.region", req.Region),
		)
		defer s.End()
		ctx = spanCtx
	}

	log.Infof("synthesizing range in %s (%d hosts)", req.Region, req.Blueprint.HostCount())

	result, err := e.synth.Up(ctx, stackReq)
	if err != nil {
		e.observeDeploy(req.Driver.Name(), "failure", started)
		e.teardownPartial(ctx, stackReq, log)
		return nil, NewError(KindApply, "engine apply failed", err).
			WithRange(req.RangeID.String()).
			WithProvider(req.Driver.Name()).
			WithDiagnostic(err.Error())
	}

	vpcs, jumpIP, rangeKey, err := parseOutputs(result.Outputs, req.Blueprint)
	if err != nil {
		// The apply succeeded, so resources exist even though the output
		// set is unusable. Tear them down rather than strand them.
		e.observeDeploy(req.Driver.Name(), "failure", started)
		stackReq.State = result.State
		e.teardownPartial(ctx, stackReq, log)
		var rerr *RangeError
		if errors.As(err, &rerr) {
			return nil, rerr.WithRange(req.RangeID.String()).WithProvider(req.Driver.Name())
		}
		return nil, err
	}

	e.observeDeploy(req.Driver.Name(), "success", started)
	log.Infof("range deployed, jump host %s", jumpIP)

	return &DeployedRange{
		ID:            req.RangeID,
		BlueprintID:   req.Blueprint.ID,
		UserID:        req.UserID,
		Provider:      req.Driver.Name(),
		Region:        req.Region,
		State:         StateDeployed,
		EngineState:   result.State,
		VPCs:          vpcs,
		JumpHostIP:    jumpIP,
		SSHPrivateKey: rangeKey,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Destroy tears a deployed range down. The range is only considered gone
// when the engine confirms teardown; an engine failure surfaces as a
// destroy error with the raw diagnostic attached.
func (e *Engine) Destroy(ctx context.Context, req DestroyRequest) error {
	rng := req.Range
	log := e.logger.WithRangeID(rng.ID.String()).WithProvider(rng.Provider)

	if len(rng.EngineState) == 0 {
		return NewError(KindMissingState,
			"range has no persisted engine state to destroy from", nil).
			WithRange(rng.ID.String()).
			WithProvider(rng.Provider)
	}

	config, err := req.Driver.ConfigurationValues(rng.Region, req.Secrets)
	if err != nil {
		return err
	}
	env, err := req.Driver.EnvironmentCredentials(req.Secrets)
	if err != nil {
		return err
	}

	if e.tracer != nil {
		spanCtx, s := e.tracer.StartSpan(ctx, "range.destroy",
			attribute.String("range.id", rng.ID.String()),
			attribute.String("range.provider", rng.Provider),
		)
		defer s.End()
		ctx = spanCtx
	}

	log.Info("destroying range")

	err = e.synth.Destroy(ctx, synth.StackRequest{
		Workspace: Workspace(rng.ID),
		Config:    config,
		Env:       env,
		State:     rng.EngineState,
	})
	if err != nil {
		e.observeDestroy(rng.Provider, "failure")
		return NewError(KindDestroy, "engine destroy failed", err).
			WithRange(rng.ID.String()).
			WithProvider(rng.Provider).
			WithDiagnostic(err.Error())
	}

	e.observeDestroy(rng.Provider, "success")
	log.Info("range destroyed")
	return nil
}

// Reconcile probes whether a range's workspace still holds live
// infrastructure. Used after a job deadline expires: the engine cannot be
// interrupted mid-apply, so the final job status must come from what
// actually exists, never from an assumption.
func (e *Engine) Reconcile(ctx context.Context, rangeID uuid.UUID) (*synth.UpResult, bool, error) {
	result, err := e.synth.Refresh(ctx, synth.StackRequest{Workspace: Workspace(rangeID)})
	if err != nil {
		if errors.Is(err, synth.ErrStackNotFound) {
			return nil, false, nil
		}
		return nil, false, NewError(KindSynthesis, "engine refresh failed", err).
			WithRange(rangeID.String())
	}
	return result, true, nil
}

// teardownPartial attempts to destroy whatever a failed deploy left behind.
// It runs exactly once per failure; if it fails too, the range is flagged
// on the critical channel as a dangling-resource risk.
func (e *Engine) teardownPartial(ctx context.Context, stackReq synth.StackRequest, log *telemetry.Logger) {
	stackReq.Program = nil

	// The apply may have failed because the caller's deadline expired; the
	// teardown must still reach the engine, so it runs detached.
	ctx = context.WithoutCancel(ctx)

	if err := e.synth.Destroy(ctx, stackReq); err != nil {
		if e.metrics != nil {
			e.metrics.IncDanglingResources()
		}
		log.WithError(err).Criticalf(
			"automatic teardown after failed deploy did not complete; workspace %s may hold dangling cloud resources that need manual cleanup",
			stackReq.Workspace)
		return
	}
	log.Warn("deploy failed, partial resources torn down")
}

// observeDeploy records deploy metrics when a collector is attached.
func (e *Engine) observeDeploy(provider, result string, started time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveDeploy(provider, result, time.Since(started))
	}
}

// observeDestroy records destroy metrics when a collector is attached.
func (e *Engine) observeDestroy(provider, result string) {
	if e.metrics != nil {
		e.metrics.ObserveDestroy(provider, result)
	}
}
