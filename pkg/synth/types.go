// Package synth defines the boundary to the external infrastructure
// synthesis engine. RangeForge never creates cloud resources itself: a
// provider driver produces a Program that declares resources, and an Engine
// implementation hands that program to the real IaC tool under a named
// workspace, returning the tool's output set and persisted state blob.
package synth

import (
	"context"
	"errors"
)

// ErrStackNotFound is returned by Refresh when the named workspace has no
// live infrastructure behind it.
var ErrStackNotFound = errors.New("stack not found")

// ConfigValue is a single engine configuration entry. Secret values are
// redacted by the engine in its own logs and state output.
type ConfigValue struct {
	// Value is the raw configuration value.
	Value string `json:"value"`

	// Secret marks the value for redaction by the engine.
	Secret bool `json:"secret"`
}

// ResourceID identifies a declared resource. It is opaque to callers; the
// engine resolves it to a cloud identifier during apply.
type ResourceID string

// Context is the declaration surface handed to a Program by the engine.
// Implementations belong to the engine, not to drivers.
type Context interface {
	// RegisterResource declares a resource of the given type and logical
	// name with the given properties. The returned ID may be referenced in
	// later property maps and in exports.
	RegisterResource(typ, name string, props map[string]any) (ResourceID, error)

	// Export publishes a named stack output. Values may include ResourceIDs,
	// which the engine resolves to concrete identifiers in the output set.
	Export(name string, value any)
}

// AttrRef references an attribute of a declared resource whose value is only
// known after apply, for example a jump host's public IP or a generated key.
// Engines resolve AttrRefs appearing in exports to concrete values.
type AttrRef struct {
	// ID is the declared resource the attribute belongs to.
	ID ResourceID `json:"id"`

	// Attr is the attribute name, e.g. "public_ip" or "private_key_openssh".
	Attr string `json:"attr"`
}

// Program declares the full resource set for one range. Programs must be
// deterministic: the same blueprint and region always declare the same
// resources in the same order.
type Program func(ctx Context) error

// StackRequest carries everything the engine needs for one workspace
// operation. The workspace name serializes operations per range.
type StackRequest struct {
	// Workspace is the engine workspace (stack) name, unique per range.
	Workspace string `json:"workspace"`

	// Config is the engine configuration value set from the driver.
	Config map[string]ConfigValue `json:"config"`

	// Env is the process-environment credential set the engine's own
	// provider plugin reads.
	Env map[string]string `json:"env,omitempty"`

	// Program is the infrastructure program to apply. Nil for destroy and
	// refresh, which operate on prior state.
	Program Program `json:"-"`

	// State is the prior engine state blob, required for destroy.
	State []byte `json:"state,omitempty"`
}

// UpResult is the outcome of a successful apply.
type UpResult struct {
	// Outputs is the engine's structured output set.
	Outputs map[string]any `json:"outputs"`

	// State is the engine state blob to persist alongside the range.
	State []byte `json:"state"`
}

// Engine is the external synthesis engine boundary. Calls are blocking and
// IO/CPU-bound; callers dispatch them onto worker goroutines, never onto a
// request path. The engine does not support safe mid-apply interruption, so
// a context cancellation is honored only between sub-steps.
type Engine interface {
	// Up creates or selects the named workspace, applies configuration, and
	// runs the apply step. On success the workspace's outputs and state are
	// returned; on failure whatever the engine reports is surfaced verbatim.
	Up(ctx context.Context, req StackRequest) (*UpResult, error)

	// Destroy tears down the named workspace using the prior state blob.
	// The workspace is only gone when Destroy returns nil.
	Destroy(ctx context.Context, req StackRequest) error

	// Refresh probes the named workspace without mutating it, returning the
	// current outputs and state, or ErrStackNotFound when nothing is live.
	Refresh(ctx context.Context, req StackRequest) (*UpResult, error)
}
