// Package lifecycle owns the range deployment state machine: it turns a
// validated blueprint, a region, decrypted credentials, and a provider
// driver into a live deployed range through the external synthesis engine,
// and tears ranges down again. Partial failures trigger an automatic
// teardown attempt so cloud resources are never silently orphaned.
package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// State is the range lifecycle state.
type State string

const (
	// StateCreated is the initial state before synthesis starts.
	StateCreated State = "created"

	// StateSynthesizing means the engine is applying the program.
	StateSynthesizing State = "synthesizing"

	// StateDeployed means the engine confirmed a successful apply.
	StateDeployed State = "deployed"

	// StateDestroying means the engine is tearing the range down.
	StateDestroying State = "destroying"

	// StateDestroyed means the engine confirmed a successful teardown.
	StateDestroyed State = "destroyed"

	// StateFailed is the terminal failure state for either direction.
	StateFailed State = "failed"
)

// IsTerminal reports whether the state admits no further transition.
func (s State) IsTerminal() bool {
	return s == StateDestroyed || s == StateFailed
}

// DeployedHost is one live compute instance.
type DeployedHost struct {
	// Hostname is the blueprint hostname.
	Hostname string `json:"hostname"`

	// ResourceID is the cloud instance identifier.
	ResourceID string `json:"resource_id"`
}

// DeployedSubnet is one live subnet and its hosts.
type DeployedSubnet struct {
	// Name is the blueprint subnet name.
	Name string `json:"name"`

	// CIDR is the subnet address block.
	CIDR string `json:"cidr"`

	// ResourceID is the cloud subnet identifier.
	ResourceID string `json:"resource_id"`

	// Hosts are the live hosts on this subnet, in blueprint order.
	Hosts []DeployedHost `json:"hosts"`
}

// DeployedVPC is one live network and its subnets.
type DeployedVPC struct {
	// Name is the blueprint VPC name.
	Name string `json:"name"`

	// CIDR is the VPC address block.
	CIDR string `json:"cidr"`

	// ResourceID is the cloud VPC identifier.
	ResourceID string `json:"resource_id"`

	// Subnets are the live subnets, in blueprint order.
	Subnets []DeployedSubnet `json:"subnets"`
}

// DeployedRange is a materialized blueprint: the cloud identifiers of every
// declared resource, the jump host address, the generated per-range key,
// and the engine state blob needed to destroy it later. A DeployedRange is
// only ever constructed from a confirmed successful apply.
type DeployedRange struct {
	// ID is the range identifier (also the engine workspace suffix).
	ID uuid.UUID `json:"id"`

	// BlueprintID is the source blueprint.
	BlueprintID uuid.UUID `json:"blueprint_id"`

	// UserID is the owning tenant.
	UserID uuid.UUID `json:"user_id"`

	// Provider is the cloud provider identifier.
	Provider string `json:"provider"`

	// Region is the cloud region.
	Region string `json:"region"`

	// State is the range lifecycle state.
	State State `json:"state"`

	// EngineState is the synthesis engine's persisted state blob, required
	// for destroy.
	EngineState []byte `json:"engine_state"`

	// VPCs are the live networks, mirroring the blueprint topology.
	VPCs []DeployedVPC `json:"vpcs"`

	// JumpHostIP is the public address of the range's entry host.
	JumpHostIP string `json:"jump_host_ip"`

	// SSHPrivateKey is the generated per-range access key.
	SSHPrivateKey string `json:"ssh_private_key"`

	// CreatedAt is when the engine confirmed the apply.
	CreatedAt time.Time `json:"created_at"`
}

// Workspace returns the engine workspace name for a range. The name is
// unique per range, which serializes engine operations against it.
func Workspace(rangeID uuid.UUID) string {
	return "range-" + rangeID.String()
}

// Engine output contract keys. Every driver's program exports exactly
// these; the parser rejects output sets that do not match the blueprint.
const (
	OutputVPCIDs          = "vpc_ids"
	OutputSubnetIDs       = "subnet_ids"
	OutputHostIDs         = "host_ids"
	OutputJumpHostIP      = "jump_host_ip"
	OutputRangePrivateKey = "range_private_key"
)
