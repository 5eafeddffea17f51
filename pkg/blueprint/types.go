// Package blueprint defines the network range template model and its
// validation: struct-level constraints via go-playground/validator, then a
// topology pass enforcing CIDR exclusivity, containment, and host capacity.
// A blueprint that passes Validate is immutable from the engine's point of
// view: deployment never mutates it.
package blueprint

import (
	"github.com/google/uuid"
)

// Range is a reusable network topology template. It owns no infrastructure;
// deploying it produces a DeployedRange owned by a user.
type Range struct {
	// ID is the blueprint identifier.
	ID uuid.UUID `json:"id" yaml:"id"`

	// Name is the human-readable blueprint name.
	Name string `json:"name" yaml:"name" validate:"required,min=1,max=64"`

	// Provider is the cloud provider identifier (e.g. "aws", "azure").
	Provider string `json:"provider" yaml:"provider" validate:"required"`

	// VPCs is the ordered set of networks in the range.
	VPCs []VPC `json:"vpcs" yaml:"vpcs" validate:"required,min=1,dive"`
}

// VPC is one isolated network in a range.
type VPC struct {
	// Name is the logical VPC name, unique within the range.
	Name string `json:"name" yaml:"name" validate:"required"`

	// CIDR is the VPC address block.
	CIDR string `json:"cidr" yaml:"cidr" validate:"required,cidrv4"`

	// Subnets is the ordered set of subnets in the VPC.
	Subnets []Subnet `json:"subnets" yaml:"subnets" validate:"required,min=1,dive"`
}

// Subnet is one address block within a VPC.
type Subnet struct {
	// Name is the logical subnet name, unique within its VPC.
	Name string `json:"name" yaml:"name" validate:"required"`

	// CIDR is the subnet address block, contained in the parent VPC CIDR.
	CIDR string `json:"cidr" yaml:"cidr" validate:"required,cidrv4"`

	// Hosts is the ordered set of hosts on the subnet.
	Hosts []Host `json:"hosts" yaml:"hosts" validate:"required,min=1,dive"`
}

// Host is a single compute instance in a subnet.
type Host struct {
	// Hostname is the instance hostname, unique within its subnet.
	Hostname string `json:"hostname" yaml:"hostname" validate:"required,hostname_rfc1123"`

	// OS is the operating system image identifier.
	OS string `json:"os" yaml:"os" validate:"required"`

	// Size is the provider-neutral instance size class.
	Size string `json:"size" yaml:"size" validate:"required,oneof=small medium large xlarge"`

	// Spec is the resource specification for the host.
	Spec HostSpec `json:"spec" yaml:"spec"`
}

// HostSpec holds per-host resource requests.
type HostSpec struct {
	// CPUs is the requested vCPU count.
	CPUs int `json:"cpus" yaml:"cpus" validate:"omitempty,min=1,max=64"`

	// MemoryMB is the requested memory in megabytes.
	MemoryMB int `json:"memory_mb" yaml:"memory_mb" validate:"omitempty,min=512"`

	// DiskGB is the requested root disk size in gigabytes.
	DiskGB int `json:"disk_gb" yaml:"disk_gb" validate:"omitempty,min=8,max=4096"`
}

// HostCount returns the total number of hosts declared in the range.
func (r *Range) HostCount() int {
	count := 0
	for _, vpc := range r.VPCs {
		for _, subnet := range vpc.Subnets {
			count += len(subnet.Hosts)
		}
	}
	return count
}
