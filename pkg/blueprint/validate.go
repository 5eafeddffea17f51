package blueprint

import (
	"fmt"
	"net/netip"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared struct validator. validator.Validate caches struct
// metadata, so a single instance is reused.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a range template: struct constraints first, then the
// topology pass. A nil return means the blueprint is safe to hand to a
// provider driver.
func Validate(r *Range) error {
	if r == nil {
		return fmt.Errorf("blueprint is nil")
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("blueprint %q: %w", r.Name, err)
	}
	return validateTopology(r)
}

// Parse decodes and validates a YAML blueprint document.
func Parse(data []byte) (*Range, error) {
	var r Range
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing blueprint: %w", err)
	}
	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// validateTopology enforces the CIDR invariants: VPC blocks are mutually
// exclusive, subnets are contained in their parent VPC, and host counts fit
// the subnet's usable capacity.
func validateTopology(r *Range) error {
	vpcBlocks := make([]netip.Prefix, 0, len(r.VPCs))
	vpcNames := make(map[string]bool, len(r.VPCs))

	for _, vpc := range r.VPCs {
		if vpcNames[vpc.Name] {
			return fmt.Errorf("duplicate vpc name %q", vpc.Name)
		}
		vpcNames[vpc.Name] = true

		block, err := netip.ParsePrefix(vpc.CIDR)
		if err != nil {
			return fmt.Errorf("vpc %q: invalid cidr %q: %w", vpc.Name, vpc.CIDR, err)
		}
		block = block.Masked()

		for i, other := range vpcBlocks {
			if block.Overlaps(other) {
				return fmt.Errorf("vpc %q cidr %s overlaps vpc %q cidr %s",
					vpc.Name, block, r.VPCs[i].Name, other)
			}
		}
		vpcBlocks = append(vpcBlocks, block)

		if err := validateSubnets(&vpc, block); err != nil {
			return err
		}
	}

	return nil
}

// validateSubnets checks containment, subnet exclusivity within one VPC,
// and host capacity.
func validateSubnets(vpc *VPC, vpcBlock netip.Prefix) error {
	subnetBlocks := make([]netip.Prefix, 0, len(vpc.Subnets))
	subnetNames := make(map[string]bool, len(vpc.Subnets))

	for _, subnet := range vpc.Subnets {
		if subnetNames[subnet.Name] {
			return fmt.Errorf("vpc %q: duplicate subnet name %q", vpc.Name, subnet.Name)
		}
		subnetNames[subnet.Name] = true

		block, err := netip.ParsePrefix(subnet.CIDR)
		if err != nil {
			return fmt.Errorf("subnet %q: invalid cidr %q: %w", subnet.Name, subnet.CIDR, err)
		}
		block = block.Masked()

		if !prefixContains(vpcBlock, block) {
			return fmt.Errorf("subnet %q cidr %s is not contained in vpc %q cidr %s",
				subnet.Name, block, vpc.Name, vpcBlock)
		}

		for i, other := range subnetBlocks {
			if block.Overlaps(other) {
				return fmt.Errorf("subnet %q cidr %s overlaps subnet %q cidr %s",
					subnet.Name, block, vpc.Subnets[i].Name, other)
			}
		}
		subnetBlocks = append(subnetBlocks, block)

		capacity := usableAddresses(block)
		if len(subnet.Hosts) > capacity {
			return fmt.Errorf("subnet %q: %d hosts exceed capacity %d of %s",
				subnet.Name, len(subnet.Hosts), capacity, block)
		}

		hostnames := make(map[string]bool, len(subnet.Hosts))
		for _, host := range subnet.Hosts {
			if hostnames[host.Hostname] {
				return fmt.Errorf("subnet %q: duplicate hostname %q", subnet.Name, host.Hostname)
			}
			hostnames[host.Hostname] = true
		}
	}

	return nil
}

// prefixContains reports whether inner lies entirely within outer.
func prefixContains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Addr())
}

// usableAddresses returns how many hosts fit a subnet. Cloud networks
// reserve five addresses per subnet (network, router, DNS, future use,
// broadcast), so a /24 holds 251 hosts.
func usableAddresses(block netip.Prefix) int {
	hostBits := 32 - block.Bits()
	if hostBits >= 31 {
		return 1 << 30 // effectively unbounded for blueprint purposes
	}
	total := 1 << hostBits
	if total <= 5 {
		return 0
	}
	return total - 5
}
