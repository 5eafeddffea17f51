package lifecycle

import (
	"fmt"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
)

// parseOutputs validates the engine's output set against the blueprint and
// assembles the deployed resource tree. Identifier lists are flattened in
// blueprint order; any count mismatch or malformed value is a hard
// output-parsing failure; results are never silently truncated.
func parseOutputs(outputs map[string]any, bp *blueprint.Range) ([]DeployedVPC, string, string, error) {
	vpcIDs, err := stringList(outputs, OutputVPCIDs)
	if err != nil {
		return nil, "", "", err
	}
	subnetIDs, err := stringList(outputs, OutputSubnetIDs)
	if err != nil {
		return nil, "", "", err
	}
	hostIDs, err := stringList(outputs, OutputHostIDs)
	if err != nil {
		return nil, "", "", err
	}

	if len(vpcIDs) != len(bp.VPCs) {
		return nil, "", "", parseErr("expected %d vpc ids, engine returned %d", len(bp.VPCs), len(vpcIDs))
	}

	subnetCount := 0
	for _, vpc := range bp.VPCs {
		subnetCount += len(vpc.Subnets)
	}
	if len(subnetIDs) != subnetCount {
		return nil, "", "", parseErr("expected %d subnet ids, engine returned %d", subnetCount, len(subnetIDs))
	}
	if len(hostIDs) != bp.HostCount() {
		return nil, "", "", parseErr("expected %d host ids, engine returned %d", bp.HostCount(), len(hostIDs))
	}

	jumpIP, err := stringValue(outputs, OutputJumpHostIP)
	if err != nil {
		return nil, "", "", err
	}
	rangeKey, err := stringValue(outputs, OutputRangePrivateKey)
	if err != nil {
		return nil, "", "", err
	}

	vpcs := make([]DeployedVPC, 0, len(bp.VPCs))
	subnetIdx, hostIdx := 0, 0
	for i, vpc := range bp.VPCs {
		deployed := DeployedVPC{
			Name:       vpc.Name,
			CIDR:       vpc.CIDR,
			ResourceID: vpcIDs[i],
			Subnets:    make([]DeployedSubnet, 0, len(vpc.Subnets)),
		}
		for _, subnet := range vpc.Subnets {
			ds := DeployedSubnet{
				Name:       subnet.Name,
				CIDR:       subnet.CIDR,
				ResourceID: subnetIDs[subnetIdx],
				Hosts:      make([]DeployedHost, 0, len(subnet.Hosts)),
			}
			subnetIdx++
			for _, host := range subnet.Hosts {
				ds.Hosts = append(ds.Hosts, DeployedHost{
					Hostname:   host.Hostname,
					ResourceID: hostIDs[hostIdx],
				})
				hostIdx++
			}
			deployed.Subnets = append(deployed.Subnets, ds)
		}
		vpcs = append(vpcs, deployed)
	}

	return vpcs, jumpIP, rangeKey, nil
}

// stringList extracts a required list-of-strings output.
func stringList(outputs map[string]any, key string) ([]string, error) {
	raw, exists := outputs[key]
	if !exists {
		return nil, parseErr("output %s is missing", key)
	}

	items, ok := raw.([]any)
	if !ok {
		// State blobs decoded from JSON may carry []string directly.
		if typed, ok := raw.([]string); ok {
			return typed, nil
		}
		return nil, parseErr("output %s is not a list (got %T)", key, raw)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, parseErr("output %s[%d] is not a non-empty string (got %T)", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// stringValue extracts a required non-empty string output.
func stringValue(outputs map[string]any, key string) (string, error) {
	raw, exists := outputs[key]
	if !exists {
		return "", parseErr("output %s is missing", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", parseErr("output %s is not a non-empty string (got %T)", key, raw)
	}
	return s, nil
}

// parseErr builds an output-parsing failure.
func parseErr(format string, args ...any) *RangeError {
	return NewError(KindOutputParsing, fmt.Sprintf(format, args...), nil)
}
