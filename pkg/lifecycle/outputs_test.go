package lifecycle

import (
	"testing"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
)

func outputBlueprint() *blueprint.Range {
	return &blueprint.Range{
		Name:     "lab",
		Provider: "aws",
		VPCs: []blueprint.VPC{
			{
				Name: "main",
				CIDR: "10.0.0.0/16",
				Subnets: []blueprint.Subnet{
					{
						Name: "a",
						CIDR: "10.0.1.0/24",
						Hosts: []blueprint.Host{
							{Hostname: "h1", OS: "ubuntu-22.04", Size: "small"},
							{Hostname: "h2", OS: "ubuntu-22.04", Size: "small"},
						},
					},
					{
						Name:  "b",
						CIDR:  "10.0.2.0/24",
						Hosts: []blueprint.Host{{Hostname: "h3", OS: "debian-12", Size: "small"}},
					},
				},
			},
		},
	}
}

func goodOutputs() map[string]any {
	return map[string]any{
		OutputVPCIDs:          []any{"vpc-1"},
		OutputSubnetIDs:       []any{"subnet-1", "subnet-2"},
		OutputHostIDs:         []any{"i-1", "i-2", "i-3"},
		OutputJumpHostIP:      "198.51.100.7",
		OutputRangePrivateKey: "KEY",
	}
}

func TestParseOutputsBuildsTree(t *testing.T) {
	bp := outputBlueprint()
	vpcs, jumpIP, key, err := parseOutputs(goodOutputs(), bp)
	if err != nil {
		t.Fatalf("parseOutputs failed: %v", err)
	}

	if len(vpcs) != 1 || vpcs[0].ResourceID != "vpc-1" {
		t.Fatalf("unexpected vpcs: %+v", vpcs)
	}
	if len(vpcs[0].Subnets) != 2 {
		t.Fatalf("expected 2 subnets, got %d", len(vpcs[0].Subnets))
	}
	// Hosts consume ids in blueprint order.
	if vpcs[0].Subnets[0].Hosts[1].ResourceID != "i-2" {
		t.Errorf("host id order wrong: %+v", vpcs[0].Subnets[0].Hosts)
	}
	if vpcs[0].Subnets[1].Hosts[0].ResourceID != "i-3" {
		t.Errorf("host id order wrong: %+v", vpcs[0].Subnets[1].Hosts)
	}
	if jumpIP != "198.51.100.7" || key != "KEY" {
		t.Errorf("scalar outputs wrong: %q %q", jumpIP, key)
	}
}

func TestParseOutputsRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o map[string]any)
	}{
		{"missing vpc ids", func(o map[string]any) { delete(o, OutputVPCIDs) }},
		{"fewer hosts than declared", func(o map[string]any) { o[OutputHostIDs] = []any{"i-1"} }},
		{"extra subnet", func(o map[string]any) { o[OutputSubnetIDs] = []any{"s1", "s2", "s3"} }},
		{"empty jump ip", func(o map[string]any) { o[OutputJumpHostIP] = "" }},
		{"missing range key", func(o map[string]any) { delete(o, OutputRangePrivateKey) }},
		{"non-string id", func(o map[string]any) { o[OutputVPCIDs] = []any{42} }},
		{"not a list", func(o map[string]any) { o[OutputHostIDs] = "i-1" }},
	}

	bp := outputBlueprint()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outputs := goodOutputs()
			tt.mutate(outputs)
			_, _, _, err := parseOutputs(outputs, bp)
			if !IsKind(err, KindOutputParsing) {
				t.Errorf("expected output parsing error, got %v", err)
			}
		})
	}
}

func TestParseOutputsAcceptsStringSlices(t *testing.T) {
	outputs := goodOutputs()
	outputs[OutputVPCIDs] = []string{"vpc-1"}
	outputs[OutputSubnetIDs] = []string{"subnet-1", "subnet-2"}
	outputs[OutputHostIDs] = []string{"i-1", "i-2", "i-3"}

	if _, _, _, err := parseOutputs(outputs, outputBlueprint()); err != nil {
		t.Fatalf("parseOutputs rejected []string form: %v", err)
	}
}
