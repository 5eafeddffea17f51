package blueprint

import (
	"strings"
	"testing"
)

// simpleRange returns a minimal valid blueprint: one VPC, one subnet, one host.
func simpleRange() *Range {
	return &Range{
		Name:     "demo",
		Provider: "aws",
		VPCs: []VPC{
			{
				Name: "main",
				CIDR: "10.0.0.0/16",
				Subnets: []Subnet{
					{
						Name: "workstations",
						CIDR: "10.0.1.0/24",
						Hosts: []Host{
							{Hostname: "ws1", OS: "ubuntu-22.04", Size: "small"},
						},
					},
				},
			},
		},
	}
}

func TestValidateAcceptsSimpleRange(t *testing.T) {
	if err := Validate(simpleRange()); err != nil {
		t.Fatalf("expected valid blueprint, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Range)
		wantErr string
	}{
		{
			name:    "missing provider",
			mutate:  func(r *Range) { r.Provider = "" },
			wantErr: "Provider",
		},
		{
			name:    "invalid size",
			mutate:  func(r *Range) { r.VPCs[0].Subnets[0].Hosts[0].Size = "gigantic" },
			wantErr: "Size",
		},
		{
			name:    "malformed cidr",
			mutate:  func(r *Range) { r.VPCs[0].CIDR = "10.0.0.0" },
			wantErr: "CIDR",
		},
		{
			name: "subnet outside vpc",
			mutate: func(r *Range) {
				r.VPCs[0].Subnets[0].CIDR = "192.168.1.0/24"
			},
			wantErr: "not contained",
		},
		{
			name: "overlapping vpcs",
			mutate: func(r *Range) {
				second := r.VPCs[0]
				second.Name = "second"
				second.CIDR = "10.0.128.0/17"
				r.VPCs = append(r.VPCs, second)
			},
			wantErr: "overlaps",
		},
		{
			name: "overlapping subnets",
			mutate: func(r *Range) {
				dup := r.VPCs[0].Subnets[0]
				dup.Name = "servers"
				r.VPCs[0].Subnets = append(r.VPCs[0].Subnets, dup)
			},
			wantErr: "overlaps",
		},
		{
			name: "duplicate hostname",
			mutate: func(r *Range) {
				hosts := r.VPCs[0].Subnets[0].Hosts
				r.VPCs[0].Subnets[0].Hosts = append(hosts, hosts[0])
			},
			wantErr: "duplicate hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := simpleRange()
			tt.mutate(r)
			err := Validate(r)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateHostCapacity(t *testing.T) {
	r := simpleRange()
	// A /30 leaves no usable addresses after the 5 reserved ones.
	r.VPCs[0].Subnets[0].CIDR = "10.0.1.0/30"
	err := Validate(r)
	if err == nil || !strings.Contains(err.Error(), "capacity") {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	doc := `
name: parsed
provider: aws
vpcs:
  - name: main
    cidr: 10.1.0.0/16
    subnets:
      - name: dmz
        cidr: 10.1.2.0/24
        hosts:
          - hostname: web1
            os: ubuntu-22.04
            size: medium
            spec:
              cpus: 2
              memory_mb: 4096
`
	r, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Name != "parsed" || r.HostCount() != 1 {
		t.Errorf("unexpected parse result: %+v", r)
	}
	if r.VPCs[0].Subnets[0].Hosts[0].Spec.CPUs != 2 {
		t.Errorf("spec not decoded: %+v", r.VPCs[0].Subnets[0].Hosts[0].Spec)
	}
}
