package provider

import (
	"context"
	"testing"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

func awsSecrets() vault.Fields {
	return vault.Fields{
		vault.FieldAWSAccessKeyID:     "AKIAEXAMPLE",
		vault.FieldAWSSecretAccessKey: "secret",
	}
}

func azureSecrets() vault.Fields {
	return vault.Fields{
		vault.FieldAzureClientID:     "client",
		vault.FieldAzureClientSecret: "secret",
		vault.FieldAzureTenantID:     "tenant",
		vault.FieldAzureSubscription: "sub",
	}
}

func testBlueprint() *blueprint.Range {
	return &blueprint.Range{
		Name:     "lab",
		Provider: "aws",
		VPCs: []blueprint.VPC{
			{
				Name: "main",
				CIDR: "10.0.0.0/16",
				Subnets: []blueprint.Subnet{
					{
						Name: "workstations",
						CIDR: "10.0.1.0/24",
						Hosts: []blueprint.Host{
							{Hostname: "ws1", OS: "ubuntu-22.04", Size: "small"},
							{Hostname: "ws2", OS: "windows-2022", Size: "medium"},
						},
					},
				},
			},
		},
	}
}

func TestHasSufficientCredentials(t *testing.T) {
	tests := []struct {
		name    string
		driver  lifecycle.Driver
		secrets vault.Fields
		want    bool
	}{
		{"aws complete", NewAWSDriver(), awsSecrets(), true},
		{"aws missing secret key", NewAWSDriver(), vault.Fields{vault.FieldAWSAccessKeyID: "AKIA"}, false},
		{"aws empty field", NewAWSDriver(), vault.Fields{vault.FieldAWSAccessKeyID: "AKIA", vault.FieldAWSSecretAccessKey: ""}, false},
		{"aws nil secrets", NewAWSDriver(), nil, false},
		{"azure complete", NewAzureDriver(), azureSecrets(), true},
		{"azure partial", NewAzureDriver(), vault.Fields{vault.FieldAzureClientID: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.driver.HasSufficientCredentials(tt.secrets); got != tt.want {
				t.Errorf("HasSufficientCredentials = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigurationValues(t *testing.T) {
	driver := NewAWSDriver()

	config, err := driver.ConfigurationValues("us-east-1", awsSecrets())
	if err != nil {
		t.Fatalf("ConfigurationValues failed: %v", err)
	}
	if got := config["aws:region"]; got.Value != "us-east-1" || got.Secret {
		t.Errorf("region config wrong: %+v", got)
	}
	if got := config["aws:secretKey"]; !got.Secret {
		t.Error("secret key not tagged secret")
	}

	_, err = driver.ConfigurationValues("us-east-1", vault.Fields{})
	if !lifecycle.IsKind(err, lifecycle.KindInsufficientCredentials) {
		t.Errorf("expected insufficient credentials error, got %v", err)
	}
}

func TestEnvironmentCredentials(t *testing.T) {
	env, err := NewAzureDriver().EnvironmentCredentials(azureSecrets())
	if err != nil {
		t.Fatalf("EnvironmentCredentials failed: %v", err)
	}
	for _, key := range []string{"ARM_CLIENT_ID", "ARM_CLIENT_SECRET", "ARM_TENANT_ID", "ARM_SUBSCRIPTION_ID"} {
		if env[key] == "" {
			t.Errorf("missing env var %s", key)
		}
	}

	_, err = NewAzureDriver().EnvironmentCredentials(vault.Fields{})
	if !lifecycle.IsKind(err, lifecycle.KindInsufficientCredentials) {
		t.Errorf("expected insufficient credentials error, got %v", err)
	}
}

func TestFactoryFailsClosed(t *testing.T) {
	factory := NewFactory(NewAWSDriver())

	if _, err := factory.Get("aws"); err != nil {
		t.Fatalf("expected aws driver, got error: %v", err)
	}

	_, err := factory.Get("digitalocean")
	if !lifecycle.IsKind(err, lifecycle.KindUnknownProvider) {
		t.Errorf("expected unknown provider error, got %v", err)
	}

	if got := factory.Providers(); len(got) != 1 || got[0] != "aws" {
		t.Errorf("Providers() = %v", got)
	}
}

func TestDefaultFactoryRegistersBuiltins(t *testing.T) {
	factory := DefaultFactory()
	got := factory.Providers()
	if len(got) != 2 || got[0] != "aws" || got[1] != "azure" {
		t.Errorf("Providers() = %v, want [aws azure]", got)
	}
}

// runProgram applies a driver's program through the simulator and returns
// the outputs.
func runProgram(t *testing.T, driver lifecycle.Driver, bp *blueprint.Range, workspace string) map[string]any {
	t.Helper()
	sim := synth.NewSimulator()
	result, err := sim.Up(context.Background(), synth.StackRequest{
		Workspace: workspace,
		Program:   driver.InfrastructureProgram(bp, "us-east-1"),
	})
	if err != nil {
		t.Fatalf("program apply failed: %v", err)
	}
	return result.Outputs
}

func TestInfrastructureProgramOutputs(t *testing.T) {
	for _, driver := range []lifecycle.Driver{NewAWSDriver(), NewAzureDriver()} {
		t.Run(driver.Name(), func(t *testing.T) {
			outputs := runProgram(t, driver, testBlueprint(), "range-outputs-"+driver.Name())

			if got := len(outputs[lifecycle.OutputVPCIDs].([]any)); got != 1 {
				t.Errorf("expected 1 vpc id, got %d", got)
			}
			if got := len(outputs[lifecycle.OutputSubnetIDs].([]any)); got != 1 {
				t.Errorf("expected 1 subnet id, got %d", got)
			}
			if got := len(outputs[lifecycle.OutputHostIDs].([]any)); got != 2 {
				t.Errorf("expected 2 host ids, got %d", got)
			}
			if ip, _ := outputs[lifecycle.OutputJumpHostIP].(string); ip == "" {
				t.Error("jump host ip is empty")
			}
			if key, _ := outputs[lifecycle.OutputRangePrivateKey].(string); key == "" {
				t.Error("range private key is empty")
			}
		})
	}
}

func TestInfrastructureProgramDeterministic(t *testing.T) {
	driver := NewAWSDriver()
	bp := testBlueprint()

	first := runProgram(t, driver, bp, "range-same")
	second := runProgram(t, driver, bp, "range-same")

	firstIDs := first[lifecycle.OutputHostIDs].([]any)
	secondIDs := second[lifecycle.OutputHostIDs].([]any)
	for i := range firstIDs {
		if firstIDs[i] != secondIDs[i] {
			t.Errorf("host id %d differs across identical applies: %v vs %v", i, firstIDs[i], secondIDs[i])
		}
	}
}
