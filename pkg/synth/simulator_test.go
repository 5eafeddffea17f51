package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// twoResourceProgram declares a VPC and a jump host and exports the usual
// output shapes.
func twoResourceProgram(t *testing.T) Program {
	t.Helper()
	return func(ctx Context) error {
		vpc, err := ctx.RegisterResource("aws:ec2/vpc", "vpc-main", map[string]any{
			"cidr_block": "10.0.0.0/16",
		})
		if err != nil {
			return err
		}
		jump, err := ctx.RegisterResource("aws:ec2/instance", "jump-host", map[string]any{
			"vpc": vpc,
		})
		if err != nil {
			return err
		}
		ctx.Export("vpc_ids", []any{vpc})
		ctx.Export("jump_host_ip", AttrRef{ID: jump, Attr: "public_ip"})
		ctx.Export("range_private_key", AttrRef{ID: jump, Attr: "private_key_openssh"})
		return nil
	}
}

func TestSimulatorUpResolvesOutputs(t *testing.T) {
	sim := NewSimulator()

	result, err := sim.Up(context.Background(), StackRequest{
		Workspace: "range-test",
		Program:   twoResourceProgram(t),
	})
	if err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	vpcIDs, ok := result.Outputs["vpc_ids"].([]any)
	if !ok || len(vpcIDs) != 1 {
		t.Fatalf("expected 1 vpc id, got %v", result.Outputs["vpc_ids"])
	}
	if id, ok := vpcIDs[0].(string); !ok || !strings.HasPrefix(id, "vpc-") {
		t.Errorf("expected resolved vpc id string, got %v", vpcIDs[0])
	}

	ip, ok := result.Outputs["jump_host_ip"].(string)
	if !ok || ip == "" {
		t.Errorf("expected non-empty jump host ip, got %v", result.Outputs["jump_host_ip"])
	}

	key, ok := result.Outputs["range_private_key"].(string)
	if !ok || !strings.Contains(key, "OPENSSH PRIVATE KEY") {
		t.Errorf("expected OpenSSH private key output, got %v", result.Outputs["range_private_key"])
	}

	if len(result.State) == 0 {
		t.Error("expected non-empty state blob")
	}
}

func TestSimulatorDeterministicIDs(t *testing.T) {
	first := NewSimulator()
	second := NewSimulator()

	ctx := context.Background()
	req := StackRequest{Workspace: "range-det", Program: twoResourceProgram(t)}

	r1, err := first.Up(ctx, req)
	if err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	r2, err := second.Up(ctx, req)
	if err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	id1 := r1.Outputs["vpc_ids"].([]any)[0]
	id2 := r2.Outputs["vpc_ids"].([]any)[0]
	if id1 != id2 {
		t.Errorf("resource ids differ across identical applies: %v vs %v", id1, id2)
	}
}

func TestSimulatorApplyFailureLeavesPartialStack(t *testing.T) {
	sim := NewSimulator(WithApplyFailureAfter(1))

	_, err := sim.Up(context.Background(), StackRequest{
		Workspace: "range-partial",
		Program:   twoResourceProgram(t),
	})
	if err == nil {
		t.Fatal("expected apply failure")
	}

	if got := sim.ResourceCount("range-partial"); got != 1 {
		t.Errorf("expected 1 partial resource, got %d", got)
	}
	if !sim.Live("range-partial") {
		t.Error("expected workspace to stay live after partial apply")
	}
}

func TestSimulatorDestroy(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	if _, err := sim.Up(ctx, StackRequest{Workspace: "range-d", Program: twoResourceProgram(t)}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	if err := sim.Destroy(ctx, StackRequest{Workspace: "range-d"}); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if sim.Live("range-d") {
		t.Error("workspace still live after destroy")
	}
	if got := sim.DestroyCalls("range-d"); got != 1 {
		t.Errorf("expected 1 destroy call, got %d", got)
	}

	if _, err := sim.Refresh(ctx, StackRequest{Workspace: "range-d"}); !errors.Is(err, ErrStackNotFound) {
		t.Errorf("expected ErrStackNotFound after destroy, got %v", err)
	}
}

func TestSimulatorDestroyFailureKeepsStack(t *testing.T) {
	boom := errors.New("provider timeout")
	sim := NewSimulator(WithDestroyFailure(boom))
	ctx := context.Background()

	if _, err := sim.Up(ctx, StackRequest{Workspace: "range-f", Program: twoResourceProgram(t)}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	if err := sim.Destroy(ctx, StackRequest{Workspace: "range-f"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected destroy failure, got %v", err)
	}
	if !sim.Live("range-f") {
		t.Error("workspace must stay live when destroy fails")
	}
}

func TestSimulatorRetryReplacesPartialRecording(t *testing.T) {
	sim := NewSimulator()
	ws := "range-retry"

	boom := errors.New("mid-apply crash")
	partial := func(ctx Context) error {
		if _, err := ctx.RegisterResource("aws:ec2/vpc", "vpc-main", nil); err != nil {
			return err
		}
		return boom
	}
	if _, err := sim.Up(context.Background(), StackRequest{Workspace: ws, Program: partial}); !errors.Is(err, boom) {
		t.Fatalf("expected partial apply to fail, got %v", err)
	}
	if got := sim.ResourceCount(ws); got != 1 {
		t.Fatalf("expected 1 leftover resource, got %d", got)
	}

	// Retrying into the same workspace must not double-count the leftovers.
	if _, err := sim.Up(context.Background(), StackRequest{Workspace: ws, Program: twoResourceProgram(t)}); err != nil {
		t.Fatalf("retried apply failed: %v", err)
	}
	if got := sim.ResourceCount(ws); got != 2 {
		t.Fatalf("retried apply accumulated resources: got %d, want 2", got)
	}
}
