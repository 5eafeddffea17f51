package synth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Simulator is an in-memory Engine used by dev mode and tests. It runs
// infrastructure programs against a recording context, mints deterministic
// resource identifiers, and keeps per-workspace state so destroy and refresh
// behave like the real engine's workspace model.
//
// Failure injection lets tests exercise the lifecycle rollback paths without
// a cloud account: apply can be made to fail after a set number of declared
// resources, and destroy can be forced to fail.
type Simulator struct {
	mu sync.Mutex

	// stacks maps workspace name to its live state.
	stacks map[string]*simStack

	// destroyCalls counts Destroy invocations per workspace.
	destroyCalls map[string]int

	// failApplyAfter fails the apply step once this many resources have
	// been registered. Zero disables injection.
	failApplyAfter int

	// destroyErr, when set, is returned by every Destroy call.
	destroyErr error
}

// simStack is the recorded state of one simulated workspace.
type simStack struct {
	Resources []simResource  `json:"resources"`
	Outputs   map[string]any `json:"outputs"`
}

// simResource is one declared resource with its minted identifier.
type simResource struct {
	Type  string         `json:"type"`
	Name  string         `json:"name"`
	ID    string         `json:"id"`
	Props map[string]any `json:"props,omitempty"`
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithApplyFailureAfter makes apply fail once n resources have been declared.
// The resources declared before the failure remain live in the workspace,
// mimicking a partial apply.
func WithApplyFailureAfter(n int) SimulatorOption {
	return func(s *Simulator) { s.failApplyAfter = n }
}

// WithDestroyFailure makes every Destroy call fail with err.
func WithDestroyFailure(err error) SimulatorOption {
	return func(s *Simulator) { s.destroyErr = err }
}

// NewSimulator creates a new in-memory engine.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		stacks:       make(map[string]*simStack),
		destroyCalls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// simContext implements Context for one apply.
type simContext struct {
	workspace string
	stack     *simStack
	exports   map[string]any
	failAfter int
}

// RegisterResource mints a deterministic identifier from the workspace,
// type, and logical name, and records the resource as live immediately;
// a later apply failure leaves it behind, as a real engine would.
func (c *simContext) RegisterResource(typ, name string, props map[string]any) (ResourceID, error) {
	if c.failAfter > 0 && len(c.stack.Resources) >= c.failAfter {
		return "", fmt.Errorf("apply interrupted after %d resources", c.failAfter)
	}

	id := mintID(c.workspace, typ, name)
	c.stack.Resources = append(c.stack.Resources, simResource{
		Type:  typ,
		Name:  name,
		ID:    id,
		Props: props,
	})
	return ResourceID(id), nil
}

// Export records a stack output for resolution after apply.
func (c *simContext) Export(name string, value any) {
	c.exports[name] = value
}

// Up runs the program against a fresh recording context. Partial resource
// sets survive a failed apply so teardown behavior can be observed; a
// retried apply into the same workspace replaces them.
func (s *Simulator) Up(ctx context.Context, req StackRequest) (*UpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Program == nil {
		return nil, fmt.Errorf("workspace %s: no program supplied", req.Workspace)
	}

	s.mu.Lock()
	stack, exists := s.stacks[req.Workspace]
	if !exists {
		stack = &simStack{Outputs: make(map[string]any)}
		s.stacks[req.Workspace] = stack
	}
	// Each apply records from scratch; leftovers from a previous failed
	// attempt are replaced, never appended to.
	stack.Resources = nil
	s.mu.Unlock()

	sc := &simContext{
		workspace: req.Workspace,
		stack:     stack,
		exports:   make(map[string]any),
		failAfter: s.failApplyAfter,
	}

	if err := req.Program(sc); err != nil {
		return nil, fmt.Errorf("apply failed for workspace %s: %w", req.Workspace, err)
	}

	outputs := make(map[string]any, len(sc.exports))
	for name, value := range sc.exports {
		outputs[name] = s.resolve(req.Workspace, stack, value)
	}
	stack.Outputs = outputs

	state, err := json.Marshal(stack)
	if err != nil {
		return nil, fmt.Errorf("encoding workspace state: %w", err)
	}

	return &UpResult{Outputs: outputs, State: state}, nil
}

// Destroy removes the workspace. The workspace stays live when destruction
// fails, so callers can never assume teardown happened.
func (s *Simulator) Destroy(ctx context.Context, req StackRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.destroyCalls[req.Workspace]++
	if s.destroyErr != nil {
		return s.destroyErr
	}

	delete(s.stacks, req.Workspace)
	return nil
}

// Refresh reports the current workspace contents without mutating them.
func (s *Simulator) Refresh(ctx context.Context, req StackRequest) (*UpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stack, exists := s.stacks[req.Workspace]
	if !exists || len(stack.Resources) == 0 {
		return nil, ErrStackNotFound
	}

	state, err := json.Marshal(stack)
	if err != nil {
		return nil, fmt.Errorf("encoding workspace state: %w", err)
	}

	return &UpResult{Outputs: stack.Outputs, State: state}, nil
}

// DestroyCalls reports how many times Destroy was invoked for a workspace.
func (s *Simulator) DestroyCalls(workspace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyCalls[workspace]
}

// Live reports whether the workspace still holds resources.
func (s *Simulator) Live(workspace string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack, exists := s.stacks[workspace]
	return exists && len(stack.Resources) > 0
}

// ResourceCount reports how many resources the workspace currently holds.
func (s *Simulator) ResourceCount(workspace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack, exists := s.stacks[workspace]
	if !exists {
		return 0
	}
	return len(stack.Resources)
}

// resolve replaces ResourceID and AttrRef values in exports with concrete
// values the way a real engine resolves outputs after apply.
func (s *Simulator) resolve(workspace string, stack *simStack, value any) any {
	switch v := value.(type) {
	case ResourceID:
		return string(v)
	case AttrRef:
		return s.resolveAttr(workspace, stack, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.resolve(workspace, stack, item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.resolve(workspace, stack, item)
		}
		return out
	default:
		return v
	}
}

// resolveAttr synthesizes a plausible attribute value for a declared
// resource: addresses from the TEST-NET-2 block for IP attributes, a real
// OpenSSH ed25519 key for private key attributes.
func (s *Simulator) resolveAttr(workspace string, stack *simStack, ref AttrRef) any {
	attr := strings.ToLower(ref.Attr)

	switch {
	case strings.Contains(attr, "private_key"):
		return generateSSHKey()
	case strings.Contains(attr, "ip"):
		for i, res := range stack.Resources {
			if res.ID == string(ref.ID) {
				return fmt.Sprintf("198.51.100.%d", 10+i)
			}
		}
		return "198.51.100.10"
	default:
		return string(ref.ID) + "/" + ref.Attr
	}
}

// mintID derives a stable resource identifier from workspace, type, and
// logical name, prefixed with the type's last path segment.
func mintID(workspace, typ, name string) string {
	sum := sha256.Sum256([]byte(workspace + "|" + typ + "|" + name))
	segments := strings.Split(typ, "/")
	prefix := segments[len(segments)-1]
	return fmt.Sprintf("%s-%x", prefix, sum[:6])
}

// generateSSHKey produces an OpenSSH-encoded ed25519 private key, standing
// in for the key resource a real engine would create per range.
func generateSSHKey() string {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return ""
	}
	block, err := ssh.MarshalPrivateKey(priv, "rangeforge")
	if err != nil {
		return ""
	}
	return string(pem.EncodeToMemory(block))
}
