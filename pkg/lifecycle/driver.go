package lifecycle

import (
	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/synth"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// Driver is the capability contract every cloud provider backend satisfies.
// The lifecycle engine is polymorphic over this interface; adding a cloud
// means implementing these four methods and registering the driver with the
// factory; the engine itself never changes.
//
// Implementations must be stateless with respect to individual deploys so a
// single driver value can serve concurrent jobs.
type Driver interface {
	// Name returns the provider identifier the factory keys on ("aws").
	Name() string

	// HasSufficientCredentials reports whether every credential field this
	// provider requires is present and non-empty in secrets.
	HasSufficientCredentials(secrets vault.Fields) bool

	// ConfigurationValues returns the engine configuration for a deploy in
	// the given region, with secret values tagged for redaction. It fails
	// with an insufficient-credentials error when the required fields are
	// not all present.
	ConfigurationValues(region string, secrets vault.Fields) (map[string]synth.ConfigValue, error)

	// EnvironmentCredentials returns the process-environment variables the
	// engine's provider plugin reads during apply and destroy.
	EnvironmentCredentials(secrets vault.Fields) (map[string]string, error)

	// InfrastructureProgram returns the program declaring the blueprint's
	// topology on this provider. The program must be deterministic for a
	// given blueprint and region: identical inputs declare identical
	// resources, so a redeploy from the same template is idempotent.
	InfrastructureProgram(bp *blueprint.Range, region string) synth.Program
}

// DriverFactory resolves a provider identifier to its driver. It fails
// closed: unknown identifiers are an error, never a default.
type DriverFactory interface {
	// Get returns the driver registered under name, or a RangeError of
	// kind KindUnknownProvider.
	Get(name string) (Driver, error)

	// Providers lists the registered provider identifiers.
	Providers() []string
}
