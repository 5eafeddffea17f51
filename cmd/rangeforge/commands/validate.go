package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
)

func newValidateCommand() *cobra.Command {
	var region string

	cmd := &cobra.Command{
		Use:   "validate <blueprint.yaml>",
		Short: "Validate a range blueprint",
		Long: `Validate a range blueprint without deploying anything.

This command checks:
  - YAML syntax and schema conformance
  - Network topology (subnets inside their VPC, no overlaps)
  - Policy compliance (host budget, provider and region allowlists)`,
		Example: `  # Validate a blueprint
  rangeforge validate lab.yaml

  # Include the region allowlist check
  rangeforge validate lab.yaml --region us-east-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, logger, _, err := setup()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading blueprint: %w", err)
			}
			bp, err := blueprint.Parse(data)
			if err != nil {
				return err
			}

			policyEngine, err := newPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			result, err := policyEngine.Evaluate(ctx, bp, region)
			if err != nil {
				return err
			}

			for _, w := range result.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			if !result.Allowed {
				for _, v := range result.Violations {
					fmt.Printf("denied [%s]: %s\n", v.Policy, v.Message)
				}
				return fmt.Errorf("blueprint %q violates %d policy rule(s)", bp.Name, len(result.Violations))
			}

			fmt.Printf("blueprint %q is valid: provider %s, %d VPC(s), %d host(s)\n",
				bp.Name, bp.Provider, len(bp.VPCs), bp.HostCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "target region to check against the region allowlist")

	return cmd
}
