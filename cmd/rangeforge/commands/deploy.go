package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/stores"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

func newDeployCommand() *cobra.Command {
	var (
		username string
		password string
		region   string
	)

	cmd := &cobra.Command{
		Use:   "deploy <blueprint.yaml>",
		Short: "Deploy a range from a blueprint",
		Long: `Deploy a range from a blueprint.

The blueprint is validated, checked against admission policy, stored, and
queued as a deployment job. The command waits for the job to finish and
prints the jump host address on success.`,
		Example: `  rangeforge deploy lab.yaml --username alice --region us-east-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pass, err := resolvePassword(password)
			if err != nil {
				return err
			}

			cfg, logger, metrics, err := setup()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.GetUserByUsername(ctx, username)
			if err != nil {
				return err
			}
			masterKey, _, err := vault.DeriveMasterKey(pass, user.KeySalt)
			if err != nil {
				return err
			}
			defer vault.Zero(masterKey)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading blueprint: %w", err)
			}
			bp, err := blueprint.Parse(data)
			if err != nil {
				return err
			}

			record := &stores.Blueprint{
				ID:        uuid.New(),
				UserID:    user.ID,
				Name:      bp.Name,
				Provider:  bp.Provider,
				Document:  data,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.CreateBlueprint(ctx, record); err != nil {
				return err
			}

			policyEngine, err := newPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			pool, tracer, err := newWorkerPool(cfg, store, policyEngine, logger, metrics)
			if err != nil {
				return err
			}
			pool.Start()
			// The tracer flushes after the pool drains, so spans from
			// in-flight jobs are not dropped.
			defer tracer.Shutdown(ctx)
			defer pool.Stop()

			jobID, err := pool.SubmitDeploy(ctx, user.ID, record.ID, region, masterKey)
			if err != nil {
				return err
			}
			fmt.Printf("deploying %q as job %s\n", bp.Name, jobID)

			job, err := waitForJob(ctx, store, jobID)
			if err != nil {
				return err
			}
			if job.Status == stores.JobStatusFailed {
				if job.Error != nil {
					return fmt.Errorf("deploy failed: %s", *job.Error)
				}
				return fmt.Errorf("deploy failed")
			}

			rng, err := store.GetRange(ctx, job.RangeID)
			if err != nil {
				return err
			}
			fmt.Printf("range %s deployed in %s, jump host %s\n", rng.ID, rng.Region, rng.JumpHostIP)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password (or RANGEFORGE_PASSWORD)")
	cmd.Flags().StringVar(&region, "region", "", "target cloud region")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("region")

	return cmd
}
