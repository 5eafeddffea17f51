package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rangeforge/rangeforge/pkg/stores"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

func newDestroyCommand() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "destroy <range-id>",
		Short: "Tear down a deployed range",
		Long: `Tear down a deployed range.

The range record is removed only after the engine confirms the teardown;
an engine failure leaves the record in place so destroy can be retried.`,
		Example: `  rangeforge destroy 6df3a2c1-... --username alice`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rangeID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid range id %q: %w", args[0], err)
			}
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

			pool, tracer, err := newWorkerPool(cfg, store, nil, logger, metrics)
			if err != nil {
				return err
			}
			pool.Start()
			// The tracer flushes after the pool drains, so spans from
			// in-flight jobs are not dropped.
			defer tracer.Shutdown(ctx)
			defer pool.Stop()

			jobID, err := pool.SubmitDestroy(ctx, user.ID, rangeID, masterKey)
			if err != nil {
				return err
			}
			fmt.Printf("destroying range %s as job %s\n", rangeID, jobID)

			job, err := waitForJob(ctx, store, jobID)
			if err != nil {
				return err
			}
			if job.Status == stores.JobStatusFailed {
				if job.Error != nil {
					return fmt.Errorf("destroy failed: %s", *job.Error)
				}
				return fmt.Errorf("destroy failed")
			}

			fmt.Printf("range %s destroyed\n", rangeID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password (or RANGEFORGE_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
