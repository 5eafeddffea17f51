package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Example: `  rangeforge status 6df3a2c1-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			cfg, _, _, err := setup()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetJob(ctx, jobID)
			if err != nil {
				return err
			}

			fmt.Printf("job:     %s\n", job.ID)
			fmt.Printf("kind:    %s\n", job.Kind)
			fmt.Printf("status:  %s\n", job.Status)
			fmt.Printf("range:   %s\n", job.RangeID)
			fmt.Printf("created: %s\n", job.CreatedAt.Format(time.RFC3339))
			if job.StartedAt != nil {
				fmt.Printf("started: %s\n", job.StartedAt.Format(time.RFC3339))
			}
			if job.CompletedAt != nil {
				fmt.Printf("done:    %s\n", job.CompletedAt.Format(time.RFC3339))
			}
			if job.Error != nil {
				fmt.Printf("error:   %s\n", *job.Error)
			}
			return nil
		},
	}

	return cmd
}
