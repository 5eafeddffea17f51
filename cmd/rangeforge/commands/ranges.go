package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRangesCommand() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "List a user's deployed ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, _, _, err := setup()
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
			ranges, err := store.ListRangesByUser(ctx, user.ID)
			if err != nil {
				return err
			}
			if len(ranges) == 0 {
				fmt.Println("no deployed ranges")
				return nil
			}

			for _, rng := range ranges {
				hosts := 0
				for _, vpc := range rng.VPCs {
					for _, subnet := range vpc.Subnets {
						hosts += len(subnet.Hosts)
					}
				}
				fmt.Printf("%s  %-8s %-12s %-14s jump %-15s %d host(s)\n",
					rng.ID, rng.Provider, rng.Region, rng.State, rng.JumpHostIP, hosts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
