package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rangeforge/rangeforge/pkg/vault"
)

func newSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage per-provider cloud credentials",
	}
	cmd.AddCommand(newSecretsSetCommand())
	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	var (
		username string
		provider string
		fields   []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store cloud credentials for a provider",
		Long: `Store cloud credentials for one provider.

Each field is encrypted to the user's public key before it touches the
database, so no password is needed to write secrets and nothing in the
system can read them back without the user's master key.`,
		Example: `  rangeforge secrets set --username alice --provider aws \
    --field aws_access_key_id=AKIA... \
    --field aws_secret_access_key=...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if len(fields) == 0 {
				return fmt.Errorf("at least one --field name=value is required")
			}
			plain := make(vault.Fields, len(fields))
			for _, f := range fields {
				name, value, ok := strings.Cut(f, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid field %q, expected name=value", f)
				}
				plain[name] = value
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

			user, err := store.GetUserByUsername(ctx, username)
			if err != nil {
				return err
			}

			sealed, err := vault.EncryptFields(plain, user.PublicKey)
			if err != nil {
				return err
			}
			if err := store.PutUserSecrets(ctx, user.ID, provider, sealed); err != nil {
				return err
			}

			fmt.Printf("stored %d credential field(s) for %s/%s\n", len(sealed), username, provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&provider, "provider", "", "cloud provider identifier (aws, azure)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "credential field as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}
