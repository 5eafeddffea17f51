package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rangeforge/rangeforge/pkg/stores"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage tenant accounts",
	}
	cmd.AddCommand(newUserCreateCommand())
	cmd.AddCommand(newUserPasswdCommand())
	return cmd
}

// resolvePassword returns the flag value, falling back to the
// RANGEFORGE_PASSWORD environment variable.
func resolvePassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("RANGEFORGE_PASSWORD"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("password required: pass --password or set RANGEFORGE_PASSWORD")
}

func newUserCreateCommand() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant account with a fresh keypair",
		Long: `Create a tenant account.

A new age keypair is generated for the user. The public key encrypts the
user's cloud credentials at rest; the private key is sealed under a master
key derived from the password and is never stored in the clear.`,
		Example: `  rangeforge user create --username alice --password s3cret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pass, err := resolvePassword(password)
			if err != nil {
				return err
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

			masterKey, salt, err := vault.DeriveMasterKey(pass, nil)
			if err != nil {
				return err
			}
			defer vault.Zero(masterKey)

			keypair, err := vault.GenerateKeyPair()
			if err != nil {
				return err
			}
			blob, err := vault.EncryptPrivateKey(keypair.PrivateKey, masterKey)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			user := &stores.User{
				ID:                  uuid.New(),
				Username:            username,
				PublicKey:           keypair.PublicKey,
				EncryptedPrivateKey: blob,
				KeySalt:             salt,
				KDFVersion:          vault.KDFVersion,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := store.CreateUser(ctx, user); err != nil {
				return err
			}

			fmt.Printf("user %s created (id %s)\n", username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "account password (or RANGEFORGE_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserPasswdCommand() *cobra.Command {
	var (
		username    string
		oldPassword string
		newPassword string
	)

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change an account password",
		Long: `Change an account password.

The private key is decrypted with the old password and re-encrypted under a
key derived from the new one. The replacement blob, salt, and KDF version
are written in a single update, so a failure at any point leaves the old
password fully usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if oldPassword == "" || newPassword == "" {
				return fmt.Errorf("both --old-password and --new-password are required")
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

			oldKey, _, err := vault.DeriveMasterKey(oldPassword, user.KeySalt)
			if err != nil {
				return err
			}
			defer vault.Zero(oldKey)

			rekeyed, err := vault.Rekey(user.EncryptedPrivateKey, oldKey, newPassword)
			if err != nil {
				return err
			}
			if err := store.UpdateUserKeys(ctx, user.ID, rekeyed.Blob, rekeyed.Salt, rekeyed.KDFVersion); err != nil {
				return err
			}

			fmt.Printf("password changed for %s\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name")
	cmd.Flags().StringVar(&oldPassword, "old-password", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
