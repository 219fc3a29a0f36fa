package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/postgres"
)

var keyExpiresIn time.Duration

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the API keys that guard mutating routes",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a key and print it once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyStore(cmd, func(s *apikey.Store) error {
			var expiresAt *time.Time
			if keyExpiresIn > 0 {
				t := time.Now().Add(keyExpiresIn).UTC()
				expiresAt = &t
			}
			raw, err := s.CreateKey(cmd.Context(), args[0], expiresAt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyStore(cmd, func(s *apikey.Store) error {
			keys, err := s.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREATED\tEXPIRES")
			for _, k := range keys {
				expires := "never"
				if k.ExpiresAt != nil {
					expires = k.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), expires)
			}
			return w.Flush()
		})
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <name>",
	Short: "Revoke every active key with the given name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeyStore(cmd, func(s *apikey.Store) error {
			return s.RevokeKey(cmd.Context(), args[0])
		})
	},
}

func init() {
	keysCreateCmd.Flags().DurationVar(&keyExpiresIn, "expires-in", 0, "lifetime of the key, e.g. 720h (default: never expires)")
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}

func withKeyStore(cmd *cobra.Command, fn func(*apikey.Store) error) error {
	if cfg.Postgres.Host == "" {
		return errors.New("postgres.host is not configured")
	}
	ctx := cmd.Context()
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	s := apikey.NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(s)
}
