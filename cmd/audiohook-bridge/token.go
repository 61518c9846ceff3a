package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/audiohook-bridge/internal/config"
	"github.com/antoniostano/audiohook-bridge/internal/secrets"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the dialogue access token kept in the secret store",
	}
	cmd.AddCommand(newTokenPutCmd())
	return cmd
}

func newTokenPutCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "put <secret> <access-token>",
		Short: "Store a token as a new secret version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			store, err := secrets.NewStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			w, ok := store.(secrets.Writer)
			if !ok {
				return fmt.Errorf("secret backend %q is read-only", cfg.SecretBackend)
			}
			payload, err := json.Marshal(map[string]any{
				"access_token": args[1],
				"expiry":       time.Now().Add(ttl).UnixMilli(),
			})
			if err != nil {
				return err
			}
			name, err := w.AddVersion(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 55*time.Minute, "token lifetime written as expiry")
	return cmd
}
