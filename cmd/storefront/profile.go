package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fjod/storefront/internal/profile"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect user profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <uid>",
		Short: "Print a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, docs, err := connectDocstore(ctx)
			if err != nil {
				return err
			}
			defer db.Client().Disconnect(ctx)

			p, err := profile.NewReconciler(docs, cfg.Quotas(), logger).Get(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "quota",
		Short: "Show registrations against each provider's cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, docs, err := connectDocstore(ctx)
			if err != nil {
				return err
			}
			defer db.Client().Disconnect(ctx)

			r := profile.NewReconciler(docs, cfg.Quotas(), logger)
			for provider, limit := range cfg.Quotas() {
				n, err := r.Registrations(ctx, provider)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d\n", provider, n, limit)
			}
			return nil
		},
	})
	return cmd
}
