package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/httpclient"
	"github.com/fjod/storefront/internal/retry"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the product catalog",
	}

	var path string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert products from the remote product feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openCatalog()
			if err != nil {
				return err
			}
			defer repo.Close()

			feed := httpclient.New(httpclient.Options{
				BaseURL: cfg.CatalogFeedURL,
				Timeout: cfg.RequestTimeout,
				Retry:   retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay},
				Logger:  logger,
			})
			n, err := catalog.NewImporter(feed, repo, logger).Import(cmd.Context(), path)
			if err != nil {
				return err
			}
			logger.Info("catalog imported", zap.Int("products", n), zap.String("feed", cfg.CatalogFeedURL+path))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", n)
			return nil
		},
	}
	importCmd.Flags().StringVar(&path, "path", "/products", "feed path relative to catalog_feed_url")

	cmd.AddCommand(importCmd)
	return cmd
}
