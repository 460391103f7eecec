package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobarin/wellvoice/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local voice cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cfg.VoicectlCachePath)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := openLocal(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			n, err := cache.NewStore(backend, cfg.CacheTTL).PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
			return err
		},
	})

	return cmd
}
