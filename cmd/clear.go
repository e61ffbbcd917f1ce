package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete compiled templates from the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			views := newViews(cfg, logger)

			removed, err := views.Compiler().Clear()
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", views.CachePath(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d compiled templates from %s\n", removed, views.CachePath())
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newClearCmd())
}
