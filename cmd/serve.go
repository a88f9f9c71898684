package cmd

import (
	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand, the long-running service mode.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the scheduler and the internal HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(appInstance)
			if err := appInstance.Serve(cmd.Context()); err != nil {
				return err
			}
			appInstance.GetLogger().Info("Shutdown signal received.")
			return nil
		},
	}
}
