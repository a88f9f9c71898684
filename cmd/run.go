package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/app"
)

// newRunCmd creates the 'run' subcommand, which executes one step and exits.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <keyword|article|image|cycle>",
		Short:     "Runs one collection step once",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{app.StepKeyword, app.StepArticle, app.StepImage, app.StepCycle},
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(appInstance)
			summary, err := appInstance.RunStep(cmd.Context(), args[0])
			appInstance.GetLogger().Info("Step finished.",
				zap.String("step", args[0]),
				zap.Int("processed", summary.Processed),
				zap.Int("submitted", summary.Submitted),
				zap.Bool("aborted", summary.Aborted),
			)
			out, merr := json.MarshalIndent(summary, "", "  ")
			if merr == nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			return nil
		},
	}
}
