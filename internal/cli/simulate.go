package cli

import (
	"github.com/spf13/cobra"

	"gridwatcher/internal/app"
)

var (
	simulateSubsystem string
	simulateChecks    int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-fault",
	Short: "Drive the fault detector with degraded readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateFaultOptions{
			Subsystem: simulateSubsystem,
			Checks:    simulateChecks,
		}

		return getApp().SimulateFault(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSubsystem, "subsystem", "solar", "Subsystem to degrade (solar, wind, battery, connectivity)")
	simulateCmd.Flags().IntVar(&simulateChecks, "checks", 0, "Number of detector passes (defaults to enough to reach fault)")
}
