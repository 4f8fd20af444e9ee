package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gridwatcher/internal/app"
)

var (
	seedDays   int
	seedStep   time.Duration
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate historical readings into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.SeedOptions{
			Days:   seedDays,
			Step:   seedStep,
			DryRun: seedDryRun,
		}

		return getApp().Seed(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedDays, "days", 7, "Number of days of history to generate")
	seedCmd.Flags().DurationVar(&seedStep, "step", 0, "Spacing between readings (defaults to generator interval)")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Run without writing to storage")
}
