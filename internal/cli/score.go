package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identifyhq/identify/internal/telemetry"
)

var scoreReset bool

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show this device's stored impatience score",
	Long: `Show the device id and the impatience score persisted from previous
lookups. The score tunes how aggressively the scraper works on the next job.

Examples:
  identify score
  identify score --reset`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreReset, "reset", false, "reset the stored score to the neutral default")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	deviceID := scores.DeviceID(ctx)

	if scoreReset {
		scores.SetScore(ctx, deviceID, telemetry.DefaultScore)
		fmt.Printf("Score reset to %.2f\n", telemetry.DefaultScore)
	}

	fmt.Printf("Device: %s\n", deviceID)
	fmt.Printf("Score:  %.2f\n", scores.Score(ctx, deviceID))
	return nil
}
