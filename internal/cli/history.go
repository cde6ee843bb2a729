package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous lookups",
	Long: `List the lookups persisted to the history service, most recent first.

Examples:
  identify history
  identify history --mock`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	records, err := history.History(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No lookups yet.")
		return nil
	}

	fmt.Printf("%-10s %-24s %-32s %s\n", "ID", "QUERY", "PLATFORMS", "WHEN")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, rec := range records {
		query := rec.Query
		if len(query) > 24 {
			query = query[:21] + "..."
		}
		fmt.Printf("%-10s %-24s %-32s %s\n",
			rec.ID, query, strings.Join(rec.Platforms, ","), rec.CreatedAt.Format("2006-01-02 15:04"))
	}

	return nil
}
