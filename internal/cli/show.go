package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored lookup",
	Long: `Show the details of one persisted lookup by its id.

Examples:
  identify show a1b2c3d4
  identify show a1b2c3d4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the raw scrape payload")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rec, err := history.Search(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetch lookup: %w", err)
	}

	fmt.Printf("Lookup: %s\n", rec.ID)
	fmt.Printf("  Query: %s\n", rec.Query)
	fmt.Printf("  Platforms: %s\n", strings.Join(rec.Platforms, ", "))
	fmt.Printf("  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))

	if showJSON && len(rec.Result) > 0 {
		fmt.Println("\nResult:")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else if len(rec.Result) > 0 {
		fmt.Printf("  Payload: %d bytes (use --json to print it)\n", len(rec.Result))
	}

	return nil
}
