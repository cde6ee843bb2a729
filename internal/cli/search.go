package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/identifyhq/identify/internal/pipeline"
	"github.com/identifyhq/identify/internal/session"
)

var (
	searchReddit    string
	searchYouTube   string
	searchInstagram string
	searchLinkedIn  string
	searchJSON      bool
	searchPlain     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Resolve and scrape a person's public profiles",
	Long: `Search resolves the query into candidate profile URLs, applies any
per-platform overrides, scrapes the confirmed sources, and prints the
AI community analysis.

Examples:
  identify search "Jane Doe"
  identify search "janedoe" --reddit https://reddit.com/user/jane_doe
  identify search "Jane Doe" --mock --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchReddit, "reddit", "", "override the resolved Reddit profile URL")
	searchCmd.Flags().StringVar(&searchYouTube, "youtube", "", "override the resolved YouTube profile URL")
	searchCmd.Flags().StringVar(&searchInstagram, "instagram", "", "override the resolved Instagram profile URL")
	searchCmd.Flags().StringVar(&searchLinkedIn, "linkedin", "", "override the resolved LinkedIn profile URL")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the final session state as JSON")
	searchCmd.Flags().BoolVar(&searchPlain, "plain", false, "disable the interactive progress display")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, err := pipeline.New(ctx, args[0], deps)
	if err != nil {
		return fmt.Errorf("start lookup: %w", err)
	}

	overrides := map[string]string{
		session.PlatformReddit:    searchReddit,
		session.PlatformYouTube:   searchYouTube,
		session.PlatformInstagram: searchInstagram,
		session.PlatformLinkedIn:  searchLinkedIn,
	}
	for platform, url := range overrides {
		if url == "" {
			continue
		}
		if err := p.SetSource(platform, url); err != nil {
			return fmt.Errorf("override %s source: %w", platform, err)
		}
	}

	snap := p.Snapshot()
	fmt.Printf("Sources for %q:\n", snap.Query)
	for _, platform := range session.Platforms() {
		if url, ok := snap.Sources[platform]; ok {
			fmt.Printf("  %-10s %s\n", platform, url)
		}
	}
	fmt.Println()

	done := make(chan error, 1)
	go func() { done <- p.Confirm(ctx) }()

	if searchPlain {
		if err := <-done; err != nil {
			return fmt.Errorf("lookup failed: %w", err)
		}
	} else if err := RunPhaseProgress(p, done); err != nil {
		return err
	}

	final := p.Snapshot()
	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}

	printResult(final)
	return nil
}

func printResult(snap pipeline.Snapshot) {
	if snap.Analysis != nil {
		fmt.Printf("Archetype: %s\n\n", snap.Analysis.Archetype)
		fmt.Printf("%s\n", snap.Analysis.Summary)
		if snap.Analysis.MascotURL != "" {
			fmt.Printf("\nMascot: %s\n", snap.Analysis.MascotURL)
		}
	} else {
		fmt.Println("Analysis pending: the AI service was unavailable.")
	}
	if len(snap.Result) > 0 {
		fmt.Printf("\nScrape payload: %d bytes (use --json to print it)\n", len(snap.Result))
	}
	fmt.Printf("Session: %s\n", snap.ID)
}
