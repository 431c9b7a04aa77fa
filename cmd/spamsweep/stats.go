package main

import (
	"context"
	"fmt"

	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/abdulachik/spamsweep/internal/cursor"
	"github.com/abdulachik/spamsweep/internal/db"
	"github.com/spf13/cobra"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	Long:  `Display statistics about hits and account actions recorded in the ledger.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 10, "number of recent hits to list")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	// Ensure migrations are run
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	totalHits, err := store.CountHits(ctx)
	if err != nil {
		return fmt.Errorf("count hits: %w", err)
	}

	accounts, err := store.CountHitAccounts(ctx)
	if err != nil {
		return fmt.Errorf("count hit accounts: %w", err)
	}

	byReason, err := store.CountHitsByReason(ctx)
	if err != nil {
		return fmt.Errorf("count hits by reason: %w", err)
	}

	actions, err := store.CountActions(ctx)
	if err != nil {
		return fmt.Errorf("count actions: %w", err)
	}

	recent, err := store.ListRecentHits(ctx, statsLimit)
	if err != nil {
		return fmt.Errorf("list recent hits: %w", err)
	}

	fmt.Println("=== SpamSweep Statistics ===")
	fmt.Println()

	lastID, err := cursor.NewFile(cfg.CursorPath).Load()
	switch {
	case err != nil:
		fmt.Printf("Cursor: unreadable (%v)\n", err)
	case lastID == "":
		fmt.Println("Cursor: not set")
	default:
		if ts, ok := cursor.ToTime(lastID); ok {
			fmt.Printf("Cursor: %s (~%s)\n", lastID, ts.Format("2006-01-02 15:04:05 MST"))
		} else {
			fmt.Printf("Cursor: %s\n", lastID)
		}
	}
	fmt.Println()

	fmt.Println("Hits:")
	fmt.Printf("  Total:    %d\n", totalHits)
	fmt.Printf("  Accounts: %d\n", accounts)
	if len(byReason) > 0 {
		fmt.Println("  By reason:")
		for _, row := range byReason {
			fmt.Printf("    %s: %d\n", row.Reason, row.Count)
		}
	}
	fmt.Println()

	fmt.Println("Account actions:")
	if len(actions) == 0 {
		fmt.Println("  none")
	}
	for _, row := range actions {
		fmt.Printf("  %s/%s: %d\n", row.Action, row.Outcome, row.Count)
	}

	if len(recent) > 0 {
		fmt.Println()
		fmt.Println("Recent hits:")
		for _, h := range recent {
			mode := ""
			if h.DryRun {
				mode = " [dry run]"
			}
			fmt.Printf("  %s  %s  %s (%s)%s\n",
				h.DetectedAt.Format("2006-01-02 15:04"), h.StatusID, h.Acct, h.Reason, mode)
		}
	}

	return nil
}
