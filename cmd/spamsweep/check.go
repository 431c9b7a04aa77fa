package main

import (
	"context"
	"fmt"

	"github.com/abdulachik/spamsweep/internal/app"
	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/abdulachik/spamsweep/internal/toot"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <status-id>",
	Short: "Evaluate a single post against the rules",
	Long: `Fetch one post and print the verdict of the current rule set.
No account is acted on and the cursor is not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	if !toot.ValidID(id) {
		return fmt.Errorf("invalid status id %q", id)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	set, err := app.NewRuleSource(cfg).Load(ctx, nil)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	paginator := app.NewPaginator(cfg, app.NewClient(cfg))
	verdict, err := paginator.Check(ctx, id, set)
	if err != nil {
		return err
	}

	fmt.Printf("Status:  %s\n", verdict.Post.ID)
	fmt.Printf("Account: %s (%s)\n", verdict.Post.Account.Acct, verdict.Post.Account.ID)
	fmt.Printf("Matched: %t\n", verdict.Matched)
	fmt.Printf("Reason:  %s\n", verdict.Reason)
	return nil
}
