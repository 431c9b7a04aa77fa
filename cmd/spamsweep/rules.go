package main

import (
	"context"
	"fmt"
	"os"

	"github.com/abdulachik/spamsweep/internal/app"
	"github.com/abdulachik/spamsweep/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Load and print the rule set",
	Long: `Load the rule document from RULES_URL, validate it and print the rules
in evaluation order.`,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	fmt.Printf("# %d rule(s) from %s", set.Len(), set.Source)
	if set.ETag != "" {
		fmt.Printf(" (etag %s)", set.ETag)
	}
	fmt.Println()

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()

	return enc.Encode(map[string]any{"rules": set.Rules})
}
