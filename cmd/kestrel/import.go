package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/repository"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

func importCmd() *cobra.Command {
	var transactionsPath, rulesPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a transaction feed and rule catalog in the repository",
		Long: `Import validates the feeds with the same normalizer the review pipeline uses
and replaces the stored copies, so "data.source: repository" serves them on the
next load. Invalid transaction records are dropped and reported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transactionsPath == "" && rulesPath == "" {
				return errors.New("nothing to import: pass --transactions and/or --rules")
			}

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if transactionsPath != "" {
				data, err := os.ReadFile(transactionsPath)
				if err != nil {
					return fmt.Errorf("failed to read transactions: %w", err)
				}
				res, err := ingest.Normalize(data)
				if err != nil {
					return err
				}
				if err := repo.ReplaceTransactions(ctx, res.Records); err != nil {
					return err
				}
				slog.Info("transactions imported", "kept", len(res.Records), "dropped", res.Dropped)
				successColor.Fprintf(out, "imported %d transactions (%d dropped)\n", len(res.Records), res.Dropped)
				if res.Dropped > 0 {
					warnColor.Fprintf(out, "%d records had no numeric amount or were missing a party\n", res.Dropped)
				}
			}

			if rulesPath != "" {
				data, err := os.ReadFile(rulesPath)
				if err != nil {
					return fmt.Errorf("failed to read rules: %w", err)
				}
				catalog, err := ingest.ParseRules(data)
				if err != nil {
					return err
				}
				if err := repo.ReplaceRules(ctx, catalog); err != nil {
					return err
				}
				slog.Info("rules imported", "count", len(catalog))
				successColor.Fprintf(out, "imported %d rules\n", len(catalog))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&transactionsPath, "transactions", "", "transaction feed JSON file")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule catalog JSON file")
	return cmd
}
