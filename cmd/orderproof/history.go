package main

import (
	"fmt"
	"os"

	"github.com/Veraticus/orderproof/internal/cli"
	"github.com/Veraticus/orderproof/internal/config"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs from the local journal",
		Long: `List recent runs, newest first. Pass a run id to see what happened to
each order in that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 20, "number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
		fmt.Fprintln(os.Stdout, cli.FormatInfo("No runs recorded yet"))
		return nil
	}

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	if journal == nil {
		fmt.Fprintln(os.Stdout, cli.FormatInfo("The run journal is disabled"))
		return nil
	}
	defer func() { _ = journal.Close() }()

	if len(args) == 1 {
		run, err := journal.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", args[0], err)
		}
		events, err := journal.ListOrderEvents(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load orders for run %s: %w", run.ID, err)
		}
		fmt.Fprintln(os.Stdout, cli.FormatRuns([]model.RunRecord{*run}))
		fmt.Fprintln(os.Stdout, cli.FormatOrderEvents(events))
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := journal.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	fmt.Fprintln(os.Stdout, cli.FormatRuns(runs))
	return nil
}
