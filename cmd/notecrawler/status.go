package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"notecrawler/pkg/checkpoint"
	"notecrawler/pkg/config"
	"notecrawler/pkg/metadata"
	"notecrawler/pkg/storage"
	"notecrawler/pkg/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint and last run information",
	Long: `Show how many note ids the checkpoint holds, the rows already written per
account and the summary of the last run. Nothing is fetched.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ui.PrintHighlight("Checkpoint")
	info, err := checkpoint.Stat(cfg.CheckpointPath())
	if err != nil {
		return err
	}
	if info == nil {
		ui.PrintInfo("  File", cfg.CheckpointPath()+" (not created yet)")
	} else {
		ui.PrintInfo("  File", info.Path)
		ui.PrintInfo("  Processed", fmt.Sprintf("%d", info.Processed))
		ui.PrintInfo("  Incomplete", fmt.Sprintf("%d", info.Incomplete))
		ui.PrintInfo("  Updated", info.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	writer, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return err
	}
	accounts, err := writer.Accounts()
	if err != nil {
		return err
	}

	fmt.Println()
	ui.PrintHighlight("Output")
	if len(accounts) == 0 {
		ui.PrintInfo("  Files", "none in "+cfg.Output.BaseDirectory)
	}
	for _, account := range accounts {
		_, rows, err := writer.ReadRows(account)
		if err != nil {
			ui.PrintWarning("  "+account, err)
			continue
		}
		ui.PrintInfo("  "+account, fmt.Sprintf("%d rows", len(rows)))
	}

	summary, err := metadata.Load(filepath.Join(cfg.Output.BaseDirectory, metadata.SummaryFile))
	if err != nil {
		return err
	}

	fmt.Println()
	ui.PrintHighlight("Last run")
	if summary == nil {
		ui.PrintInfo("  Summary", "no run recorded")
		return nil
	}

	written, skipped, incomplete := summary.Totals()
	ui.PrintInfo("  Run", summary.RunID)
	ui.PrintInfo("  Started", summary.StartedAt.Format("2006-01-02 15:04:05"))
	ui.PrintInfo("  Duration", time.Duration(summary.Duration).Round(time.Second).String())
	ui.PrintInfo("  Written", fmt.Sprintf("%d (skipped %d, incomplete %d)", written, skipped, incomplete))
	if summary.Cancelled {
		ui.PrintWarning("  Interrupted before finishing")
	}
	for _, a := range summary.Accounts {
		if a.Failed() {
			ui.PrintError("  "+a.Name, a.Error)
		}
	}
	return nil
}
