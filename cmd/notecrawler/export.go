package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"notecrawler/pkg/config"
	"notecrawler/pkg/storage"
	"notecrawler/pkg/ui"
)

var workbookPath string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [account...]",
	Short: "Export account CSV files into one XLSX workbook",
	Long: `Read back the CSV files in the output directory and write them as one
workbook with a sheet per account. Without arguments every account with an
output file is exported.`,
	Example: `  # Export everything to the configured workbook
  notecrawler export

  # Export two accounts to a custom path
  notecrawler export PKU THU --workbook ./pku-thu.xlsx`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&workbookPath, "workbook", "w", "", "workbook path (default <output>/<workbook_name>)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	writer, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return err
	}

	accounts := args
	if len(accounts) == 0 {
		accounts, err = writer.Accounts()
		if err != nil {
			return err
		}
	}
	if len(accounts) == 0 {
		ui.PrintWarning("Nothing to export", cfg.Output.BaseDirectory)
		return nil
	}

	path := workbookPath
	if path == "" {
		path = filepath.Join(cfg.Output.BaseDirectory, cfg.Output.WorkbookName)
	}

	sheets, err := writer.ExportWorkbook(path, accounts)
	if err != nil {
		return fmt.Errorf("failed to export workbook: %w", err)
	}
	if sheets == 0 {
		ui.PrintWarning("No output files found for", fmt.Sprintf("%v", accounts))
		return nil
	}

	ui.PrintSuccess(fmt.Sprintf("Exported %d sheets to %s", sheets, path))
	return nil
}
