package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"notecrawler/pkg/auth"
	"notecrawler/pkg/config"
	"notecrawler/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage notecrawler configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (NOTECRAWLER_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'notecrawler.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.
Identity cookies are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Accounts, batch and rate limit settings
  - Identity cookies
  - Output and log paths`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# notecrawler configuration file
#
# Every option can also be set with an environment variable prefixed with
# NOTECRAWLER_, for example NOTECRAWLER_A1 or NOTECRAWLER_BATCH_SIZE.

# Accounts to crawl. name is used for the CSV file, id is the profile id
# from the profile URL.
accounts:
  - name: "PKU"
    id: "5b0e6c6711be10330b0c7a4d"

platform:
  # Identity cookies. Prefer 'notecrawler auth login' over storing them here.
  a1: ""
  web_session: ""
  web_id: ""
  # Stored identity to use when the cookies above are empty
  identity: ""
  # Time zone for publish times: Local, UTC or an IANA name
  timezone: "Asia/Shanghai"

crawl:
  # Records buffered before each CSV append and checkpoint save
  batch_size: 10
  # Listing pages per account per run
  max_pages: 50
  # Pause after every note and every page
  item_delay: 400ms
  page_delay: 600ms
  # Also flush a partial batch after this long (0 disables)
  flush_interval: 0s
  # Accounts crawled at the same time
  parallel_accounts: 1
  # Keep failed details out of the CSV and retry them next run
  retry_incomplete: false
  # Stop the run at the first failed account
  stop_on_error: false

rate_limit:
  requests_per_minute: 60
  burst_size: 5
  # Attempts per request when the platform answers with a rate limit
  max_retries: 3
  retry_delay: 30s
  request_timeout: 30s

signer:
  attempts: 3
  timeout: 45s
  headless: true
  # Optional script injected before signing
  stealth_script: ""
  chrome_path: ""

output:
  base_directory: "./output"
  checkpoint_file: "processed_ids.json"
  export_workbook: true
  workbook_name: "notes.xlsx"
  write_summary: true

logging:
  # debug, info, warn, error
  level: "info"
  # Optional log file; empty logs to the console
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "notecrawler.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("To overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Add the accounts to crawl")
	fmt.Println("2. Run 'notecrawler auth login' to store your identity cookies")
	fmt.Println("3. Run 'notecrawler config validate' to check the configuration")
	fmt.Println("4. Start crawling with 'notecrawler crawl'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	displayCfg := *cfg
	masked := auth.SanitizeIdentity(&auth.Identity{
		A1:         cfg.Platform.A1,
		WebSession: cfg.Platform.WebSession,
		WebID:      cfg.Platform.WebID,
	})
	displayCfg.Platform.A1 = masked.A1
	displayCfg.Platform.WebSession = masked.WebSession
	displayCfg.Platform.WebID = masked.WebID

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (NOTECRAWLER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in the default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings, problems []string

	if len(cfg.Accounts) == 0 {
		warnings = append(warnings, "no accounts configured")
	}
	if cfg.Platform.A1 == "" || cfg.Platform.WebSession == "" {
		warnings = append(warnings, "identity cookies not configured; a stored identity will be used")
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if cfg.Signer.StealthScript != "" {
		if _, err := os.Stat(cfg.Signer.StealthScript); err != nil {
			problems = append(problems, fmt.Sprintf("stealth script: %v", err))
		}
	}
	if cfg.Crawl.ParallelAccounts > 1 && cfg.RateLimit.RequestsPerMinute < 30 {
		warnings = append(warnings, "parallel accounts share the request budget; consider a higher requests_per_minute")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Accounts: %d\n", len(cfg.Accounts))
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Checkpoint: %s\n", cfg.CheckpointPath())
	fmt.Printf("  Batch size: %d\n", cfg.Crawl.BatchSize)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max retries: %d every %s\n", cfg.RateLimit.MaxRetries, cfg.RateLimit.RetryDelay)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
