package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"notecrawler/pkg/auth"
	"notecrawler/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored identities",
	Long: `Manage the browser cookies used to sign requests.

Identities are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (NOTECRAWLER_A1, NOTECRAWLER_WEB_SESSION)

Never share your cookies or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store identity cookies securely",
	Long: `Store the a1, web_session and webId cookies of a logged-in browser session.

You will be prompted for:
  - a1 cookie
  - web_session cookie
  - webId cookie (optional)
  - User Agent (optional, press Enter for default)

Without a name the identity is stored as 'default'.`,
	Example: `  # Store the default identity
  notecrawler auth login

  # Store a second identity
  notecrawler auth login backup`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove a stored identity",
	Long: `Remove a stored identity.

If no name is provided, you will be shown a list of stored identities
to choose from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored identities",
	Long:  `List all stored identities with masked cookie values.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := auth.DefaultIdentity
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	auth.ShowCookieExtractionGuide(os.Stdout)

	fmt.Print("Ready to enter your cookies? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'notecrawler auth login' when you're ready.")
		return nil
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\nIdentity '%s' already exists. Replace it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")
	fmt.Println()

	a1, err := promptSecret(reader, "a1 cookie value: ", true)
	if err != nil {
		return err
	}
	webSession, err := promptSecret(reader, "\nweb_session cookie value: ", true)
	if err != nil {
		return err
	}
	webID, err := promptSecret(reader, "\nwebId cookie value (optional): ", false)
	if err != nil {
		return err
	}

	fmt.Print("\n\nUser Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	identity := &auth.Identity{
		Name:       name,
		A1:         a1,
		WebSession: webSession,
		WebID:      webID,
		UserAgent:  userAgent,
	}

	masked := auth.SanitizeIdentity(identity)
	fmt.Println("\nSummary:")
	fmt.Printf("   Name: %s\n", masked.Name)
	fmt.Printf("   a1: %s\n", masked.A1)
	fmt.Printf("   web_session: %s\n", masked.WebSession)
	if masked.WebID != "" {
		fmt.Printf("   webId: %s\n", masked.WebID)
	}
	if userAgent != "" {
		fmt.Printf("   User Agent: %s\n", userAgent)
	}

	if err := manager.Store(identity); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Identity saved: %s", name))

	fmt.Println("\nStart crawling with:")
	if name == auth.DefaultIdentity {
		fmt.Println("   $ notecrawler crawl")
	} else {
		fmt.Printf("   $ notecrawler crawl --identity %s\n", name)
	}
	fmt.Println("\nCookies expire when you log out in the browser. Run login again if requests start failing with code 461.")
	return nil
}

// promptSecret reads one hidden value, asking again while a required value is empty
func promptSecret(reader *bufio.Reader, prompt string, required bool) (string, error) {
	for {
		fmt.Print(prompt)
		value, err := readPassword(reader)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if value != "" || !required {
			return value, nil
		}
		fmt.Println("\nA value is required.")
	}
}

// readPassword reads without echo on a terminal and falls back to a plain line read
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to remove identity: %w", err)
		}
		ui.PrintSuccess("Identity removed: " + args[0])
		return nil
	}

	identities, err := manager.List()
	if err != nil || len(identities) == 0 {
		ui.PrintWarning("No stored identities found")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Select identity to remove:")
	for i, identity := range identities {
		fmt.Printf("  %d. %s\n", i+1, identity.Name)
	}
	fmt.Printf("  0. Cancel\n\n")
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	if choice == 0 {
		return nil
	}
	if choice < 0 || choice > len(identities) {
		return fmt.Errorf("invalid choice %q", strings.TrimSpace(input))
	}

	name := identities[choice-1].Name
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}
	ui.PrintSuccess("Identity removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	identities, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	if len(identities) == 0 {
		ui.PrintInfo("No stored identities", "Use 'notecrawler auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Identities")
	fmt.Println()

	for i, identity := range identities {
		sanitized := auth.SanitizeIdentity(identity)
		fmt.Printf("%d. Name: %s\n", i+1, sanitized.Name)
		fmt.Printf("   a1: %s\n", sanitized.A1)
		fmt.Printf("   web_session: %s\n", sanitized.WebSession)
		if sanitized.WebID != "" {
			fmt.Printf("   webId: %s\n", sanitized.WebID)
		}
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}
