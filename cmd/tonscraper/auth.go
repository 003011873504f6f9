package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"tonscraper/pkg/auth"
	"tonscraper/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the upstream API key",
	Long: `Manage stored upstream API keys.

Keys are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - TONSCRAPER_API_KEY (read only)

A key given with --api-key or in the config file takes precedence.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store an API key",
	Example: `  # Interactive login for the default profile
  tonscraper auth login

  # Separate key for testnet
  tonscraper auth login testnet`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored API key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var showCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show stored API keys (masked)",
	Args:    cobra.NoArgs,
	RunE:    runShow,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(showCmd)
}

func profileArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := profileArg(args)
	reader := bufio.NewReader(os.Stdin)

	auth.ShowAPIKeyGuide(os.Stdout)
	fmt.Println()

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already has a key (%s). Replace it? (y/N): ", name, auth.MaskKey(existing.APIKey))
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("API key (hidden): ")
	key, err := readPassword(reader)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	if key == "" {
		return errors.New("API key is required")
	}

	if err := manager.Store(&auth.Credential{Profile: name, APIKey: key}); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Key stored for profile '%s': %s", name, auth.MaskKey(key)))
	if name != auth.DefaultProfile {
		ui.PrintInfo("Use it with", "tonscraper run --profile "+name)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := profileArg(args)

	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.PrintSuccess("Key removed for profile: " + name)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		ui.PrintInfo("No stored keys", "use 'tonscraper auth login' to add one")
		return nil
	}

	rows := make([]ui.Row, 0, len(creds))
	for _, c := range creds {
		s := auth.Sanitize(c)
		value := s.APIKey
		if !s.LastModified.IsZero() {
			value += "  (" + s.LastModified.Format("2006-01-02 15:04") + ")"
		}
		rows = append(rows, ui.Row{Label: s.Profile, Value: value})
	}
	ui.PrintPanel("Stored keys", rows)
	return nil
}

// readPassword reads without echo on a terminal and falls back to a plain line otherwise
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
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
