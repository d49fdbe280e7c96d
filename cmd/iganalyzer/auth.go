package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"iganalyzer/pkg/auth"
	"iganalyzer/pkg/logger"
)

const cookieHelp = `Log into https://www.instagram.com in a browser, open the developer tools
(F12), then Application/Storage > Cookies > https://www.instagram.com and
copy the values of the sessionid and csrftoken cookies.`

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Instagram cookies used for upstream requests",
	Long: `Manage stored Instagram cookies.

Requests run anonymously unless cookies are configured. Cookies are kept in:
  - the system keychain, when available
  - an encrypted file (AES-GCM, PBKDF2 key)
  - IGANALYZER_INSTAGRAM_SESSION_ID / IGANALYZER_INSTAGRAM_CSRF_TOKEN (read-only)`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store sessionid and csrftoken cookies",
	Long:  "Store sessionid and csrftoken cookies.\n\n" + cookieHelp,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored cookies for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored accounts with masked cookies",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func credentialManager() (*auth.Manager, error) {
	// auth commands still work with a broken config file
	log := logger.GetLogger()
	if _, l, err := loadConfig(nil); err == nil {
		log = l
	}
	return auth.NewDefaultManager("", log)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	mgr, err := credentialManager()
	if err != nil {
		return err
	}
	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Fprint(out, "Instagram username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Fprintln(out, cookieHelp)
	fmt.Fprintln(out)
	sessionID, err := readSecret(out, reader, "sessionid: ")
	if err != nil {
		return err
	}
	csrf, err := readSecret(out, reader, "csrftoken: ")
	if err != nil {
		return err
	}
	fmt.Fprint(out, "User agent (Enter for default): ")
	ua, _ := reader.ReadString('\n')

	creds := &auth.Credentials{
		Username:  username,
		SessionID: sessionID,
		CSRFToken: csrf,
		UserAgent: strings.TrimSpace(ua),
	}
	where, err := mgr.Save(creds)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved credentials for %s in %s\n", creds.Username, where)
	return nil
}

// readSecret reads without echo when stdin is a terminal
func readSecret(out io.Writer, in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	mgr, err := credentialManager()
	if err != nil {
		return err
	}
	if err := mgr.Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed credentials for %s\n", args[0])
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	mgr, err := credentialManager()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stores: %s\n", strings.Join(mgr.Stores(), ", "))

	list := mgr.List()
	if len(list) == 0 {
		fmt.Fprintln(out, "No stored accounts; requests run anonymously")
		return nil
	}
	for i, c := range list {
		m := c.Masked()
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  sessionid=%s  csrftoken=%s", marker, m.Username, m.SessionID, m.CSRFToken)
		if !m.SavedAt.IsZero() {
			fmt.Fprintf(out, "  saved %s", m.SavedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(out)
	}
	return nil
}
