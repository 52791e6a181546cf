package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igpull/pkg/auth"
	"igpull/pkg/ui"
)

// stdin is replaced in tests
var stdin io.Reader = os.Stdin

func newAuthCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored cookie sessions",
		Long: `Manage logged-in Instagram sessions exported from a browser.

Sessions are stored in the system keychain when one is available, and in
an encrypted file otherwise. $IGPULL_COOKIES may also name a cookies file
to use as the default session.

The cookies give full access to the account. Never share them.`,
	}

	var account, userAgent string
	importCmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Store a cookies.txt exported from a logged-in browser",
		Long: `Store a Netscape format cookies.txt under a name.

The file is read from FILE, or from standard input when it is piped.
Run without input to see how to export the cookies.`,
		Example: `  igpull auth import cookies.txt --account main
  pbpaste | igpull auth import --account main`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthImport(g, args, account, userAgent)
		},
	}
	importCmd.Flags().StringVar(&account, "account", "", "name to store the session under")
	importCmd.Flags().StringVar(&userAgent, "user-agent", "", "user agent of the browser the cookies came from")
	_ = importCmd.MarkFlagRequired("account")

	var exportDir string
	exportCmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write a stored session back to a cookies.txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthExport(g, args[0], exportDir)
		},
	}
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "directory to write <NAME>.cookies.txt into")

	cmd.AddCommand(importCmd)
	cmd.AddCommand(exportCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthList(g)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a stored session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthRemove(g, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "guide",
		Short: "Explain how to export browser cookies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			auth.WriteCookieExportGuide(g.out)
		},
	})
	return cmd
}

// readCookieInput returns the cookie text from path, or from stdin when it
// is not a terminal
func readCookieInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read cookies: %w", err)
		}
		return string(data), nil
	}

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) && len(args) == 0 {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read cookies from stdin: %w", err)
	}
	return string(data), nil
}

func runAuthImport(g *globalOptions, args []string, name, userAgent string) error {
	text, err := readCookieInput(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		auth.WriteCookieExportGuide(g.out)
		return errors.New("no cookies given")
	}

	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	account := &auth.Account{Username: name, Cookies: text, UserAgent: userAgent}
	if err := manager.Store(account); err != nil {
		return err
	}

	console := ui.NewConsole(g.out, g.noColor, false)
	console.Success(fmt.Sprintf("Stored session %q", name))
	console.Info("Cookies", strings.Join(auth.CookieNames(account), ", "))
	console.Dim(fmt.Sprintf("Use it with: igpull <username> --account %s", name))
	return nil
}

func runAuthExport(g *globalOptions, name, dir string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	account, err := manager.Retrieve(name)
	if err != nil {
		return err
	}
	path, err := account.WriteCookiesFile(dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out, path)
	return nil
}

func runAuthList(g *globalOptions) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}

	console := ui.NewConsole(g.out, g.noColor, false)
	if len(accounts) == 0 {
		console.Dim("No stored sessions. Run 'igpull auth guide' to get started.")
		return nil
	}

	for _, account := range accounts {
		console.Highlight(account.Username)
		console.Info("  Cookies", strings.Join(auth.CookieNames(account), ", "))
		if account.UserAgent != "" {
			console.Info("  User agent", account.UserAgent)
		}
		console.Info("  Stored", account.LastModified.Format(time.DateTime))
	}
	return nil
}

func runAuthRemove(g *globalOptions, name string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.NewConsole(g.out, g.noColor, false).Success(fmt.Sprintf("Removed session %q", name))
	return nil
}
