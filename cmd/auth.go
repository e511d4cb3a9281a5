package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		account string
		code    string
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a Google account for Gmail and Tasks access",
		Long: `Print the Google authorization URL for an account, then exchange the
authorization code for a token and store it.

After approving access the browser is redirected to http://localhost; copy
the code parameter from the address bar. Pass it with --code or paste it when
prompted.

Requires GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			if err := config.LoadDotEnv(files...); err != nil {
				return err
			}
			return runAuth(cmd, account, code)
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Google account name the token is stored under")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (prompted for when empty)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: ./.env if present)")

	return cmd
}

func runAuth(cmd *cobra.Command, account, code string) error {
	out := cmd.OutOrStdout()

	if code == "" {
		if google.HasTokenForAccount(account) {
			fmt.Fprintf(out, "Account %q is already authorized; continuing replaces its token.\n\n", account)
		}
		fmt.Fprintf(out, "Visit this URL to authorize account %q:\n\n%s\n\n", account, google.GetAuthURL(account))
		fmt.Fprint(out, "Authorization code: ")

		var err error
		code, err = readCode(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	if err := google.SaveTokenForAccount(cmd.Context(), account, code); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved for account %q.\n", account)
	return nil
}

// readCode reads one line from r. An empty line is an error.
func readCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("no authorization code given")
	}
	return code, nil
}
