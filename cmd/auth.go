package cmd

import (
	"fmt"

	"github.com/octofacehub/octoface/internal/core"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage GitHub authentication",
	Long: `Log in to GitHub with the device flow, inspect the current
credential, or remove the stored one.

The token granted by login is stored in the OS keyring. Environment
variables (GITHUB_API_TOKEN, GITHUB_TOKEN, GH_TOKEN) and the gh CLI are
still honored and take precedence; see 'octoface --help'.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to GitHub via the device flow",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active GitHub credential",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored GitHub token",
	RunE:  runAuthLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)

	authStatusCmd.Flags().String("token", "", "GitHub token (default: auto-detect)")
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	flow := core.NewOAuthFlow(nil)

	flow.OnDeviceCode(func(code, verificationURL string) {
		printf("First, copy your one-time code: %s\n", code)
		printf("Then open %s and paste it.\n\n", verificationURL)
	})

	result, err := flow.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := core.StoreToken(result.Token); err != nil {
		return fmt.Errorf("logged in as %s, but storing the token failed: %w", result.Username, err)
	}

	printf("Logged in as %s; token stored in the system keyring.\n", result.Username)

	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	flagToken, _ := cmd.Flags().GetString("token")

	token, source, err := core.ResolveToken(flagToken)
	if err != nil {
		return err
	}

	valid, login, err := core.ValidateToken(cmd.Context(), token)
	if err != nil {
		return err
	}

	if !valid {
		return fmt.Errorf("the token from %s was rejected by GitHub; run octoface auth login", source)
	}

	printf("Logged in as %s (token source: %s)\n", login, source)

	return nil
}

func runAuthLogout(_ *cobra.Command, _ []string) error {
	if err := core.DeleteStoredToken(); err != nil {
		return err
	}

	printf("Stored token removed.\n")
	printf("Tokens from environment variables or the gh CLI, if any, remain active.\n")

	return nil
}
