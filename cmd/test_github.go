package cmd

import (
	"github.com/octofacehub/octoface/internal/core"
	"github.com/spf13/cobra"
)

var testGitHubCmd = &cobra.Command{
	Use:   "test-github",
	Short: "Diagnose GitHub access for submissions",
	Long: `Check that the resolved GitHub credential can drive a submission:
who it authenticates as, whether the registry is reachable, whether the
login has direct write access, and whether a fork already exists.

Examples:
  octoface test-github
  octoface test-github --token ghp_... --json`,
	RunE: runTestGitHub,
}

func init() {
	rootCmd.AddCommand(testGitHubCmd)
	addCommonFlags(testGitHubCmd.Flags())
}

func runTestGitHub(cmd *cobra.Command, _ []string) error {
	flags, err := extractCommonFlags(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(flags.JSON, flags.Verbose)
	ctx := cmd.Context()

	token, source, err := core.ResolveToken(flags.Token)
	if err != nil {
		return err
	}

	sub, err := core.NewSubmissionContext(ctx, core.NewGitHubClient(ctx, token), flags.Registry, logger)
	if err != nil {
		return err
	}

	diag, err := core.Diagnose(ctx, sub, source)
	if err != nil {
		return err
	}

	if flags.JSON {
		return outputJSON(diag)
	}

	printf("GitHub access check\n")
	printf("  Login:          %s\n", diag.Login)
	printf("  Token source:   %s\n", diag.TokenSource)
	printf("  Registry:       %s\n", diag.Registry)
	printf("  Reachable:      %v\n", diag.RegistryReachable)

	if diag.RegistryReachable {
		printf("  Default branch: %s\n", diag.DefaultBranch)
	}

	printf("  Write access:   %v\n", diag.HasWriteAccess)
	printf("  Fork exists:    %v\n", diag.ForkExists)

	if diag.ForkExists {
		printf("  Fork:           %s\n", diag.ForkRepo)
	}

	if !diag.HasWriteAccess && !diag.ForkExists {
		printf("\nSubmissions will create a fork of %s automatically.\n", diag.Registry)
	}

	return nil
}
