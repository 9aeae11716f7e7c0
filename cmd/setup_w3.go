package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/octofacehub/octoface/internal/ipfs"
	"github.com/spf13/cobra"
)

var setupW3Cmd = &cobra.Command{
	Use:   "setup-w3",
	Short: "Set up web3.storage credentials for uploads",
	Long: `Walk through the one-time web3.storage setup the w3 CLI needs:
log in with an email address (w3 mails a verification link) and create
the storage space uploads go to.

Logging in is asynchronous: after clicking the link in the email, run
this command again to finish creating the space.

Examples:
  octoface setup-w3 --email you@example.com`,
	RunE: runSetupW3,
}

func init() {
	rootCmd.AddCommand(setupW3Cmd)

	setupW3Cmd.Flags().String("email", "", "Email address for the w3 login verification link")
}

func runSetupW3(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := newLogger(false, verbose)
	ctx := cmd.Context()

	client := ipfs.NewClient(logger)

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	if !status.LoggedIn {
		if email == "" && isInteractive() {
			prompt := &survey.Input{
				Message: "Email address for web3.storage login:",
			}
			if err := survey.AskOne(prompt, &email); err != nil {
				return err
			}
		}

		if email == "" {
			return fmt.Errorf("not logged in to web3.storage; re-run with --email you@example.com")
		}

		if err := client.Login(ctx, email); err != nil {
			return err
		}

		printf("Verification link sent to %s.\n", email)
		printf("Click it, then run `octoface setup-w3` again to create the storage space.\n")

		return nil
	}

	if status.HasSpace {
		printf("web3.storage is already set up; uploads are ready to go.\n")

		return nil
	}

	printf("Logged in, but no storage space exists yet. Creating %q...\n", ipfs.DefaultSpace)

	if err := client.EnsureSpace(ctx, ipfs.DefaultSpace); err != nil {
		return err
	}

	printf("Storage space ready. Try `octoface upload ./my-model` next.\n")

	return nil
}
