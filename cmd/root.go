package cmd

import (
	"os"

	"github.com/octofacehub/octoface/internal/application"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   application.AppName,
	Short: "Publish ML models to the OctoFaceHub registry",
	Long: `OctoFace publishes machine-learning models to the OctoFaceHub
community registry. Model payloads are stored on IPFS via web3.storage;
metadata lands in the registry repository on GitHub through an automated
fork-branch-PR workflow, so contributing never requires manual Git work.

Authentication:
  Uses a GitHub token from (in priority order):
  1. --token flag
  2. GITHUB_API_TOKEN environment variable
  3. GITHUB_TOKEN / GH_TOKEN environment variables
  4. octoface auth login (OS keyring)
  5. gh CLI authentication`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}
