package cmd

import (
	"github.com/octofacehub/octoface/internal/application"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		printf("%s version %s\n", application.AppName, application.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
