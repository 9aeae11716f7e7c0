package cmd

import (
	"context"
	"fmt"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-github/v67/github"
	"github.com/octofacehub/octoface/internal/cli"
	"github.com/octofacehub/octoface/internal/core"
	"github.com/octofacehub/octoface/internal/model"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the model registry interactively",
	Long: `Fetch the registry index and browse it in an interactive list.
Filter by typing; enter shows a model's metadata, gateway URL and the
w3 download command.

The registry is public, so browsing works without a credential; one is
used when available to avoid rate limits.`,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
	addCommonFlags(browseCmd.Flags())
}

func runBrowse(cmd *cobra.Command, _ []string) error {
	flags, err := extractCommonFlags(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client := github.NewClient(nil)
	if token, _, err := core.ResolveToken(flags.Token); err == nil {
		client = core.NewGitHubClient(ctx, token)
	}

	idx, err := fetchIndex(ctx, client, flags.Registry)
	if err != nil {
		return err
	}

	if len(idx) == 0 {
		printf("The registry has no models yet.\n")

		return nil
	}

	browse := cli.NewBrowse(idx, core.GatewayURL)

	_, err = tea.NewProgram(browse, tea.WithAltScreen()).Run()

	return err
}

func fetchIndex(ctx context.Context, client *github.Client, reg core.Registry) (model.Index, error) {
	file, _, resp, err := client.Repositories.GetContents(ctx, reg.Owner, reg.Name, model.IndexFileName,
		&github.RepositoryContentGetOptions{Ref: reg.Branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return model.Index{}, nil
		}

		return nil, fmt.Errorf("fetch %s from %s: %w", model.IndexFileName, reg, err)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", model.IndexFileName, err)
	}

	return model.ParseIndex([]byte(content))
}
