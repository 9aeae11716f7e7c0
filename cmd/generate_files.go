package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/octofacehub/octoface/internal/core"
	"github.com/octofacehub/octoface/internal/encoding"
	"github.com/octofacehub/octoface/internal/model"
	"github.com/spf13/cobra"
)

var generateFilesCmd = &cobra.Command{
	Use:   "generate-files",
	Short: "Generate registry files without opening a pull request",
	Long: `Generate the exact file set a submission would commit, plus a
GUIDE.md with manual contribution steps, into a local directory.

Use --cid when the model is already on IPFS; use --path to upload a
local directory first and generate files for the resulting CID.

Examples:
  octoface generate-files --cid bafybeib... --name my-model
  octoface generate-files --path ./my-model --output ./out`,
	RunE: runGenerateFiles,
}

// GenerateFlags is the typed form of the generate-files options.
type GenerateFlags struct {
	CommonFlags

	Path        string
	CID         string
	Name        string
	Description string
	Tags        []string
	Output      string
}

func init() {
	rootCmd.AddCommand(generateFilesCmd)

	addCommonFlags(generateFilesCmd.Flags())
	generateFilesCmd.Flags().String("path", "", "Local model directory (uploaded to IPFS first)")
	generateFilesCmd.Flags().String("cid", "", "Existing content identifier")
	generateFilesCmd.Flags().String("name", "", "Model name (default: directory name)")
	generateFilesCmd.Flags().String("description", "", "Model description")
	generateFilesCmd.Flags().String("tags", "", "Comma-separated tags")
	generateFilesCmd.Flags().StringP("output", "o", "./octoface-output", "Output directory")
}

func extractGenerateFlags(cmd *cobra.Command) (GenerateFlags, error) {
	common, err := extractCommonFlags(cmd)
	if err != nil {
		return GenerateFlags{}, err
	}

	path, _ := cmd.Flags().GetString("path")
	cid, _ := cmd.Flags().GetString("cid")
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	output, _ := cmd.Flags().GetString("output")

	flags := GenerateFlags{
		CommonFlags: common,
		Path:        path,
		CID:         cid,
		Name:        name,
		Description: description,
		Tags:        splitTags(tags),
		Output:      output,
	}

	if flags.Path == "" && flags.CID == "" {
		return GenerateFlags{}, fmt.Errorf("one of --path or --cid is required")
	}

	if flags.Name == "" {
		if flags.Path == "" {
			return GenerateFlags{}, fmt.Errorf("--name is required with --cid")
		}

		abs, err := filepath.Abs(flags.Path)
		if err != nil {
			return GenerateFlags{}, err
		}

		flags.Name = filepath.Base(abs)
	}

	return flags, nil
}

func runGenerateFiles(cmd *cobra.Command, _ []string) error {
	flags, err := extractGenerateFlags(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(flags.JSON, flags.Verbose)
	ctx := cmd.Context()

	cid := flags.CID
	if cid == "" {
		cid, err = uploadWithCache(ctx, flags.Path, logger)
		if err != nil {
			return err
		}

		printf("Content stored: %s\n", core.GatewayURL(cid))
	}

	// The file set needs the owner; resolve it from whatever credential
	// is available.
	token, _, err := core.ResolveToken(flags.Token)
	if err != nil {
		return fmt.Errorf("generate-files needs a GitHub token to determine the owner login: %w", err)
	}

	valid, login, err := core.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	if !valid {
		return fmt.Errorf("the GitHub token was rejected; run octoface auth login")
	}

	meta := model.NewMetadata(flags.Name, flags.Description, flags.Tags, cid, login)

	fileSet, err := core.BuildFileSet(meta)
	if err != nil {
		return err
	}

	for _, p := range fileSet.Paths() {
		dest := filepath.Join(flags.Output, filepath.FromSlash(p))
		if err := encoding.WriteFile(dest, fileSet[p], 0o644); err != nil {
			return err
		}

		printf("Wrote %s\n", dest)
	}

	guide, err := core.RenderContributionGuide(meta, flags.Registry)
	if err != nil {
		return err
	}

	guidePath := filepath.Join(flags.Output, "GUIDE.md")
	if err := encoding.WriteFile(guidePath, []byte(guide), 0o644); err != nil {
		return err
	}

	printf("Wrote %s\n", guidePath)
	printf("\nFollow %s to open the pull request manually, or run:\n  octoface upload %s\n",
		guidePath, strings.TrimSpace(flags.Path+" "+flags.CID))

	return nil
}
