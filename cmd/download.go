package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/octofacehub/octoface/internal/hf"
	"github.com/octofacehub/octoface/internal/ipfs"
	"github.com/octofacehub/octoface/internal/model"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <ref>",
	Short: "Download a model from HuggingFace or IPFS",
	Long: `Download a model locally.

The reference is either a HuggingFace model (hf://org/name or org/name),
fetched file-by-file from the hub, or a bare content identifier, fetched
from the public IPFS gateway.

Examples:
  octoface download hf://google/gemma-3-4b-it
  octoface download bafybeib... --output ./models`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("output", "o", ".", "Output directory")
}

func runDownload(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := newLogger(false, verbose)
	ctx := cmd.Context()
	ref := args[0]

	if model.ValidCID(ref) {
		dest := filepath.Join(output, ref)

		printf("Fetching %s from the IPFS gateway...\n", ref)

		if err := ipfs.NewClient(logger).GetToFile(ctx, ref, dest); err != nil {
			return err
		}

		printf("Saved to %s\n", dest)

		return nil
	}

	hfRef, ok := hf.ParseRef(ref)
	if !ok {
		return fmt.Errorf("%q is neither a content identifier nor a HuggingFace ref (hf://org/name)", ref)
	}

	printf("Downloading %s from HuggingFace...\n", hfRef.ID())

	dir, err := hf.NewClient(logger).Download(ctx, hfRef, output)
	if err != nil {
		return err
	}

	printf("Saved to %s\n", dir)

	return nil
}
