package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/octofacehub/octoface/internal/application"
	"github.com/octofacehub/octoface/internal/core"
	"github.com/octofacehub/octoface/internal/encoding"
	"github.com/octofacehub/octoface/internal/hf"
	"github.com/octofacehub/octoface/internal/ipfs"
	"github.com/octofacehub/octoface/internal/model"
	"github.com/octofacehub/octoface/internal/security"
	"github.com/octofacehub/octoface/internal/store"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path|hf-ref>",
	Short: "Upload a model and submit it to the registry",
	Long: `Upload a model to IPFS and open a registry pull request for it.

The argument is a local directory, or a HuggingFace reference
(hf://org/name or org/name) which is downloaded first. The directory is
scanned for secrets, uploaded via the w3 CLI (skipped when an identical
upload is cached), and then submitted: fork and branch are ensured,
metadata and the shared index are committed atomically, and a pull
request is opened against the registry.

Re-running the same upload is safe: completed steps are detected and
skipped, and an already-open pull request is updated, never duplicated.

Examples:
  octoface upload ./my-model --tags llm,chat
  octoface upload hf://google/gemma-3-4b-it --yes
  octoface upload ./my-model --name my-model-v2 --description "..."`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

// UploadFlags is the typed form of the upload command's options.
type UploadFlags struct {
	CommonFlags

	Name        string
	Description string
	Tags        []string
	SkipScan    bool
	Yes         bool
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	addCommonFlags(uploadCmd.Flags())
	uploadCmd.Flags().String("name", "", "Model name (default: directory or ref name)")
	uploadCmd.Flags().String("description", "", "Model description")
	uploadCmd.Flags().String("tags", "", "Comma-separated tags")
	uploadCmd.Flags().Bool("skip-scan", false, "Skip the pre-upload secret scan")
	uploadCmd.Flags().BoolP("yes", "y", false, "Skip prompts and confirmation")
}

func extractUploadFlags(cmd *cobra.Command) (UploadFlags, error) {
	common, err := extractCommonFlags(cmd)
	if err != nil {
		return UploadFlags{}, err
	}

	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	skipScan, _ := cmd.Flags().GetBool("skip-scan")
	yes, _ := cmd.Flags().GetBool("yes")

	return UploadFlags{
		CommonFlags: common,
		Name:        name,
		Description: description,
		Tags:        splitTags(tags),
		SkipScan:    skipScan,
		Yes:         yes,
	}, nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	flags, err := extractUploadFlags(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(flags.JSON, flags.Verbose)
	ctx := cmd.Context()

	modelDir, defaultName, cleanup, err := resolveUploadSource(ctx, args[0], logger)
	if err != nil {
		return err
	}

	if cleanup != nil {
		defer cleanup()
	}

	if flags.Name == "" {
		flags.Name = defaultName
	}

	// A metadata.json left by an earlier generate-files run (or a prior
	// upload of the same directory) prefills whatever the flags left out.
	if prior, err := encoding.LoadJSON[model.Metadata](filepath.Join(modelDir, "metadata.json")); err == nil && prior != nil {
		if flags.Description == "" {
			flags.Description = prior.Description
		}

		if len(flags.Tags) == 0 {
			flags.Tags = prior.Tags
		}
	}

	if !flags.SkipScan {
		if err := scanForSecrets(ctx, modelDir); err != nil {
			return err
		}
	}

	if !flags.Yes && isInteractive() {
		if err := promptMissingMetadata(&flags); err != nil {
			return err
		}
	}

	cid, err := uploadWithCache(ctx, modelDir, logger)
	if err != nil {
		return err
	}

	printf("Content stored: %s\n", core.GatewayURL(cid))

	meta := model.NewMetadata(flags.Name, flags.Description, flags.Tags, cid, "")
	// Owner is filled in by the workflow from the authenticated login.

	if !flags.Yes && isInteractive() {
		ok, err := confirmSubmission(meta, flags.Registry)
		if err != nil {
			return err
		}

		if !ok {
			printf("Cancelled.\n")

			return nil
		}
	}

	client, _, err := githubClient(cmd, flags.Token)
	if err != nil {
		return err
	}

	result, err := core.Submit(ctx, client, flags.Registry, meta, core.SubmitOptions{Logger: logger})
	if err != nil {
		return err
	}

	return reportSubmitResult(result, flags.JSON)
}

// resolveUploadSource turns the upload argument into a local directory,
// downloading from HuggingFace when the argument is a hub ref.
func resolveUploadSource(ctx context.Context, arg string, logger *slog.Logger) (dir, defaultName string, cleanup func(), err error) {
	if encoding.DirExists(arg) {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", "", nil, err
		}

		return abs, filepath.Base(abs), nil, nil
	}

	ref, ok := hf.ParseRef(arg)
	if !ok {
		return "", "", nil, fmt.Errorf("%q is neither a local directory nor a HuggingFace ref (hf://org/name)", arg)
	}

	tmp, err := os.MkdirTemp("", "octoface-hf-*")
	if err != nil {
		return "", "", nil, err
	}

	printf("Downloading %s from HuggingFace...\n", ref.ID())

	hfClient := hf.NewClient(logger)

	modelDir, err := hfClient.Download(ctx, ref, tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)

		return "", "", nil, err
	}

	return modelDir, ref.Name, func() { _ = os.RemoveAll(tmp) }, nil
}

func scanForSecrets(ctx context.Context, dir string) error {
	scanner, err := security.NewLeakScanner()
	if err != nil {
		return fmt.Errorf("failed to initialize secret scanner: %w", err)
	}

	_ = scanner.LoadGitleaksIgnore(dir)

	result, err := scanner.ScanDirectory(ctx, dir)
	if err != nil {
		return fmt.Errorf("secret scan failed: %w", err)
	}

	if result.HasLeaks {
		printf("%s", security.FormatFindings(result.Findings))

		return fmt.Errorf("refusing to publish %s: %d potential secret(s) found (use --skip-scan to override)",
			dir, len(result.Findings))
	}

	return nil
}

func promptMissingMetadata(flags *UploadFlags) error {
	if flags.Description == "" {
		prompt := &survey.Input{
			Message: "Description (optional):",
		}
		if err := survey.AskOne(prompt, &flags.Description); err != nil {
			return err
		}
	}

	if len(flags.Tags) == 0 {
		var raw string

		prompt := &survey.Input{
			Message: "Tags (comma-separated, optional):",
		}
		if err := survey.AskOne(prompt, &raw); err != nil {
			return err
		}

		flags.Tags = splitTags(raw)
	}

	return nil
}

func confirmSubmission(meta model.Metadata, reg core.Registry) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Submit %q to %s?", meta.Name, reg),
		Default: true,
	}

	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}

	return ok, nil
}

// uploadWithCache puts the directory on IPFS, consulting the local
// digest cache first so interrupted submissions resume without paying
// for the upload again.
func uploadWithCache(ctx context.Context, dir string, logger *slog.Logger) (string, error) {
	digest, err := store.DigestDir(dir)
	if err != nil {
		return "", err
	}

	cacheDir, err := application.GetApplicationDirectory()
	if err != nil {
		return "", err
	}

	cache, err := store.Open(cacheDir)
	if err != nil {
		return "", err
	}
	defer func() { _ = cache.Close() }()

	if cid, err := cache.Lookup(digest); err == nil && cid != "" {
		printf("Reusing cached upload (content unchanged): %s\n", cid)

		return cid, nil
	}

	cid, err := ipfs.NewClient(logger).Put(ctx, dir)
	if err != nil {
		return "", err
	}

	if err := cache.Record(digest, cid, dir); err != nil {
		return "", err
	}

	return cid, nil
}

func reportSubmitResult(result *core.SubmitResult, jsonOut bool) error {
	if jsonOut {
		return outputJSON(result)
	}

	switch {
	case result.AlreadyCurrent:
		printf("Registry already up to date; nothing to submit.\n")
	case result.Updated:
		printf("Updated existing pull request: %s\n", result.PR.URL)
	default:
		printf("Opened pull request: %s\n", result.PR.URL)
	}

	return nil
}
