package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-github/v67/github"
	"github.com/octofacehub/octoface/internal/core"
	"github.com/octofacehub/octoface/internal/encoding"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addCommonFlags adds the flags every networked command carries.
func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("token", "", "GitHub token (default: auto-detect)")
	fs.String("registry", "", "Registry repository (owner/repo, default: "+core.DefaultRegistry().String()+")")
	fs.Bool("json", false, "Output as JSON")
}

// CommonFlags holds the flags shared by the networked commands.
type CommonFlags struct {
	Token    string
	Registry core.Registry
	JSON     bool
	Verbose  bool
}

// extractCommonFlags pulls the shared flags out of a command, validating
// the registry override once at the boundary.
func extractCommonFlags(cmd *cobra.Command) (CommonFlags, error) {
	token, _ := cmd.Flags().GetString("token")
	registryStr, _ := cmd.Flags().GetString("registry")
	jsonOut, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	reg, err := core.ParseRegistry(registryStr)
	if err != nil {
		return CommonFlags{}, err
	}

	return CommonFlags{
		Token:    token,
		Registry: reg,
		JSON:     jsonOut,
		Verbose:  verbose,
	}, nil
}

// newLogger creates the logger for a command invocation: text to stderr
// at Warn by default, Debug with --verbose, JSON handler when the
// command's own output is JSON.
func newLogger(jsonOutput, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// githubClient resolves a token and builds the authenticated client.
func githubClient(cmd *cobra.Command, flagToken string) (*github.Client, core.TokenSource, error) {
	token, source, err := core.ResolveToken(flagToken)
	if err != nil {
		return nil, source, err
	}

	return core.NewGitHubClient(cmd.Context(), token), source, nil
}

// outputJSON encodes data as indented JSON to stdout.
func outputJSON(data any) error {
	out, err := encoding.ToJSONIndent(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, string(out))

	return err
}

// splitTags turns a comma-separated flag value into a tag list.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// isInteractive reports whether prompting the user makes sense.
func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}

func printf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, format, args...)
}
