package core

import (
	"context"

	"github.com/google/go-github/v67/github"
	"golang.org/x/oauth2"
)

// NewGitHubClient creates a new authenticated GitHub client using the provided token.
// This is the standard way to create GitHub API clients throughout the codebase.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return github.NewClient(tc)
}
