package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cli/oauth"
	"github.com/google/go-github/v67/github"
)

// OAuthResult contains the result of a device-flow login.
type OAuthResult struct {
	Token    string
	Username string
	Scopes   []string
}

// OAuthFlow handles the GitHub OAuth device flow used by `auth login`.
type OAuthFlow struct {
	scopes       []string
	onDeviceCode func(code, verificationURL string)
}

// NewOAuthFlow creates a device flow requesting the given scopes. The
// submission workflow needs `repo` (forks, branches, PRs) and nothing
// else.
func NewOAuthFlow(scopes []string) *OAuthFlow {
	if len(scopes) == 0 {
		scopes = []string{"repo"}
	}

	return &OAuthFlow{scopes: scopes}
}

// OnDeviceCode sets the callback invoked with the one-time code the user
// must enter at the verification URL.
func (f *OAuthFlow) OnDeviceCode(callback func(code, verificationURL string)) {
	f.onDeviceCode = callback
}

// Run executes the device flow and returns the granted token together
// with the login it belongs to.
func (f *OAuthFlow) Run(ctx context.Context) (*OAuthResult, error) {
	host, err := oauth.NewGitHubHost("https://github.com")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub host: %w", err)
	}

	flow := &oauth.Flow{
		Host:   host,
		Scopes: f.scopes,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	if f.onDeviceCode != nil {
		flow.DisplayCode = func(code, verificationURL string) error {
			f.onDeviceCode(code, verificationURL)

			return nil
		}
	}

	accessToken, err := flow.DetectFlow()
	if err != nil {
		return nil, fmt.Errorf("OAuth flow failed: %w", err)
	}

	user, _, err := github.NewClient(nil).WithAuthToken(accessToken.Token).Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get user for new token: %w", err)
	}

	return &OAuthResult{
		Token:    accessToken.Token,
		Username: user.GetLogin(),
		Scopes:   f.scopes,
	}, nil
}

// ValidateToken checks whether a token is still accepted by the API,
// returning the login it authenticates as.
func ValidateToken(ctx context.Context, token string) (bool, string, error) {
	user, resp, err := github.NewClient(nil).WithAuthToken(token).Users.Get(ctx, "")
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, "", nil
		}

		return false, "", fmt.Errorf("token validation failed: %w", err)
	}

	return true, user.GetLogin(), nil
}
