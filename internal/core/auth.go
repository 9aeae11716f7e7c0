package core

import (
	"errors"
	"os"

	"github.com/cli/go-gh/v2/pkg/auth"
)

// TokenSource indicates where the token was found.
type TokenSource string

const (
	TokenSourceFlag      TokenSource = "flag"
	TokenSourceEnvAPI    TokenSource = "GITHUB_API_TOKEN"
	TokenSourceEnvGitHub TokenSource = "GITHUB_TOKEN"
	TokenSourceEnvGH     TokenSource = "GH_TOKEN"
	TokenSourceKeyring   TokenSource = "keyring"
	TokenSourceGHCLI     TokenSource = "gh-cli"
	TokenSourceNone      TokenSource = "none"
)

// ErrNoToken is returned when no credential could be found anywhere in
// the resolution chain.
var ErrNoToken = errors.New("no GitHub token found")

const tokenHelp = `GitHub token required

Provide a token via one of:
  * octoface auth login        (recommended - device flow, stored in your keyring)
  * gh auth login              (auto-detected from the gh CLI)
  * GITHUB_API_TOKEN env var
  * GITHUB_TOKEN / GH_TOKEN env vars
  * --token flag

Create a token at: https://github.com/settings/tokens (scope: repo)`

// ResolveToken attempts to find a GitHub token from multiple sources.
// Priority order:
//  1. flagToken (explicit --token flag)
//  2. GITHUB_API_TOKEN environment variable
//  3. GITHUB_TOKEN environment variable
//  4. GH_TOKEN environment variable
//  5. OS keyring entry written by `octoface auth login`
//  6. gh CLI auth (config file / keyring)
//
// When nothing is found the error is an *AuthError wrapping ErrNoToken,
// carrying setup instructions.
func ResolveToken(flagToken string) (token string, source TokenSource, err error) {
	if flagToken != "" {
		return flagToken, TokenSourceFlag, nil
	}

	if token = os.Getenv("GITHUB_API_TOKEN"); token != "" {
		return token, TokenSourceEnvAPI, nil
	}

	if token = os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, TokenSourceEnvGitHub, nil
	}

	if token = os.Getenv("GH_TOKEN"); token != "" {
		return token, TokenSourceEnvGH, nil
	}

	if token, err = GetStoredToken(); err == nil && token != "" {
		return token, TokenSourceKeyring, nil
	}

	if token, _ = auth.TokenForHost("github.com"); token != "" {
		return token, TokenSourceGHCLI, nil
	}

	return "", TokenSourceNone, &AuthError{Reason: tokenHelp, Err: ErrNoToken}
}
