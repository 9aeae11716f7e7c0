package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v67/github"
)

// Identity is the acting user's GitHub login and their relationship to
// the registry repository.
type Identity struct {
	Login          string
	HasWriteAccess bool
}

// Permission levels that allow pushing branches to the registry itself.
var writePermissions = map[string]bool{
	"admin":    true,
	"write":    true,
	"maintain": true,
}

// ResolveIdentity determines who the credential belongs to and whether
// that login can push to the registry directly.
//
// A rejected or missing credential surfaces as *AuthError. A permission
// probe answered with 403 (insufficient token scope) is ambiguous: it
// degrades to hasWriteAccess=false with a warning instead of aborting,
// since the fork path works for everyone. 404 means "no relationship",
// which is simply no write access. Transient failures are retried with
// bounded backoff before escalating.
func ResolveIdentity(ctx context.Context, client *github.Client, reg Registry, logger *slog.Logger) (Identity, error) {
	if logger == nil {
		logger = slog.Default()
	}

	login, err := resolveLogin(ctx, client, logger)
	if err != nil {
		return Identity{}, err
	}

	hasWrite, err := resolveWriteAccess(ctx, client, reg, login, logger)
	if err != nil {
		var permErr *PermissionCheckError
		if !errors.As(err, &permErr) {
			return Identity{}, err
		}

		logger.Warn("write-access check inconclusive, assuming no write access",
			slog.String("login", login),
			slog.String("error", err.Error()),
		)

		hasWrite = false
	}

	logger.Debug("identity resolved",
		slog.String("login", login),
		slog.Bool("write_access", hasWrite),
	)

	return Identity{Login: login, HasWriteAccess: hasWrite}, nil
}

func resolveLogin(ctx context.Context, client *github.Client, logger *slog.Logger) (string, error) {
	var user *github.User

	err := retryWithBackoff(ctx, logger, "get user", func() (*github.Response, error) {
		var resp *github.Response

		var err error

		user, resp, err = client.Users.Get(ctx, "")

		return resp, err
	})
	if err != nil {
		if code := statusCode(nil, err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return "", &AuthError{Reason: "token rejected by GitHub", Err: err}
		}

		return "", err
	}

	login := user.GetLogin()
	if login == "" {
		return "", &AuthError{Reason: "GitHub returned no login for this token"}
	}

	return login, nil
}

func resolveWriteAccess(ctx context.Context, client *github.Client, reg Registry, login string, logger *slog.Logger) (bool, error) {
	var level *github.RepositoryPermissionLevel

	err := retryWithBackoff(ctx, logger, "check collaborator permission", func() (*github.Response, error) {
		var resp *github.Response

		var err error

		level, resp, err = client.Repositories.GetPermissionLevel(ctx, reg.Owner, reg.Name, login)

		return resp, err
	})
	if err != nil {
		switch statusCode(nil, err) {
		case http.StatusNotFound:
			// No collaborator relationship at all.
			return false, nil
		case http.StatusForbidden:
			return false, &PermissionCheckError{Login: login, Err: err}
		}

		return false, err
	}

	return writePermissions[level.GetPermission()], nil
}
