package core

import (
	"context"
	"log/slog"
	"net/http"
)

// Diagnosis is the report produced by `octoface test-github`: everything
// a contributor needs to know about whether their credential can drive a
// submission.
type Diagnosis struct {
	Login             string `json:"login"`
	TokenSource       string `json:"token_source"`
	Registry          string `json:"registry"`
	RegistryReachable bool   `json:"registry_reachable"`
	DefaultBranch     string `json:"default_branch"`
	HasWriteAccess    bool   `json:"has_write_access"`
	ForkExists        bool   `json:"fork_exists"`
	ForkRepo          string `json:"fork_repo,omitempty"`
}

// Diagnose probes the credential against the registry: identity,
// reachability, write access and fork presence. Partial failures are
// reported in the result rather than aborting, so the command can print
// a full picture.
func Diagnose(ctx context.Context, sub *SubmissionContext, source TokenSource) (*Diagnosis, error) {
	d := &Diagnosis{
		Login:          sub.Login,
		TokenSource:    string(source),
		Registry:       sub.Registry.String(),
		HasWriteAccess: sub.HasWriteAccess,
	}

	repo, _, err := sub.Client.Repositories.Get(ctx, sub.Registry.Owner, sub.Registry.Name)
	if err != nil {
		if code := statusCode(nil, err); code != http.StatusNotFound && code != http.StatusForbidden {
			return nil, err
		}

		sub.Logger.Warn("registry not reachable with this credential",
			slog.String("registry", sub.Registry.String()),
			slog.String("error", err.Error()),
		)

		return d, nil
	}

	d.RegistryReachable = true
	d.DefaultBranch = repo.GetDefaultBranch()

	exists, err := ForkExists(ctx, sub)
	if err != nil {
		sub.Logger.Warn("fork probe failed", slog.String("error", err.Error()))

		return d, nil
	}

	d.ForkExists = exists
	if exists {
		d.ForkRepo = sub.Login + "/" + sub.Registry.Name
	}

	return d, nil
}
