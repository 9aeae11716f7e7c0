package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v67/github"
)

// Repo names one repository on the hosting side: either the registry
// itself or a contributor's fork of it.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// EnsureFork makes sure the acting user owns a usable fork of the
// registry, creating one when absent.
//
// Fork creation is asynchronous on GitHub's side: the API answers 202
// and provisions in the background. The fork is considered usable once
// its default branch ref resolves; readiness is polled on a 2s-doubling
// schedule up to the provisioning budget, after which *ForkTimeoutError
// is returned (the fork keeps provisioning, so a re-run resumes here).
//
// Existing forks can trail the registry. Before handing the fork back,
// its default branch is best-effort synced from upstream; a conflict or
// a denied sync degrades to the fork's current tip with a warning.
func EnsureFork(ctx context.Context, sub *SubmissionContext) (Repo, error) {
	exists, err := ForkExists(ctx, sub)
	if err != nil {
		return Repo{}, err
	}

	return ensureForkFrom(ctx, sub, exists)
}

// ensureForkFrom continues EnsureFork after the existence probe, which
// callers may have run concurrently with other read-only checks.
func ensureForkFrom(ctx context.Context, sub *SubmissionContext, exists bool) (Repo, error) {
	fork := Repo{Owner: sub.Login, Name: sub.Registry.Name}

	if !exists {
		sub.Logger.Info("requesting fork", slog.String("fork", fork.String()))

		if err := requestFork(ctx, sub); err != nil {
			return Repo{}, err
		}
	}

	outcome, err := pollUntilReady(ctx, sub.Logger, forkPollSchedule, func(ctx context.Context) (bool, error) {
		return forkBranchReadable(ctx, sub, fork)
	})
	if err != nil {
		return Repo{}, fmt.Errorf("waiting for fork %s: %w", fork, err)
	}

	if outcome == pollTimedOut {
		return Repo{}, &ForkTimeoutError{Owner: fork.Owner, Repo: fork.Name, Waited: forkPollSchedule.budget}
	}

	syncFork(ctx, sub, fork)

	return fork, nil
}

// ForkExists reports whether the acting user already owns a fork of the
// registry. A same-named repository that is not a fork is an error, not
// a usable head.
func ForkExists(ctx context.Context, sub *SubmissionContext) (bool, error) {
	fork := Repo{Owner: sub.Login, Name: sub.Registry.Name}

	var repo *github.Repository

	err := retryWithBackoff(ctx, sub.Logger, "probe fork", func() (*github.Response, error) {
		var resp *github.Response

		var err error

		repo, resp, err = sub.Client.Repositories.Get(ctx, fork.Owner, fork.Name)

		return resp, err
	})
	if err != nil {
		if statusCode(nil, err) == http.StatusNotFound {
			return false, nil
		}

		return false, err
	}

	// A repository with the right name that is not a fork of the
	// registry cannot be used as a submission head.
	if !repo.GetFork() {
		return false, fmt.Errorf("repository %s exists but is not a fork of %s", fork, sub.Registry)
	}

	return true, nil
}

func requestFork(ctx context.Context, sub *SubmissionContext) error {
	_, _, err := sub.Client.Repositories.CreateFork(ctx, sub.Registry.Owner, sub.Registry.Name, nil)
	if err != nil {
		// 202 Accepted is how GitHub says "provisioning started".
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			return nil
		}

		return fmt.Errorf("create fork of %s: %w", sub.Registry, err)
	}

	return nil
}

func forkBranchReadable(ctx context.Context, sub *SubmissionContext, fork Repo) (bool, error) {
	_, _, err := sub.Client.Git.GetRef(ctx, fork.Owner, fork.Name, "heads/"+sub.Registry.Branch)
	if err != nil {
		code := statusCode(nil, err)
		if code == http.StatusNotFound || code == http.StatusConflict {
			// Still provisioning (404 on the repo or ref, 409 on an
			// empty repository).
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// syncFork fast-forwards the fork's default branch from the registry.
// Failure is not fatal: a stale fork still produces a valid PR, GitHub
// computes the diff against the merge base.
func syncFork(ctx context.Context, sub *SubmissionContext, fork Repo) {
	req := &github.RepoMergeUpstreamRequest{
		Branch: github.String(sub.Registry.Branch),
	}

	_, _, err := sub.Client.Repositories.MergeUpstream(ctx, fork.Owner, fork.Name, req)
	if err != nil {
		sub.Logger.Warn("could not sync fork from upstream, continuing with its current tip",
			slog.String("fork", fork.String()),
			slog.String("error", err.Error()),
		)
	}
}

// EnsureBranch makes sure branchName exists on repo, creating it at
// baseSHA when absent. An existing branch is reused as-is so that
// re-submitting the same model keeps appending to the same logical
// change instead of erroring or spawning new branches.
func EnsureBranch(ctx context.Context, sub *SubmissionContext, repo Repo, branchName, baseSHA string) (string, error) {
	ref, _, err := sub.Client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branchName)
	if err == nil {
		sub.Logger.Debug("reusing existing branch",
			slog.String("repo", repo.String()),
			slog.String("branch", branchName),
		)

		return ref.GetObject().GetSHA(), nil
	}

	if statusCode(nil, err) != http.StatusNotFound {
		return "", fmt.Errorf("probe branch %s on %s: %w", branchName, repo, err)
	}

	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branchName),
		Object: &github.GitObject{SHA: github.String(baseSHA)},
	}

	created, _, err := sub.Client.Git.CreateRef(ctx, repo.Owner, repo.Name, newRef)
	if err != nil {
		// Lost a creation race; the branch is there now, fetch and reuse.
		if statusCode(nil, err) == http.StatusUnprocessableEntity {
			ref, _, refErr := sub.Client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branchName)
			if refErr == nil {
				return ref.GetObject().GetSHA(), nil
			}
		}

		return "", fmt.Errorf("create branch %s on %s: %w", branchName, repo, err)
	}

	sub.Logger.Info("branch created",
		slog.String("repo", repo.String()),
		slog.String("branch", branchName),
	)

	return created.GetObject().GetSHA(), nil
}

// branchTip resolves the current commit SHA of a branch.
func branchTip(ctx context.Context, sub *SubmissionContext, repo Repo, branch string) (string, error) {
	ref, _, err := sub.Client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("resolve %s on %s: %w", branch, repo, err)
	}

	return ref.GetObject().GetSHA(), nil
}
