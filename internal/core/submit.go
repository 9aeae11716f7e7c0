package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v67/github"
	"github.com/octofacehub/octoface/internal/model"
)

// Step names the submission state machine's transitions; failures carry
// the step they happened in.
type Step string

const (
	StepIdentity Step = "identity"
	StepRouting  Step = "routing"
	StepBranch   Step = "branch"
	StepStaging  Step = "staging"
	StepMerge    Step = "index-merge"
	StepCommit   Step = "commit"
	StepPR       Step = "pull-request"
)

// SubmissionState tracks one submission attempt. It lives only in this
// process: on a re-run the orchestrator rebuilds it by probing remote
// state, never by trusting anything recorded locally.
type SubmissionState struct {
	HasWriteAccess bool
	TargetRepo     Repo
	BranchName     string
	ForkReady      bool
	FilesStaged    bool
	IndexMerged    bool
	PRURL          string
}

// PullRequestRecord describes the pull request a submission ended in.
type PullRequestRecord struct {
	HeadRepo   Repo
	HeadBranch string
	BaseRepo   Repo
	BaseBranch string
	Title      string
	Body       string
	Number     int
	URL        string
}

// stepError wraps a remote-step failure in a *SubmissionError. When the
// submission budget has run out, the cause is reported as an
// *OperationTimeoutError naming the step and the budget instead of a
// bare context error; a re-run picks up from the interrupted step.
func stepError(ctx context.Context, step Step, err error, resumable bool) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &SubmissionError{
			Step:      step,
			Err:       &OperationTimeoutError{Step: step, Budget: TimeoutLong},
			Resumable: true,
		}
	}

	return &SubmissionError{Step: step, Err: err, Resumable: resumable}
}

// SubmitOptions configures one submission.
type SubmitOptions struct {
	Logger *slog.Logger
}

// SubmitResult is the terminal outcome of a successful submission.
type SubmitResult struct {
	// PR is nil only when AlreadyCurrent is true.
	PR *PullRequestRecord

	// AlreadyCurrent means the registry default branch already carries
	// exactly this metadata; nothing was forked, branched or opened.
	AlreadyCurrent bool

	// Updated means an existing open pull request was refreshed rather
	// than a new one created.
	Updated bool

	State SubmissionState
}

// Submit runs the full submission workflow for one model: resolve
// identity, route through the registry or a fork, stage the file set and
// merged index as one commit, and end with an open pull request.
//
// Every remote mutation is idempotency-checked first, so re-invoking
// Submit with the same metadata resumes from wherever the previous run
// stopped: an existing fork is reused, an existing branch is reused, a
// commit that is already on the branch is skipped, and an open pull
// request is updated instead of duplicated.
func Submit(ctx context.Context, client *github.Client, reg Registry, m model.Metadata, opts SubmitOptions) (*SubmitResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := WithSubmissionTimeout(ctx)
	defer cancel()

	login, err := resolveLogin(ctx, client, logger)
	if err != nil {
		return nil, stepError(ctx, StepIdentity, err, false)
	}

	if m.Owner != "" && m.Owner != strings.ToLower(login) {
		return nil, &SubmissionError{Step: StepIdentity, Err: &model.FieldError{
			Field:  "owner",
			Reason: fmt.Sprintf("%q does not match the authenticated login %q", m.Owner, strings.ToLower(login)),
		}}
	}

	m.Owner = strings.ToLower(login)

	fileSet, err := BuildFileSet(m)
	if err != nil {
		return nil, &SubmissionError{Step: StepStaging, Err: err}
	}

	path, err := model.NewRegistryPath(m.Owner, m.Name)
	if err != nil {
		return nil, &SubmissionError{Step: StepStaging, Err: err}
	}

	sub := &SubmissionContext{Client: client, Registry: reg, Login: login, Logger: logger}

	// The write-access check and the fork probe are commutative
	// read-only lookups; run them side by side.
	var (
		hasWrite   bool
		forkKnown  bool
		writeErr   error
		forkPrbErr error
	)

	done := make(chan struct{}, 2)

	go func() {
		hasWrite, writeErr = resolveWriteAccess(ctx, client, reg, login, logger)
		done <- struct{}{}
	}()

	go func() {
		forkKnown, forkPrbErr = ForkExists(ctx, sub)
		done <- struct{}{}
	}()

	<-done
	<-done

	if writeErr != nil {
		var permErr *PermissionCheckError
		if !errors.As(writeErr, &permErr) {
			return nil, stepError(ctx, StepIdentity, writeErr, true)
		}

		logger.Warn("write-access check inconclusive, routing through a fork",
			slog.String("error", writeErr.Error()),
		)

		hasWrite = false
	}

	sub.HasWriteAccess = hasWrite

	state := SubmissionState{
		HasWriteAccess: hasWrite,
		BranchName:     path.BranchName(),
	}

	logger.Debug("routing decided",
		slog.String("login", login),
		slog.Bool("write_access", hasWrite),
		slog.String("branch", state.BranchName),
	)

	// Fast path: if the registry default branch already carries exactly
	// this submission, there is nothing to fork, commit or open.
	registryRepo := Repo{Owner: reg.Owner, Name: reg.Name}

	prior, current, err := probeRegistry(ctx, sub, registryRepo, path, fileSet, m)
	if err != nil {
		return nil, stepError(ctx, StepRouting, err, true)
	}

	if current {
		logger.Info("registry already up to date, nothing to submit",
			slog.String("model", path.Key()),
		)

		return &SubmitResult{AlreadyCurrent: true, State: state}, nil
	}

	// Routing: direct branch for collaborators, fork for everyone else.
	target := registryRepo

	if !hasWrite {
		if forkPrbErr != nil {
			return nil, stepError(ctx, StepRouting, forkPrbErr, true)
		}

		fork, err := ensureForkFrom(ctx, sub, forkKnown)
		if err != nil {
			return nil, stepError(ctx, StepRouting, err, true)
		}

		target = fork
	}

	state.TargetRepo = target
	state.ForkReady = true

	baseSHA, err := branchTip(ctx, sub, target, reg.Branch)
	if err != nil {
		return nil, stepError(ctx, StepBranch, err, true)
	}

	if _, err := EnsureBranch(ctx, sub, target, state.BranchName, baseSHA); err != nil {
		return nil, stepError(ctx, StepBranch, err, true)
	}

	if err := commitSubmission(ctx, sub, target, state.BranchName, path, fileSet, m, prior, &state); err != nil {
		return nil, err
	}

	record, updated, err := ensurePullRequest(ctx, sub, target, registryRepo, state.BranchName, path, m, prior != nil)
	if err != nil {
		return nil, stepError(ctx, StepPR, err, true)
	}

	state.PRURL = record.URL

	logger.Info("submission complete",
		slog.String("model", path.Key()),
		slog.Int("pr", record.Number),
		slog.Bool("updated", updated),
	)

	return &SubmitResult{PR: record, Updated: updated, State: state}, nil
}

// probeRegistry fetches the registry default branch's view of this model.
// It returns the prior index entry for the key (nil when absent) and
// whether the registry already carries exactly this submission.
func probeRegistry(ctx context.Context, sub *SubmissionContext, registry Repo, path model.RegistryPath, fileSet model.FileSet, m model.Metadata) (*model.IndexEntry, bool, error) {
	blob, _, err := fetchFile(ctx, sub, registry, model.IndexFileName, sub.Registry.Branch)
	if err != nil {
		return nil, false, err
	}

	idx, err := model.ParseIndex(blob)
	if err != nil {
		return nil, false, err
	}

	entry, ok := idx[path.Key()]
	if !ok {
		return nil, false, nil
	}

	prior := entry

	if !entry.Metadata().Equivalent(m) {
		return &prior, false, nil
	}

	match, err := fileSetPresent(ctx, sub, registry, sub.Registry.Branch, fileSet)
	if err != nil {
		return &prior, false, err
	}

	return &prior, match, nil
}

// commitSubmission stages the file set plus the merged index as a single
// commit on the working branch, using refs update with force=false as
// the compare-and-swap. Losing the race re-fetches the tip and re-merges
// against it, up to maxMergeAttempts.
func commitSubmission(ctx context.Context, sub *SubmissionContext, target Repo, branch string, path model.RegistryPath, fileSet model.FileSet, m model.Metadata, prior *model.IndexEntry, state *SubmissionState) error {
	entry := NewIndexEntryNow(m)

	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return stepError(ctx, StepCommit, err, true)
		}

		tipSHA, err := branchTip(ctx, sub, target, branch)
		if err != nil {
			return stepError(ctx, StepCommit, err, true)
		}

		// Re-fetch the index at the tip right before committing to keep
		// the race window as small as it can be.
		blob, _, err := fetchFile(ctx, sub, target, model.IndexFileName, tipSHA)
		if err != nil {
			return stepError(ctx, StepMerge, err, true)
		}

		merged, err := MergeIndex(blob, prior, entry, sub.Logger)
		if err != nil {
			return &SubmissionError{Step: StepMerge, Err: err}
		}

		state.IndexMerged = true

		// If the branch tip already carries this exact change, the
		// previous run got this far; skip straight to the PR.
		staged, err := submissionPresent(ctx, sub, target, tipSHA, fileSet, merged, path.Key(), entry)
		if err != nil {
			return stepError(ctx, StepStaging, err, true)
		}

		if staged {
			sub.Logger.Debug("branch already carries this submission, skipping commit",
				slog.String("branch", branch),
			)

			state.FilesStaged = true

			return nil
		}

		indexBytes, err := merged.Encode()
		if err != nil {
			return &SubmissionError{Step: StepMerge, Err: err}
		}

		conflict, err := createCommitOnBranch(ctx, sub, target, branch, tipSHA, fileSet, indexBytes, commitMessage(path, prior))
		if err != nil {
			return stepError(ctx, StepCommit, err, true)
		}

		if !conflict {
			state.FilesStaged = true

			return nil
		}

		sub.Logger.Warn("branch moved while committing, re-fetching and re-merging",
			slog.String("branch", branch),
			slog.Int("attempt", attempt),
		)
	}

	return &SubmissionError{
		Step: StepCommit,
		Err:  fmt.Errorf("branch %s kept moving during %d commit attempts", branch, maxMergeAttempts),
	}
}

func commitMessage(path model.RegistryPath, prior *model.IndexEntry) string {
	if prior != nil {
		return fmt.Sprintf("Update model %s", path.Key())
	}

	return fmt.Sprintf("Add model %s", path.Key())
}

// createCommitOnBranch writes the file set and index as one commit via
// the Git data API: tree on top of the tip's tree, commit with the tip
// as parent, then a non-forced ref update. The ref update is the
// compare-and-swap; a 422 means the tip moved and the caller must
// re-merge. Nothing is half-written on failure: until the ref update
// lands, the new objects are unreachable.
func createCommitOnBranch(ctx context.Context, sub *SubmissionContext, target Repo, branch, tipSHA string, fileSet model.FileSet, indexBytes []byte, message string) (conflict bool, err error) {
	tipCommit, _, err := sub.Client.Git.GetCommit(ctx, target.Owner, target.Name, tipSHA)
	if err != nil {
		return false, fmt.Errorf("get tip commit: %w", err)
	}

	entries := make([]*github.TreeEntry, 0, len(fileSet)+1)

	for _, p := range fileSet.Paths() {
		entries = append(entries, &github.TreeEntry{
			Path:    github.String(p),
			Mode:    github.String("100644"),
			Type:    github.String("blob"),
			Content: github.String(string(fileSet[p])),
		})
	}

	entries = append(entries, &github.TreeEntry{
		Path:    github.String(model.IndexFileName),
		Mode:    github.String("100644"),
		Type:    github.String("blob"),
		Content: github.String(string(indexBytes)),
	})

	tree, _, err := sub.Client.Git.CreateTree(ctx, target.Owner, target.Name, tipCommit.GetTree().GetSHA(), entries)
	if err != nil {
		return false, fmt.Errorf("create tree: %w", err)
	}

	commit := &github.Commit{
		Message: github.String(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(tipSHA)}},
	}

	created, _, err := sub.Client.Git.CreateCommit(ctx, target.Owner, target.Name, commit, nil)
	if err != nil {
		return false, fmt.Errorf("create commit: %w", err)
	}

	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: created.SHA},
	}

	if _, _, err := sub.Client.Git.UpdateRef(ctx, target.Owner, target.Name, ref, false); err != nil {
		if statusCode(nil, err) == http.StatusUnprocessableEntity {
			return true, nil
		}

		return false, fmt.Errorf("update ref: %w", err)
	}

	return false, nil
}

// submissionPresent reports whether ref already carries the staged file
// set and an index equivalent to the merged one (UpdatedAt aside).
func submissionPresent(ctx context.Context, sub *SubmissionContext, repo Repo, ref string, fileSet model.FileSet, merged model.Index, key string, entry model.IndexEntry) (bool, error) {
	present, err := fileSetPresent(ctx, sub, repo, ref, fileSet)
	if err != nil || !present {
		return false, err
	}

	blob, ok, err := fetchFile(ctx, sub, repo, model.IndexFileName, ref)
	if err != nil || !ok {
		return false, err
	}

	remoteIdx, err := model.ParseIndex(blob)
	if err != nil {
		return false, err
	}

	got, ok := remoteIdx[key]
	if !ok || !got.Equivalent(entry) {
		return false, nil
	}

	if len(remoteIdx) != len(merged) {
		return false, nil
	}

	for k, v := range merged {
		if k == key {
			continue
		}

		if cur, ok := remoteIdx[k]; !ok || !entriesIdentical(cur, v) {
			return false, nil
		}
	}

	return true, nil
}

func fileSetPresent(ctx context.Context, sub *SubmissionContext, repo Repo, ref string, fileSet model.FileSet) (bool, error) {
	for _, p := range fileSet.Paths() {
		content, ok, err := fetchFile(ctx, sub, repo, p, ref)
		if err != nil {
			return false, err
		}

		if !ok || string(content) != string(fileSet[p]) {
			return false, nil
		}
	}

	return true, nil
}

// fetchFile reads one file at a ref. The second return is false when the
// file does not exist there.
func fetchFile(ctx context.Context, sub *SubmissionContext, repo Repo, path, ref string) ([]byte, bool, error) {
	file, _, _, err := sub.Client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if statusCode(nil, err) == http.StatusNotFound {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("fetch %s at %s: %w", path, ref, err)
	}

	if file == nil {
		return nil, false, fmt.Errorf("fetch %s at %s: path is a directory", path, ref)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, false, fmt.Errorf("decode %s at %s: %w", path, ref, err)
	}

	return []byte(content), true, nil
}

// ensurePullRequest opens the PR from the working branch to the registry
// default branch, or refreshes the one already open for that head.
func ensurePullRequest(ctx context.Context, sub *SubmissionContext, head, base Repo, branch string, path model.RegistryPath, m model.Metadata, update bool) (*PullRequestRecord, bool, error) {
	title := prTitle(m, update)
	body := prBody(m, path)

	headSpec := branch
	if head.Owner != base.Owner {
		headSpec = head.Owner + ":" + branch
	}

	existing, err := findOpenPR(ctx, sub, base, headSpec)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		pr, _, err := sub.Client.PullRequests.Create(ctx, base.Owner, base.Name, &github.NewPullRequest{
			Title:               github.String(title),
			Head:                github.String(headSpec),
			Base:                github.String(sub.Registry.Branch),
			Body:                github.String(body),
			MaintainerCanModify: github.Bool(true),
		})
		if err != nil {
			// Lost a creation race: someone (plausibly an interrupted
			// prior run of this same command) opened it first.
			if statusCode(nil, err) != http.StatusUnprocessableEntity {
				return nil, false, fmt.Errorf("create pull request: %w", err)
			}

			existing, err = findOpenPR(ctx, sub, base, headSpec)
			if err != nil {
				return nil, false, err
			}

			if existing == nil {
				return nil, false, fmt.Errorf("pull request for %s reported as existing but not found", headSpec)
			}
		} else {
			return prRecord(pr, head, base, branch, sub.Registry.Branch), false, nil
		}
	}

	updated := false

	if existing.GetTitle() != title || existing.GetBody() != body {
		existing.Title = github.String(title)
		existing.Body = github.String(body)

		edited, _, err := sub.Client.PullRequests.Edit(ctx, base.Owner, base.Name, existing.GetNumber(), &github.PullRequest{
			Title: github.String(title),
			Body:  github.String(body),
		})
		if err != nil {
			return nil, false, fmt.Errorf("update pull request #%d: %w", existing.GetNumber(), err)
		}

		existing = edited
		updated = true
	}

	return prRecord(existing, head, base, branch, sub.Registry.Branch), updated, nil
}

func findOpenPR(ctx context.Context, sub *SubmissionContext, base Repo, headSpec string) (*github.PullRequest, error) {
	// GitHub requires the owner-qualified form in the head filter.
	filter := headSpec
	if !strings.Contains(filter, ":") {
		filter = base.Owner + ":" + filter
	}

	prs, _, err := sub.Client.PullRequests.List(ctx, base.Owner, base.Name, &github.PullRequestListOptions{
		State: "open",
		Head:  filter,
		Base:  sub.Registry.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("list pull requests for %s: %w", filter, err)
	}

	if len(prs) == 0 {
		return nil, nil
	}

	return prs[0], nil
}

func prRecord(pr *github.PullRequest, head, base Repo, branch, baseBranch string) *PullRequestRecord {
	return &PullRequestRecord{
		HeadRepo:   head,
		HeadBranch: branch,
		BaseRepo:   base,
		BaseBranch: baseBranch,
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
	}
}

func prTitle(m model.Metadata, update bool) string {
	if update {
		return "Update model: " + m.Name
	}

	return "Add model: " + m.Name
}

func prBody(m model.Metadata, path model.RegistryPath) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Adds `%s` to the model registry.\n\n", path.Key())
	fmt.Fprintf(&b, "- **Owner**: @%s\n", m.Owner)
	fmt.Fprintf(&b, "- **Path**: `%s/`\n", path.Dir())
	fmt.Fprintf(&b, "- **CID**: `%s`\n", m.CID)

	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags**: %s\n", strings.Join(m.Tags, ", "))
	}

	fmt.Fprintf(&b, "- **Gateway**: %s\n", GatewayURL(m.CID))

	if m.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", m.Description)
	}

	return b.String()
}
