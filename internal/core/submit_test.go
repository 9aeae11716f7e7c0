package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/octofacehub/octoface/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCIDv0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	testCIDv1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)

	return ts
}

func testMetadata(owner string) model.Metadata {
	return model.NewMetadata("gemma-3-4b-it", "small but mighty", []string{"llm", "text"}, testCIDv0, owner)
}

func TestSubmit_ForkFlow(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")
	client := f.client(t)

	result, err := Submit(context.Background(), client, DefaultRegistry(), testMetadata(""), SubmitOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NotNil(t, result.PR)

	assert.False(t, result.AlreadyCurrent)
	assert.False(t, result.Updated)
	assert.False(t, result.State.HasWriteAccess)
	assert.Equal(t, "alice", result.PR.HeadRepo.Owner)
	assert.Equal(t, "add-model/alice/gemma-3-4b-it", result.PR.HeadBranch)
	assert.Equal(t, "Add model: gemma-3-4b-it", result.PR.Title)

	// A fork was provisioned and carries the staged files on the branch.
	fork, ok := f.repos["alice/octofacehub.github.io"]
	require.True(t, ok, "fork was not created")
	assert.True(t, fork.fork)

	branch := "add-model/alice/gemma-3-4b-it"

	meta, ok := fork.fileAt(branch, "models/alice/gemma-3-4b-it/metadata.json")
	require.True(t, ok, "metadata.json missing on branch")
	assert.Contains(t, meta, testCIDv0)

	_, ok = fork.fileAt(branch, "models/alice/gemma-3-4b-it/README.md")
	assert.True(t, ok, "README.md missing on branch")

	indexBlob, ok := fork.fileAt(branch, model.IndexFileName)
	require.True(t, ok, "index missing on branch")

	idx, err := model.ParseIndex([]byte(indexBlob))
	require.NoError(t, err)
	require.Contains(t, idx, "alice/gemma-3-4b-it")
	assert.Equal(t, testCIDv0, idx["alice/gemma-3-4b-it"].CID)

	// Without write access nothing may land on the registry itself.
	reg := f.registry()
	_, ok = reg.fileAt("main", "models/alice/gemma-3-4b-it/metadata.json")
	assert.False(t, ok, "registry default branch was written by a non-collaborator")
	_, ok = reg.branches[branch]
	assert.False(t, ok, "working branch was pushed to the registry")

	require.Len(t, f.openPRs(), 1)
}

func TestSubmit_ForkFlowPreservesOtherEntries(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")

	seed := model.Index{
		"bob/bert-tiny": model.NewIndexEntry(
			model.NewMetadata("bert-tiny", "seeded", []string{"nlp"}, testCIDv1, "bob"),
			mustTime(t, "2026-01-02T03:04:05Z"),
		),
	}

	blob, err := seed.Encode()
	require.NoError(t, err)

	f.seedRegistryFile(model.IndexFileName, string(blob))

	_, err = Submit(context.Background(), f.client(t), DefaultRegistry(), testMetadata(""), SubmitOptions{Logger: quietLogger()})
	require.NoError(t, err)

	fork := f.repos["alice/octofacehub.github.io"]
	indexBlob, ok := fork.fileAt("add-model/alice/gemma-3-4b-it", model.IndexFileName)
	require.True(t, ok)

	idx, err := model.ParseIndex([]byte(indexBlob))
	require.NoError(t, err)
	require.Len(t, idx, 2)

	assert.Equal(t, seed["bob/bert-tiny"], idx["bob/bert-tiny"], "foreign entry must survive byte-for-byte")
	assert.Contains(t, idx, "alice/gemma-3-4b-it")
}

func TestSubmit_DirectFlowForCollaborator(t *testing.T) {
	f := newFakeGitHub(t, "bob", "write")

	result, err := Submit(context.Background(), f.client(t), DefaultRegistry(), testMetadata(""), SubmitOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NotNil(t, result.PR)

	assert.True(t, result.State.HasWriteAccess)
	assert.Equal(t, "octofacehub", result.PR.HeadRepo.Owner, "collaborators branch on the registry itself")

	_, forked := f.repos["bob/octofacehub.github.io"]
	assert.False(t, forked, "no fork should be created for a collaborator")

	reg := f.registry()
	_, ok := reg.branches["add-model/bob/gemma-3-4b-it"]
	assert.True(t, ok, "working branch missing on the registry")

	// The default branch itself stays untouched until the PR merges.
	_, ok = reg.fileAt("main", "models/bob/gemma-3-4b-it/metadata.json")
	assert.False(t, ok)
}

func TestSubmit_RerunIsIdempotent(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")
	client := f.client(t)
	reg := DefaultRegistry()
	m := testMetadata("")
	opts := SubmitOptions{Logger: quietLogger()}

	first, err := Submit(context.Background(), client, reg, m, opts)
	require.NoError(t, err)

	second, err := Submit(context.Background(), client, reg, m, opts)
	require.NoError(t, err)

	require.NotNil(t, second.PR)
	assert.Equal(t, first.PR.Number, second.PR.Number, "re-run must reuse the open pull request")
	assert.False(t, second.Updated, "identical metadata should not touch the PR")
	assert.Len(t, f.openPRs(), 1, "at most one open pull request per model")
}

func TestSubmit_RerunUpdatesOpenPR(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")
	client := f.client(t)
	reg := DefaultRegistry()
	opts := SubmitOptions{Logger: quietLogger()}

	first, err := Submit(context.Background(), client, reg, testMetadata(""), opts)
	require.NoError(t, err)

	revised := testMetadata("")
	revised.Description = "now with a longer context window"

	second, err := Submit(context.Background(), client, reg, revised, opts)
	require.NoError(t, err)

	require.NotNil(t, second.PR)
	assert.Equal(t, first.PR.Number, second.PR.Number)
	assert.Contains(t, second.PR.Body, "longer context window")
	assert.Len(t, f.openPRs(), 1)
}

func TestSubmit_AlreadyCurrentAfterMerge(t *testing.T) {
	f := newFakeGitHub(t, "bob", "write")
	client := f.client(t)
	reg := DefaultRegistry()
	m := testMetadata("")
	opts := SubmitOptions{Logger: quietLogger()}

	first, err := Submit(context.Background(), client, reg, m, opts)
	require.NoError(t, err)
	require.NotNil(t, first.PR)

	// Simulate the maintainer merging the pull request.
	f.mu.Lock()
	regRepo := f.registry()
	regRepo.branches["main"] = regRepo.branches[first.PR.HeadBranch]
	f.mu.Unlock()

	second, err := Submit(context.Background(), client, reg, m, opts)
	require.NoError(t, err)

	assert.True(t, second.AlreadyCurrent)
	assert.Nil(t, second.PR)
	assert.Len(t, f.openPRs(), 1, "no second pull request after the first merged")
}

func TestSubmit_RetriesAfterConcurrentRefUpdate(t *testing.T) {
	f := newFakeGitHub(t, "bob", "write")

	// Land a commit from another writer on the working branch between the
	// tip fetch and the ref update, so the first compare-and-swap loses.
	branch := "add-model/bob/gemma-3-4b-it"
	f.beforeUpdateRef = func() {
		repo := f.registry()
		tip := repo.branches[branch]
		base := repo.trees[repo.commits[tip].tree]

		tree := make(map[string]string, len(base)+1)
		for k, v := range base {
			tree[k] = v
		}

		tree["CONTRIBUTORS.md"] = "bob\n"

		treeSHA := repo.newSHA("tree")
		repo.trees[treeSHA] = tree
		commitSHA := repo.newSHA("commit")
		repo.commits[commitSHA] = fakeCommit{tree: treeSHA, parents: []string{tip}, message: "concurrent"}
		repo.branches[branch] = commitSHA
	}

	result, err := Submit(context.Background(), f.client(t), DefaultRegistry(), testMetadata(""), SubmitOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NotNil(t, result.PR)

	// The retried commit sits on top of the concurrent one.
	reg := f.registry()
	_, ok := reg.fileAt(branch, "CONTRIBUTORS.md")
	assert.True(t, ok, "concurrent commit lost")
	_, ok = reg.fileAt(branch, "models/bob/gemma-3-4b-it/metadata.json")
	assert.True(t, ok, "submission commit lost")
}

func TestSubmit_OwnerMismatchRejected(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")

	m := testMetadata("mallory")

	_, err := Submit(context.Background(), f.client(t), DefaultRegistry(), m, SubmitOptions{Logger: quietLogger()})
	require.Error(t, err)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, StepIdentity, subErr.Step)

	var fieldErr *model.FieldError
	assert.ErrorAs(t, err, &fieldErr)
}

func TestSubmit_InvalidMetadataRejected(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")

	m := testMetadata("")
	m.CID = "not-a-cid"

	_, err := Submit(context.Background(), f.client(t), DefaultRegistry(), m, SubmitOptions{Logger: quietLogger()})
	require.Error(t, err)

	var fieldErr *model.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "cid", fieldErr.Field)

	assert.Empty(t, f.openPRs(), "nothing may be opened for invalid metadata")
	_, forked := f.repos["alice/octofacehub.github.io"]
	assert.False(t, forked, "nothing may be forked for invalid metadata")
}

func TestSubmit_ExpiredBudgetSurfacesOperationTimeout(t *testing.T) {
	f := newFakeGitHub(t, "alice", "")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := Submit(ctx, f.client(t), DefaultRegistry(), testMetadata(""), SubmitOptions{Logger: quietLogger()})
	require.Error(t, err)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.Resumable, "a timed-out submission must be resumable")

	var timeoutErr *OperationTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, subErr.Step, timeoutErr.Step)
	assert.Equal(t, TimeoutLong, timeoutErr.Budget)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
