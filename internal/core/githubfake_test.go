package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v67/github"
)

// fakeGitHub is an in-memory stand-in for the subset of the GitHub REST
// API the submission workflow touches: identity, permissions, forks,
// refs, trees, commits, contents and pull requests.
type fakeGitHub struct {
	mu sync.Mutex

	login      string
	permission string // collaborator permission of login on the registry

	repos  map[string]*fakeRepo
	prs    []*fakePR
	nextPR int

	// beforeUpdateRef, when set, runs once right before the next ref
	// update is applied; used to simulate a concurrent writer landing
	// between fetch and compare-and-swap.
	beforeUpdateRef func()

	srv *httptest.Server
}

type fakeRepo struct {
	owner         string
	name          string
	fork          bool
	defaultBranch string
	branches      map[string]string            // branch -> commit sha
	commits       map[string]fakeCommit        // sha -> commit
	trees         map[string]map[string]string // tree sha -> path -> content
	nextID        int
}

type fakeCommit struct {
	tree    string
	parents []string
	message string
}

type fakePR struct {
	number     int
	state      string
	title      string
	body       string
	headOwner  string
	headBranch string
	baseBranch string
}

func newFakeGitHub(t *testing.T, login, permission string) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{
		login:      login,
		permission: permission,
		repos:      make(map[string]*fakeRepo),
		nextPR:     1,
	}

	reg := &fakeRepo{
		owner:         "octofacehub",
		name:          "octofacehub.github.io",
		defaultBranch: "main",
		branches:      make(map[string]string),
		commits:       make(map[string]fakeCommit),
		trees:         make(map[string]map[string]string),
	}

	// Seed an initial commit so the default branch resolves.
	treeSHA := reg.newSHA("tree")
	reg.trees[treeSHA] = map[string]string{}
	commitSHA := reg.newSHA("commit")
	reg.commits[commitSHA] = fakeCommit{tree: treeSHA, message: "initial"}
	reg.branches["main"] = commitSHA

	f.repos["octofacehub/octofacehub.github.io"] = reg

	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)

	return f
}

// client returns a go-github client pointed at the fake.
func (f *fakeGitHub) client(t *testing.T) *github.Client {
	t.Helper()

	c := github.NewClient(nil)

	base, err := url.Parse(f.srv.URL + "/")
	if err != nil {
		t.Fatalf("parse fake URL: %v", err)
	}

	c.BaseURL = base

	return c
}

func (f *fakeGitHub) registry() *fakeRepo {
	return f.repos["octofacehub/octofacehub.github.io"]
}

// seedRegistryFile commits a file onto the registry default branch.
func (f *fakeGitHub) seedRegistryFile(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg := f.registry()
	reg.commitFiles(map[string]string{path: content}, "seed")
}

func (r *fakeRepo) newSHA(kind string) string {
	r.nextID++

	return fmt.Sprintf("%s-%s-%s-%04d", r.owner, r.name, kind, r.nextID)
}

// commitFiles layers files on top of the current default-branch tree.
func (r *fakeRepo) commitFiles(files map[string]string, message string) {
	tip := r.branches[r.defaultBranch]
	base := r.trees[r.commits[tip].tree]

	tree := make(map[string]string, len(base)+len(files))
	for k, v := range base {
		tree[k] = v
	}

	for k, v := range files {
		tree[k] = v
	}

	treeSHA := r.newSHA("tree")
	r.trees[treeSHA] = tree
	commitSHA := r.newSHA("commit")
	r.commits[commitSHA] = fakeCommit{tree: treeSHA, parents: []string{tip}, message: message}
	r.branches[r.defaultBranch] = commitSHA
}

// fileAt resolves a file at a branch name or commit sha.
func (r *fakeRepo) fileAt(ref, path string) (string, bool) {
	sha := ref
	if tip, ok := r.branches[ref]; ok {
		sha = tip
	}

	commit, ok := r.commits[sha]
	if !ok {
		return "", false
	}

	content, ok := r.trees[commit.tree][path]

	return content, ok
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "user":
		writeJSON(w, http.StatusOK, map[string]any{"login": f.login})

	case len(parts) >= 3 && parts[0] == "repos":
		f.handleRepo(w, r, parts[1], parts[2], parts[3:])

	default:
		writeError(w, http.StatusNotFound, "no route for "+path)
	}
}

func (f *fakeGitHub) handleRepo(w http.ResponseWriter, r *http.Request, owner, name string, rest []string) {
	repo, repoExists := f.repos[owner+"/"+name]

	switch {
	case len(rest) == 0:
		if !repoExists {
			writeError(w, http.StatusNotFound, "repo not found")

			return
		}

		writeJSON(w, http.StatusOK, repoJSON(repo))

	case rest[0] == "collaborators" && len(rest) == 3 && rest[2] == "permission":
		if f.permission == "" {
			writeError(w, http.StatusNotFound, "not a collaborator")

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"permission": f.permission})

	case rest[0] == "forks" && r.Method == http.MethodPost:
		f.createFork(owner, name)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("{}"))

	case rest[0] == "merge-upstream":
		writeJSON(w, http.StatusOK, map[string]any{"merge_type": "none"})

	case rest[0] == "git":
		if !repoExists {
			writeError(w, http.StatusNotFound, "repo not found")

			return
		}

		f.handleGit(w, r, repo, rest[1:])

	case rest[0] == "contents":
		if !repoExists {
			writeError(w, http.StatusNotFound, "repo not found")

			return
		}

		f.handleContents(w, r, repo, strings.Join(rest[1:], "/"))

	case rest[0] == "pulls":
		f.handlePulls(w, r, rest[1:])

	default:
		writeError(w, http.StatusNotFound, "no route for "+strings.Join(rest, "/"))
	}
}

func (f *fakeGitHub) createFork(owner, name string) {
	upstream := f.repos[owner+"/"+name]
	forkKey := f.login + "/" + name

	if _, ok := f.repos[forkKey]; ok {
		return
	}

	fork := &fakeRepo{
		owner:         f.login,
		name:          name,
		fork:          true,
		defaultBranch: upstream.defaultBranch,
		branches:      make(map[string]string),
		commits:       make(map[string]fakeCommit),
		trees:         make(map[string]map[string]string),
	}

	for b, sha := range upstream.branches {
		fork.branches[b] = sha
	}

	for sha, c := range upstream.commits {
		fork.commits[sha] = c
	}

	for sha, t := range upstream.trees {
		fork.trees[sha] = t
	}

	f.repos[forkKey] = fork
}

func (f *fakeGitHub) handleGit(w http.ResponseWriter, r *http.Request, repo *fakeRepo, rest []string) {
	switch {
	case rest[0] == "ref" && r.Method == http.MethodGet:
		branch := strings.TrimPrefix(strings.Join(rest[1:], "/"), "heads/")

		sha, ok := repo.branches[branch]
		if !ok {
			writeError(w, http.StatusNotFound, "ref not found")

			return
		}

		writeJSON(w, http.StatusOK, refJSON(branch, sha))

	case rest[0] == "refs" && r.Method == http.MethodPost:
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		branch := strings.TrimPrefix(body.Ref, "refs/heads/")
		if _, exists := repo.branches[branch]; exists {
			writeError(w, http.StatusUnprocessableEntity, "reference already exists")

			return
		}

		if _, ok := repo.commits[body.SHA]; !ok {
			writeError(w, http.StatusUnprocessableEntity, "object does not exist")

			return
		}

		repo.branches[branch] = body.SHA
		writeJSON(w, http.StatusCreated, refJSON(branch, body.SHA))

	case rest[0] == "refs" && r.Method == http.MethodPatch:
		branch := strings.TrimPrefix(strings.Join(rest[1:], "/"), "heads/")

		var body struct {
			SHA   string `json:"sha"`
			Force bool   `json:"force"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		if f.beforeUpdateRef != nil {
			hook := f.beforeUpdateRef
			f.beforeUpdateRef = nil
			hook()
		}

		tip, ok := repo.branches[branch]
		if !ok {
			writeError(w, http.StatusNotFound, "ref not found")

			return
		}

		commit, ok := repo.commits[body.SHA]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "object does not exist")

			return
		}

		// Non-forced updates must fast-forward from the current tip.
		if !body.Force && (len(commit.parents) == 0 || commit.parents[0] != tip) {
			writeError(w, http.StatusUnprocessableEntity, "update is not a fast forward")

			return
		}

		repo.branches[branch] = body.SHA
		writeJSON(w, http.StatusOK, refJSON(branch, body.SHA))

	case rest[0] == "commits" && r.Method == http.MethodGet:
		commit, ok := repo.commits[rest[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "commit not found")

			return
		}

		writeJSON(w, http.StatusOK, commitJSON(rest[1], commit))

	case rest[0] == "commits" && r.Method == http.MethodPost:
		var body struct {
			Message string   `json:"message"`
			Tree    string   `json:"tree"`
			Parents []string `json:"parents"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		sha := repo.newSHA("commit")
		repo.commits[sha] = fakeCommit{tree: body.Tree, parents: body.Parents, message: body.Message}
		writeJSON(w, http.StatusCreated, commitJSON(sha, repo.commits[sha]))

	case rest[0] == "trees" && r.Method == http.MethodPost:
		var body struct {
			BaseTree string `json:"base_tree"`
			Tree     []struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			} `json:"tree"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		tree := make(map[string]string)
		for k, v := range repo.trees[body.BaseTree] {
			tree[k] = v
		}

		for _, e := range body.Tree {
			tree[e.Path] = e.Content
		}

		sha := repo.newSHA("tree")
		repo.trees[sha] = tree
		writeJSON(w, http.StatusCreated, map[string]any{"sha": sha})

	default:
		writeError(w, http.StatusNotFound, "no git route")
	}
}

func (f *fakeGitHub) handleContents(w http.ResponseWriter, r *http.Request, repo *fakeRepo, path string) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = repo.defaultBranch
	}

	content, ok := repo.fileAt(ref, path)
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type":     "file",
		"encoding": "base64",
		"path":     path,
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	})
}

func (f *fakeGitHub) handlePulls(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		head := r.URL.Query().Get("head")
		state := r.URL.Query().Get("state")

		var out []map[string]any

		for _, pr := range f.prs {
			if state != "" && state != "all" && pr.state != state {
				continue
			}

			if head != "" && head != pr.headOwner+":"+pr.headBranch {
				continue
			}

			out = append(out, prJSON(pr))
		}

		writeJSON(w, http.StatusOK, out)

	case len(rest) == 0 && r.Method == http.MethodPost:
		var body struct {
			Title string `json:"title"`
			Head  string `json:"head"`
			Base  string `json:"base"`
			Body  string `json:"body"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		headOwner := "octofacehub"
		headBranch := body.Head

		if idx := strings.Index(body.Head, ":"); idx >= 0 {
			headOwner = body.Head[:idx]
			headBranch = body.Head[idx+1:]
		}

		for _, pr := range f.prs {
			if pr.state == "open" && pr.headOwner == headOwner && pr.headBranch == headBranch {
				writeError(w, http.StatusUnprocessableEntity, "a pull request already exists")

				return
			}
		}

		pr := &fakePR{
			number:     f.nextPR,
			state:      "open",
			title:      body.Title,
			body:       body.Body,
			headOwner:  headOwner,
			headBranch: headBranch,
			baseBranch: body.Base,
		}

		f.nextPR++
		f.prs = append(f.prs, pr)
		writeJSON(w, http.StatusCreated, prJSON(pr))

	case len(rest) == 1 && r.Method == http.MethodPatch:
		var body struct {
			Title *string `json:"title"`
			Body  *string `json:"body"`
		}

		_ = json.NewDecoder(r.Body).Decode(&body)

		for _, pr := range f.prs {
			if fmt.Sprintf("%d", pr.number) == rest[0] {
				if body.Title != nil {
					pr.title = *body.Title
				}

				if body.Body != nil {
					pr.body = *body.Body
				}

				writeJSON(w, http.StatusOK, prJSON(pr))

				return
			}
		}

		writeError(w, http.StatusNotFound, "pull request not found")

	default:
		writeError(w, http.StatusNotFound, "no pulls route")
	}
}

func (f *fakeGitHub) openPRs() []*fakePR {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*fakePR

	for _, pr := range f.prs {
		if pr.state == "open" {
			out = append(out, pr)
		}
	}

	return out
}

func repoJSON(r *fakeRepo) map[string]any {
	return map[string]any{
		"name":           r.name,
		"full_name":      r.owner + "/" + r.name,
		"fork":           r.fork,
		"default_branch": r.defaultBranch,
		"owner":          map[string]any{"login": r.owner},
	}
}

func refJSON(branch, sha string) map[string]any {
	return map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]any{"type": "commit", "sha": sha},
	}
}

func commitJSON(sha string, c fakeCommit) map[string]any {
	parents := make([]map[string]any, 0, len(c.parents))
	for _, p := range c.parents {
		parents = append(parents, map[string]any{"sha": p})
	}

	return map[string]any{
		"sha":     sha,
		"message": c.message,
		"tree":    map[string]any{"sha": c.tree},
		"parents": parents,
	}
}

func prJSON(pr *fakePR) map[string]any {
	return map[string]any{
		"number":   pr.number,
		"state":    pr.state,
		"title":    pr.title,
		"body":     pr.body,
		"html_url": fmt.Sprintf("https://github.com/octofacehub/octofacehub.github.io/pull/%d", pr.number),
		"head": map[string]any{
			"ref":   pr.headBranch,
			"label": pr.headOwner + ":" + pr.headBranch,
			"repo":  map[string]any{"name": "octofacehub.github.io", "owner": map[string]any{"login": pr.headOwner}},
		},
		"base": map[string]any{"ref": pr.baseBranch},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": message})
}
