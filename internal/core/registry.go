package core

import (
	"fmt"
	"strings"
)

// OctoFaceHub registry coordinates. Overridable per command with
// --registry owner/repo, mainly for staging copies of the registry.
const (
	defaultRegistryOwner  = "octofacehub"
	defaultRegistryName   = "octofacehub.github.io"
	defaultRegistryBranch = "main"
)

// Registry identifies the repository that holds the model index. Branch
// is the default branch PRs target.
type Registry struct {
	Owner  string
	Name   string
	Branch string
}

// DefaultRegistry returns the OctoFaceHub community registry.
func DefaultRegistry() Registry {
	return Registry{
		Owner:  defaultRegistryOwner,
		Name:   defaultRegistryName,
		Branch: defaultRegistryBranch,
	}
}

// ParseRegistry parses an "owner/repo" override, keeping the default when
// the override is empty.
func ParseRegistry(s string) (Registry, error) {
	if s == "" {
		return DefaultRegistry(), nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Registry{}, fmt.Errorf("invalid registry %q, expected owner/repo", s)
	}

	return Registry{
		Owner:  parts[0],
		Name:   parts[1],
		Branch: defaultRegistryBranch,
	}, nil
}

func (r Registry) String() string {
	return r.Owner + "/" + r.Name
}
