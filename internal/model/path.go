package model

import (
	"fmt"
	"strings"
)

// FieldError reports a metadata field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RegistryPath locates one model inside the registry tree. The zero value
// is invalid; construct through NewRegistryPath.
type RegistryPath struct {
	owner string
	name  string
}

// NewRegistryPath derives the canonical registry location for a model.
// The owner must already be a normalized GitHub login; the name is
// sanitized here. The result never escapes models/<owner>/.
func NewRegistryPath(owner, name string) (RegistryPath, error) {
	owner = strings.ToLower(strings.TrimSpace(owner))
	if !validLogin(owner) {
		return RegistryPath{}, &FieldError{Field: "owner", Reason: "is not a valid GitHub login"}
	}

	sanitized, err := SanitizeName(name)
	if err != nil {
		return RegistryPath{}, err
	}

	return RegistryPath{owner: owner, name: sanitized}, nil
}

// Owner returns the owning login.
func (p RegistryPath) Owner() string { return p.owner }

// Name returns the sanitized model name.
func (p RegistryPath) Name() string { return p.name }

// Key returns the index key form, "<owner>/<name>", used in model-map.json.
func (p RegistryPath) Key() string {
	return p.owner + "/" + p.name
}

// Dir returns the directory form, "models/<owner>/<name>".
func (p RegistryPath) Dir() string {
	return "models/" + p.owner + "/" + p.name
}

// MetadataPath returns the repository path of the metadata descriptor.
func (p RegistryPath) MetadataPath() string {
	return p.Dir() + "/metadata.json"
}

// ReadmePath returns the repository path of the model card.
func (p RegistryPath) ReadmePath() string {
	return p.Dir() + "/README.md"
}

// BranchName returns the deterministic working-branch name for this model.
// Re-submitting the same model reuses the same branch; different models
// from the same owner get distinct branches.
func (p RegistryPath) BranchName() string {
	return "add-model/" + p.owner + "/" + p.name
}

func (p RegistryPath) String() string { return p.Dir() }

// SanitizeName normalizes a model name into a filesystem- and URL-safe
// path segment. Lowercases, maps spaces and underscores to hyphens, strips
// every other rune outside [a-z0-9._-], collapses hyphen runs and trims
// leading/trailing separators. Names that sanitize to nothing, or to a
// dot-only segment, are rejected so the result can never traverse out of
// the owner directory.
func SanitizeName(name string) (string, error) {
	var b strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}

	s := b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	// A run of dots is how traversal segments survive sanitization;
	// collapse them to a single dot before trimming.
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}

	s = strings.Trim(s, "-.")

	if s == "" {
		return "", &FieldError{Field: "name", Reason: "contains no usable characters"}
	}

	return s, nil
}
