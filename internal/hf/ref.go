// Package hf resolves and downloads HuggingFace model references so
// they can be re-published to the registry.
package hf

import (
	"fmt"
	"strings"
)

// Ref identifies one model on the HuggingFace hub.
type Ref struct {
	Org  string
	Name string
}

// ParseRef accepts "hf://org/name" or a bare "org/name" and returns the
// parsed reference. Anything else, including bare CIDs and local paths,
// is not a HuggingFace reference.
func ParseRef(s string) (Ref, bool) {
	s = strings.TrimSpace(s)
	explicit := strings.HasPrefix(s, "hf://")
	s = strings.TrimPrefix(s, "hf://")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, false
	}

	for _, p := range parts {
		if strings.ContainsAny(p, " \t?#") || p == "." || p == ".." {
			return Ref{}, false
		}
	}

	// A bare two-segment string could also be a relative file path;
	// only treat it as a hub ref when it does not exist locally. The
	// caller handles that distinction, here the shape is enough.
	_ = explicit

	return Ref{Org: parts[0], Name: parts[1]}, true
}

// ID returns the hub identifier, "org/name".
func (r Ref) ID() string { return r.Org + "/" + r.Name }

func (r Ref) String() string { return "hf://" + r.ID() }

// Validate rejects refs with empty segments.
func (r Ref) Validate() error {
	if r.Org == "" || r.Name == "" {
		return fmt.Errorf("incomplete HuggingFace ref %q", r.ID())
	}

	return nil
}
