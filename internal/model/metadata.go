package model

import (
	"sort"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// Metadata describes one contributed model. It is the unit persisted at
// models/<owner>/<name>/metadata.json and snapshotted into the registry index.
type Metadata struct {
	// Name is the model name, unique within the owner's namespace
	Name string `json:"name"`

	// Description is an optional human-readable summary
	Description string `json:"description"`

	// Tags is a sorted, deduplicated set of labels
	Tags []string `json:"tags"`

	// CID is the content identifier of the model payload on IPFS,
	// immutable once assigned
	CID string `json:"cid"`

	// Owner is the GitHub login the entry belongs to, lowercase
	Owner string `json:"owner"`
}

// NewMetadata builds a normalized Metadata value: the owner is lowercased
// and the tag set is cleaned, deduplicated and sorted.
func NewMetadata(name, description string, tags []string, cid, owner string) Metadata {
	return Metadata{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Tags:        NormalizeTags(tags),
		CID:         strings.TrimSpace(cid),
		Owner:       strings.ToLower(strings.TrimSpace(owner)),
	}
}

// NormalizeTags trims, lowercases, deduplicates and sorts a tag list.
// Empty tags are dropped. A nil input yields an empty, non-nil slice so
// the JSON form is always an array.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}

		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}

		out = append(out, t)
	}

	sort.Strings(out)

	return out
}

// Validate checks the metadata against the registry contract. The returned
// error is a *FieldError naming the first offending field.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return &FieldError{Field: "name", Reason: "must not be empty"}
	}

	if _, err := SanitizeName(m.Name); err != nil {
		return err
	}

	if m.Owner == "" {
		return &FieldError{Field: "owner", Reason: "must not be empty"}
	}

	if m.Owner != strings.ToLower(m.Owner) {
		return &FieldError{Field: "owner", Reason: "must be lowercase"}
	}

	if !validLogin(m.Owner) {
		return &FieldError{Field: "owner", Reason: "is not a valid GitHub login"}
	}

	if m.CID == "" {
		return &FieldError{Field: "cid", Reason: "must not be empty"}
	}

	if !ValidCID(m.CID) {
		return &FieldError{Field: "cid", Reason: "is not a valid content identifier"}
	}

	return nil
}

// Equivalent reports whether two metadata values describe the same content.
// Tag order is ignored; both sides are expected to be normalized.
func (m Metadata) Equivalent(other Metadata) bool {
	if m.Name != other.Name || m.Description != other.Description ||
		m.CID != other.CID || m.Owner != other.Owner {
		return false
	}

	if len(m.Tags) != len(other.Tags) {
		return false
	}

	for i := range m.Tags {
		if m.Tags[i] != other.Tags[i] {
			return false
		}
	}

	return true
}

// ValidCID reports whether s looks like a CIDv0 ("Qm" + base58, 46 chars)
// or a CIDv1 (lowercase base32, "b" prefix) content identifier.
func ValidCID(s string) bool {
	if strings.HasPrefix(s, "Qm") && len(s) == 46 {
		decoded := base58.Decode(s)
		// sha2-256 multihash: 0x12 0x20 + 32 digest bytes
		return len(decoded) == 34 && decoded[0] == 0x12 && decoded[1] == 0x20
	}

	if strings.HasPrefix(s, "b") && len(s) >= 46 {
		for _, r := range s[1:] {
			if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
				return false
			}
		}

		return true
	}

	return false
}

// validLogin mirrors GitHub's username rules: alphanumeric and single
// hyphens, no leading/trailing hyphen, at most 39 characters.
func validLogin(s string) bool {
	if s == "" || len(s) > 39 {
		return false
	}

	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
		return false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}

	return true
}
