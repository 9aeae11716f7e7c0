package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// IndexFileName is the registry-root path of the shared model index.
const IndexFileName = "model-map.json"

// IndexEntry is the snapshot of one model stored in model-map.json,
// keyed by "<owner>/<name>".
type IndexEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CID         string   `json:"cid"`
	Owner       string   `json:"owner"`

	// UpdatedAt is the RFC3339 UTC marker of the last write to this key.
	// It is assigned at merge time and ignored when entries are compared.
	UpdatedAt string `json:"updatedAt"`
}

// NewIndexEntry snapshots metadata into an index entry stamped at now.
func NewIndexEntry(m Metadata, now time.Time) IndexEntry {
	return IndexEntry{
		Name:        m.Name,
		Description: m.Description,
		Tags:        append([]string(nil), m.Tags...),
		CID:         m.CID,
		Owner:       m.Owner,
		UpdatedAt:   now.UTC().Format(time.RFC3339),
	}
}

// Metadata reconstructs the metadata snapshot held by the entry.
func (e IndexEntry) Metadata() Metadata {
	return Metadata{
		Name:        e.Name,
		Description: e.Description,
		Tags:        append([]string(nil), e.Tags...),
		CID:         e.CID,
		Owner:       e.Owner,
	}
}

// Equivalent reports whether two entries carry the same snapshot,
// ignoring UpdatedAt.
func (e IndexEntry) Equivalent(other IndexEntry) bool {
	return e.Metadata().Equivalent(other.Metadata())
}

// Index is the parsed form of model-map.json: a mapping from
// "<owner>/<name>" to the entry last written for that key.
type Index map[string]IndexEntry

// ParseIndex decodes a model-map.json blob. A nil or empty blob is an
// empty index (first-contribution bootstrap), a malformed one is an error.
func ParseIndex(blob []byte) (Index, error) {
	if len(blob) == 0 {
		return Index{}, nil
	}

	var idx Index
	if err := json.Unmarshal(blob, &idx); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", IndexFileName, err)
	}

	if idx == nil {
		idx = Index{}
	}

	return idx, nil
}

// Encode serializes the index canonically: keys sorted (json.Marshal
// orders map keys), two-space indent, trailing newline. Encoding the same
// logical index always yields byte-identical output.
func (idx Index) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", IndexFileName, err)
	}

	return append(data, '\n'), nil
}

// Clone returns an independent copy of the index.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for k, v := range idx {
		out[k] = v
	}

	return out
}
