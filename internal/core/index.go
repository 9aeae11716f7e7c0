package core

import (
	"log/slog"
	"time"

	"github.com/octofacehub/octoface/internal/model"
)

// maxMergeAttempts bounds the fetch-merge-commit loop. Losing the
// compare-and-swap three times in a row means the branch is seeing
// enough concurrent traffic that a human should look.
const maxMergeAttempts = 3

// MergeIndex folds one owner's entry into the index fetched at the tip
// of the target branch.
//
// The acting owner always wins their own key: if the remote value at
// that key differs from the prior snapshot the caller recorded, another
// writer got there first, and the merge logs that and overwrites anyway.
// Every other key must survive byte-for-byte; the produced index is
// checked against the remote one with VerifyIndexUpdate before anything
// is committed.
func MergeIndex(remoteBlob []byte, prior *model.IndexEntry, entry model.IndexEntry, logger *slog.Logger) (model.Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	remote, err := model.ParseIndex(remoteBlob)
	if err != nil {
		return nil, err
	}

	key := entry.Owner + "/" + entry.Name

	if current, ok := remote[key]; ok {
		if prior == nil || !current.Equivalent(*prior) {
			logger.Warn("index key changed concurrently, keeping this submission's entry",
				slog.String("key", key),
			)
		}
	}

	merged := remote.Clone()
	merged[key] = entry

	if err := VerifyIndexUpdate(remote, merged, key); err != nil {
		return nil, err
	}

	return merged, nil
}

// VerifyIndexUpdate asserts that updated differs from remote in at most
// the single given key. Any other difference means an actor touched an
// entry it does not own; that is never merged silently.
func VerifyIndexUpdate(remote, updated model.Index, key string) error {
	for k, v := range updated {
		if k == key {
			if v.Owner+"/"+v.Name != key {
				return &IndexCorruptionError{Key: k, Detail: "entry does not match its key"}
			}

			continue
		}

		old, ok := remote[k]
		if !ok {
			return &IndexCorruptionError{Key: k, Detail: "key added outside the acting owner's namespace"}
		}

		if !entriesIdentical(old, v) {
			return &IndexCorruptionError{Key: k, Detail: "entry altered by a writer that does not own it"}
		}
	}

	for k := range remote {
		if _, ok := updated[k]; !ok && k != key {
			return &IndexCorruptionError{Key: k, Detail: "entry deleted by a writer that does not own it"}
		}
	}

	return nil
}

func entriesIdentical(a, b model.IndexEntry) bool {
	if !a.Equivalent(b) {
		return false
	}

	return a.UpdatedAt == b.UpdatedAt
}

// NewIndexEntryNow snapshots metadata into an index entry stamped with
// the current UTC time. Kept out of the file-set builder so the builder
// stays deterministic.
func NewIndexEntryNow(m model.Metadata) model.IndexEntry {
	return model.NewIndexEntry(m, time.Now())
}
