// Package store persists the local upload cache.
//
// Uploading a model directory to IPFS is the slow, expensive half of a
// submission. The cache remembers which content digest resolved to which
// CID, so a submission interrupted after the upload (or re-run against
// an unchanged directory) skips straight to the GitHub workflow. The
// content store is content-addressed, which is what makes a cached CID
// safe to reuse: same bytes, same identifier.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/octofacehub/octoface/internal/encoding"
	"go.etcd.io/bbolt"
)

const (
	boltBucketUploads = "uploads" // key: digest -> uploadRecord JSON

	boltFileName = "uploads.bolt"
)

// UploadCache maps content digests of local model directories to the
// CIDs they were stored under.
type UploadCache struct {
	db *bbolt.DB
}

type uploadRecord struct {
	CID        string    `json:"cid"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Open opens (creating if needed) the upload cache in dir.
func Open(dir string) (*UploadCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, boltFileName), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open upload cache: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketUploads))

		return err
	}); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &UploadCache{db: db}, nil
}

// Close releases the cache file.
func (c *UploadCache) Close() error {
	return c.db.Close()
}

// Lookup returns the CID previously recorded for a digest, or "" when
// the digest was never uploaded.
func (c *UploadCache) Lookup(digest string) (string, error) {
	var cid string

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(boltBucketUploads)).Get([]byte(digest))
		if data == nil {
			return nil
		}

		rec, err := encoding.ParseJSON[uploadRecord](data)
		if err != nil {
			return fmt.Errorf("corrupt cache entry for %s: %w", digest, err)
		}

		cid = rec.CID

		return nil
	})

	return cid, err
}

// Record stores the digest-to-CID mapping after a successful upload.
func (c *UploadCache) Record(digest, cid, path string) error {
	data, err := encoding.ToJSON(uploadRecord{
		CID:        cid,
		Path:       path,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketUploads)).Put([]byte(digest), data)
	})
}

// DigestDir computes a stable content digest of a directory tree: the
// sha256 of every file's relative path and bytes, walked in sorted
// order. Renaming, adding, or editing any file changes the digest.
func DigestDir(root string) (string, error) {
	h := sha256.New()

	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		files = append(files, path)

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)

	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", err
		}

		_, _ = io.WriteString(h, filepath.ToSlash(rel))
		_, _ = h.Write([]byte{0})

		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}

		if _, err := io.Copy(h, f); err != nil {
			_ = f.Close()

			return "", fmt.Errorf("digest %s: %w", path, err)
		}

		_ = f.Close()
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
