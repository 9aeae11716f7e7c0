// Package model defines the data structures of the OctoFaceHub registry.
//
// This package holds the domain types shared by the submission workflow,
// the CLI, and the local store: model metadata, registry paths, the shared
// index, and file sets. Everything here is pure data and pure functions;
// network and filesystem concerns live in the packages that consume it.
//
// # Metadata
//
// The [Metadata] struct describes one contributed model:
//
//	type Metadata struct {
//	    Name        string   // Model name, unique per owner
//	    Description string   // Optional summary
//	    Tags        []string // Sorted, deduplicated labels
//	    CID         string   // IPFS content identifier, immutable
//	    Owner       string   // Owning GitHub login, lowercase
//	}
//
// # RegistryPath
//
// A [RegistryPath] is the sanitized location of a model inside the
// registry tree, with derived forms for the directory
// (models/<owner>/<name>), the index key (<owner>/<name>) and the
// deterministic working-branch name.
//
// # Index
//
// An [Index] is the parsed model-map.json: a mapping from index key to
// the [IndexEntry] last written for that key. Encoding is canonical so
// identical indexes serialize to identical bytes.
package model
