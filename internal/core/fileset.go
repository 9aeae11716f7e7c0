package core

import (
	"fmt"
	"strings"

	"github.com/octofacehub/octoface/internal/encoding"
	"github.com/octofacehub/octoface/internal/model"
)

// GatewayBase is the public IPFS gateway models are fetchable from.
const GatewayBase = "https://w3s.link/ipfs"

// GatewayURL returns the public gateway URL for a content identifier.
func GatewayURL(cid string) string {
	return GatewayBase + "/" + cid
}

// BuildFileSet produces the canonical registry file set for one model:
// the metadata descriptor and the rendered model card, both keyed by
// repository-relative path.
//
// The builder is pure: no I/O, no clocks, no randomness. Identical
// metadata always yields byte-identical files, which is what lets
// re-runs detect "the registry already carries exactly this" and stop.
func BuildFileSet(m model.Metadata) (model.FileSet, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	path, err := model.NewRegistryPath(m.Owner, m.Name)
	if err != nil {
		return nil, err
	}

	metaBytes, err := encoding.CanonicalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	return model.FileSet{
		path.MetadataPath(): metaBytes,
		path.ReadmePath():   []byte(renderModelCard(m, path)),
	}, nil
}

// renderModelCard produces the human-readable README for a model entry.
func renderModelCard(m model.Metadata, path model.RegistryPath) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", m.Name)

	if m.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Description)
	}

	fmt.Fprintf(&b, "- **Author**: [@%s](https://github.com/%s)\n", m.Owner, m.Owner)
	fmt.Fprintf(&b, "- **CID**: `%s`\n", m.CID)

	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags**: %s\n", strings.Join(m.Tags, ", "))
	}

	fmt.Fprintf(&b, "\n## Download\n\n")
	fmt.Fprintf(&b, "With the [w3 CLI](https://web3.storage/docs/w3cli/):\n\n")
	fmt.Fprintf(&b, "```bash\nw3 get %s -o %s\n```\n\n", m.CID, path.Name())
	fmt.Fprintf(&b, "Or over HTTP from the public gateway:\n\n")
	fmt.Fprintf(&b, "%s\n", GatewayURL(m.CID))

	return b.String()
}

// RenderContributionGuide produces the GUIDE.md written by generate-files
// for users who prefer to open the pull request by hand.
func RenderContributionGuide(m model.Metadata, reg Registry) (string, error) {
	path, err := model.NewRegistryPath(m.Owner, m.Name)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Contributing %s to %s\n\n", m.Name, reg)
	fmt.Fprintf(&b, "The files alongside this guide are ready to be committed to the registry.\n\n")
	fmt.Fprintf(&b, "1. Fork https://github.com/%s/%s if you do not have write access.\n", reg.Owner, reg.Name)
	fmt.Fprintf(&b, "2. Create a branch, e.g. `%s`.\n", path.BranchName())
	fmt.Fprintf(&b, "3. Copy `metadata.json` and `README.md` into `%s/`.\n", path.Dir())
	fmt.Fprintf(&b, "4. Add this entry to `%s` under the key `%q`.\n", model.IndexFileName, path.Key())
	fmt.Fprintf(&b, "5. Open a pull request against the `%s` branch.\n\n", reg.Branch)
	fmt.Fprintf(&b, "Only touch your own key in %s; the registry CI rejects changes to other owners' entries.\n", model.IndexFileName)

	return b.String(), nil
}
