// Package security scans model payloads for secrets before publication.
//
// Everything submitted to the registry becomes public twice over: the
// metadata lands in a public GitHub repository and the payload on a
// public IPFS gateway. A leaked credential inside a model directory is
// unrecoverable once pinned, so uploads are scanned first.
package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/octofacehub/octoface/internal/encoding"
	"github.com/octofacehub/octoface/internal/model"
	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
	"github.com/zricethezav/gitleaks/v8/sources"
)

// LeakScanner detects secrets with the default gitleaks ruleset.
type LeakScanner struct {
	detector *detect.Detector
}

// ScanResult contains the results of a leak scan.
type ScanResult struct {
	Findings    []Finding
	HasLeaks    bool
	ScannedPath string
}

// Finding represents one detected secret.
type Finding struct {
	RuleID      string
	Description string
	File        string
	Line        int
	Secret      string // redacted
}

// NewLeakScanner creates a scanner with the default gitleaks rules.
func NewLeakScanner() (*LeakScanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks config: %w", err)
	}

	detector.Redact = 80

	return &LeakScanner{detector: detector}, nil
}

// ScanDirectory scans a model directory before it is uploaded.
func (s *LeakScanner) ScanDirectory(ctx context.Context, path string) (*ScanResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	source := &sources.Files{
		Path:   absPath,
		Config: &s.detector.Config,
		Sema:   s.detector.Sema,
	}

	findings, err := s.detector.DetectSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return s.buildResult(findings, absPath), nil
}

// ScanFileSet scans the generated registry files before they are
// committed, catching secrets pasted into descriptions or tags. The set
// is materialized into a scratch directory because the detector works
// on files.
func (s *LeakScanner) ScanFileSet(ctx context.Context, fs model.FileSet) (*ScanResult, error) {
	dir, err := os.MkdirTemp("", "octoface-scan-*")
	if err != nil {
		return nil, fmt.Errorf("create scan directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	for _, p := range fs.Paths() {
		dest := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}

		if err := os.WriteFile(dest, fs[p], 0o600); err != nil {
			return nil, err
		}
	}

	result, err := s.ScanDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}

	// Report registry-relative paths, not scratch-directory ones.
	for i := range result.Findings {
		if rel, relErr := filepath.Rel(dir, result.Findings[i].File); relErr == nil {
			result.Findings[i].File = filepath.ToSlash(rel)
		}
	}

	result.ScannedPath = "staged file set"

	return result, nil
}

// LoadGitleaksIgnore loads ignore patterns from a .gitleaksignore next
// to the scanned directory, when present.
func (s *LeakScanner) LoadGitleaksIgnore(repoPath string) error {
	ignorePath := filepath.Join(repoPath, ".gitleaksignore")
	if encoding.FileExists(ignorePath) {
		return s.detector.AddGitleaksIgnore(ignorePath)
	}

	return nil
}

func (s *LeakScanner) buildResult(findings []report.Finding, path string) *ScanResult {
	result := &ScanResult{
		ScannedPath: path,
		HasLeaks:    len(findings) > 0,
		Findings:    make([]Finding, 0, len(findings)),
	}

	for _, f := range findings {
		result.Findings = append(result.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			File:        f.File,
			Line:        f.StartLine,
			Secret:      f.Secret, // already redacted by the detector
		})
	}

	return result
}

// FormatFindings formats findings for display.
func FormatFindings(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\nFound %d potential secret(s):\n\n", len(findings)))

	for i, f := range findings {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, f.Description))
		sb.WriteString(fmt.Sprintf("     Rule: %s\n", f.RuleID))
		sb.WriteString(fmt.Sprintf("     File: %s:%d\n", f.File, f.Line))
		sb.WriteString(fmt.Sprintf("     Secret: %s\n\n", f.Secret))
	}

	return sb.String()
}
