package hf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultAPIBase is the HuggingFace hub REST endpoint.
const DefaultAPIBase = "https://huggingface.co"

// Client downloads models from the HuggingFace hub.
type Client struct {
	// APIBase overrides the hub endpoint, mainly for tests.
	APIBase string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient returns a hub client with defaults.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{Logger: logger}
}

// modelInfo is the subset of the hub's model document we consume.
type modelInfo struct {
	ID       string `json:"id"`
	Siblings []struct {
		Filename string `json:"rfilename"`
	} `json:"siblings"`
}

// ModelDescription holds hub metadata usable as submission defaults.
type ModelDescription struct {
	ID    string
	Files []string
}

// Describe fetches the file list for a model.
func (c *Client) Describe(ctx context.Context, ref Ref) (*ModelDescription, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/models/%s", c.apiBase(), ref.ID())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("query hub: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("model %s not found on HuggingFace", ref.ID())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub returned %s for %s", resp.Status, ref.ID())
	}

	var info modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse hub response: %w", err)
	}

	desc := &ModelDescription{ID: info.ID}
	for _, s := range info.Siblings {
		desc.Files = append(desc.Files, s.Filename)
	}

	return desc, nil
}

// Download fetches every file of a model into destDir, preserving the
// hub's relative layout. Returns the directory the model landed in.
func (c *Client) Download(ctx context.Context, ref Ref, destDir string) (string, error) {
	desc, err := c.Describe(ctx, ref)
	if err != nil {
		return "", err
	}

	if len(desc.Files) == 0 {
		return "", fmt.Errorf("model %s has no files", ref.ID())
	}

	modelDir := filepath.Join(destDir, ref.Name)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}

	for _, file := range desc.Files {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		// The hub controls these names; refuse anything that would
		// land outside the model directory.
		clean := filepath.Clean(file)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return "", fmt.Errorf("hub file name %q escapes the model directory", file)
		}

		c.Logger.Info("downloading",
			slog.String("model", ref.ID()),
			slog.String("file", file),
		)

		if err := c.downloadFile(ctx, ref, file, filepath.Join(modelDir, clean)); err != nil {
			return "", err
		}
	}

	return modelDir, nil
}

func (c *Client) downloadFile(ctx context.Context, ref Ref, file, dest string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", c.apiBase(), ref.ID(), file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", file, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: hub returned %s", file, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", file, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)

		return fmt.Errorf("write %s: %w", dest, err)
	}

	return f.Close()
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return strings.TrimSuffix(c.APIBase, "/")
	}

	return DefaultAPIBase
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	return http.DefaultClient
}
