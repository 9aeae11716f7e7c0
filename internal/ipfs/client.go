// Package ipfs is the content-store adapter: put bytes, get a content
// identifier back. Uploads shell out to the web3.storage `w3` CLI, which
// owns credentials and chunking; downloads stream from the public
// gateway. The store is content-addressed, so the same bytes always
// resolve to the same CID and an acknowledged upload is durable.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/octofacehub/octoface/internal/model"
)

// DefaultGateway serves public reads of stored content.
const DefaultGateway = "https://w3s.link/ipfs"

// DefaultSpace is the storage space created on first-time setup.
const DefaultSpace = "octoface-space"

// ErrW3NotFound means the w3 CLI is not installed or not on PATH.
var ErrW3NotFound = errors.New("w3 CLI not found; install it with: npm install -g @web3-storage/w3cli")

// Client talks to the content store.
type Client struct {
	// W3Path is the w3 executable; empty means look up "w3" on PATH.
	W3Path string

	// Gateway is the read endpoint, defaulting to DefaultGateway.
	Gateway string

	// HTTPClient is used for gateway reads; nil means http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient returns a client with default paths and gateway.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{Logger: logger}
}

// w3UpOutput is the JSON document `w3 up --json` prints.
type w3UpOutput struct {
	Root struct {
		CID string `json:"/"`
	} `json:"root"`
}

// Put uploads a file or directory tree and returns its content
// identifier.
func (c *Client) Put(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("upload source: %w", err)
	}

	c.Logger.Info("uploading to IPFS", slog.String("path", abs))

	stdout, err := c.runW3(ctx, "up", "--json", abs)
	if err != nil {
		return "", err
	}

	// w3 may print progress lines before the JSON document; the result
	// is the last non-empty line.
	var out w3UpOutput

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &out); err != nil {
		return "", fmt.Errorf("parse w3 output: %w", err)
	}

	cid := out.Root.CID
	if !model.ValidCID(cid) {
		return "", fmt.Errorf("w3 returned an unusable content identifier %q", cid)
	}

	c.Logger.Info("upload complete", slog.String("cid", cid))

	return cid, nil
}

// SetupStatus describes the local w3 CLI credential state.
type SetupStatus struct {
	LoggedIn bool
	HasSpace bool
}

// Status probes the local w3 CLI: whether a login identity exists and
// whether a storage space is registered for uploads.
func (c *Client) Status(ctx context.Context) (SetupStatus, error) {
	if _, err := c.w3Binary(); err != nil {
		return SetupStatus{}, err
	}

	// `w3 did` exits non-zero until a login has created an agent key.
	out, err := c.runW3(ctx, "did")
	if err != nil || !strings.Contains(out, "did:key:") {
		return SetupStatus{}, nil
	}

	spaces, err := c.runW3(ctx, "space", "ls")
	if err != nil {
		return SetupStatus{LoggedIn: true}, fmt.Errorf("list w3 spaces: %w", err)
	}

	return SetupStatus{LoggedIn: true, HasSpace: strings.TrimSpace(spaces) != ""}, nil
}

// Login starts the w3 email verification flow. w3 mails a link to the
// address; the login completes once it is clicked.
func (c *Client) Login(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("an email address is required for w3 login")
	}

	c.Logger.Info("starting w3 login", slog.String("email", email))

	_, err := c.runW3(ctx, "login", "--email", email)

	return err
}

// EnsureSpace creates the named storage space and selects it for
// subsequent uploads.
func (c *Client) EnsureSpace(ctx context.Context, name string) error {
	if _, err := c.runW3(ctx, "space", "create", name); err != nil {
		return err
	}

	if _, err := c.runW3(ctx, "space", "use", name); err != nil {
		return err
	}

	c.Logger.Info("w3 space ready", slog.String("space", name))

	return nil
}

// runW3 executes one w3 CLI command, returning stdout. A non-zero exit
// surfaces stderr as the error message.
func (c *Client) runW3(ctx context.Context, args ...string) (string, error) {
	w3, err := c.w3Binary()
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, w3, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}

		return "", fmt.Errorf("w3 %s failed: %s", args[0], msg)
	}

	return stdout.String(), nil
}

// Get streams the content behind a CID from the gateway into w.
func (c *Client) Get(ctx context.Context, cid string, w io.Writer) error {
	if !model.ValidCID(cid) {
		return fmt.Errorf("invalid content identifier %q", cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayURL(cid), nil)
	if err != nil {
		return err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s for %s", resp.Status, cid)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("gateway read: %w", err)
	}

	return nil
}

// GetToFile downloads the content behind a CID into a file, creating
// parent directories as needed.
func (c *Client) GetToFile(ctx context.Context, cid, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if err := c.Get(ctx, cid, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return err
	}

	return f.Close()
}

// GatewayURL returns the public read URL for a CID.
func (c *Client) GatewayURL(cid string) string {
	gw := c.Gateway
	if gw == "" {
		gw = DefaultGateway
	}

	return strings.TrimSuffix(gw, "/") + "/" + cid
}

func (c *Client) w3Binary() (string, error) {
	if c.W3Path != "" {
		return c.W3Path, nil
	}

	w3, err := exec.LookPath("w3")
	if err != nil {
		return "", ErrW3NotFound
	}

	return w3, nil
}
