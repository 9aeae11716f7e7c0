package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/go-github/v67/github"
)

// Timeouts applied to remote work. Each individual API call gets the
// short budget; a whole submission gets the long one, dominated by fork
// provisioning.
const (
	TimeoutShort  = 30 * time.Second
	TimeoutMedium = 2 * time.Minute
	TimeoutLong   = 5 * time.Minute
)

// WithShortTimeout creates a context for a single API call.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, TimeoutShort)
}

// WithSubmissionTimeout creates a context covering a full submission.
func WithSubmissionTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, TimeoutLong)
}

// SubmissionContext carries everything one submission needs: the API
// client, the registry coordinates, the resolved identity and the
// logger. It is built once per invocation and threaded explicitly;
// nothing reads ambient session state.
type SubmissionContext struct {
	Client         *github.Client
	Registry       Registry
	Login          string
	HasWriteAccess bool
	Logger         *slog.Logger
}

// NewSubmissionContext resolves the acting identity against the registry
// and returns a ready-to-use context value. See ResolveIdentity for how
// permission-probe failures degrade.
func NewSubmissionContext(ctx context.Context, client *github.Client, reg Registry, logger *slog.Logger) (*SubmissionContext, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ident, err := ResolveIdentity(ctx, client, reg, logger)
	if err != nil {
		return nil, err
	}

	return &SubmissionContext{
		Client:         client,
		Registry:       reg,
		Login:          ident.Login,
		HasWriteAccess: ident.HasWriteAccess,
		Logger:         logger,
	}, nil
}
