package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/go-github/v67/github"
)

// AuthError indicates the GitHub credential is absent, malformed, or was
// rejected by the API. Fatal; the user must fix the credential and retry.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// PermissionCheckError indicates the collaborator-permission probe could
// not produce a definitive answer. Callers degrade to the no-write-access
// path instead of aborting.
type PermissionCheckError struct {
	Login string
	Err   error
}

func (e *PermissionCheckError) Error() string {
	return fmt.Sprintf("could not determine write access for %s: %v", e.Login, e.Err)
}

func (e *PermissionCheckError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient remote failures. Only this class loops
// locally; after the retry budget it escalates unchanged.
type RetryableError struct {
	Operation string
	Err       error
	Attempts  int
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// ForkTimeoutError indicates the asynchronous fork provisioning did not
// become usable within the polling budget. Fatal, resumable on re-run.
type ForkTimeoutError struct {
	Owner  string
	Repo   string
	Waited time.Duration
}

func (e *ForkTimeoutError) Error() string {
	return fmt.Sprintf("fork %s/%s not ready after %s; it may still be provisioning, re-run to continue",
		e.Owner, e.Repo, e.Waited.Round(time.Second))
}

// OperationTimeoutError indicates the overall submission budget was
// exceeded. Fatal, resumable on re-run.
type OperationTimeoutError struct {
	Step   Step
	Budget time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("operation budget of %s exceeded during %s", e.Budget, e.Step)
}

func (e *OperationTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IndexCorruptionError indicates a produced index update would alter a
// key belonging to another owner. Fatal, never auto-resolved.
type IndexCorruptionError struct {
	Key    string
	Detail string
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index corruption detected at key %q: %s", e.Key, e.Detail)
}

// SubmissionError is the orchestrator's terminal failure wrapper. It
// names the step that failed and whether re-running resumes the work.
type SubmissionError struct {
	Step      Step
	Err       error
	Resumable bool
}

func (e *SubmissionError) Error() string {
	if e.Resumable {
		return fmt.Sprintf("submission failed at step %s: %v (re-running the same command will continue from where it left off)",
			e.Step, e.Err)
	}

	return fmt.Sprintf("submission failed at step %s: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether a remote-call failure is transient:
// network errors, 5xx responses, and rate limits. 4xx responses are
// deterministic and never retried.
func isRetryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	if resp != nil {
		return resp.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// go-github wraps transport failures in *url.Error, which implements
	// net.Error; anything else without a response is treated as transport
	// trouble too.
	var ghErr *github.ErrorResponse
	return !errors.As(err, &ghErr)
}

// statusCode extracts the HTTP status from a go-github response or error,
// 0 when neither carries one.
func statusCode(resp *github.Response, err error) int {
	if resp != nil {
		return resp.StatusCode
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}

	return 0
}
