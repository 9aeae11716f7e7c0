// Package core implements the submission workflow engine for the
// OctoFaceHub model registry.
//
// This package contains the logic separated from UI concerns: resolving
// the acting GitHub identity and its permissions, building the canonical
// registry file set for a model, managing forks and working branches,
// merging the shared model-map.json index, and orchestrating the whole
// submission into a pull request.
//
// # Design Principles
//
//   - Functions return errors instead of printing to stdout/stderr
//   - All state a submission needs travels in a [SubmissionContext]
//     value; nothing is ambient
//   - Remote mutations are idempotency-checked before executing, so a
//     re-run resumes instead of duplicating work
//
// # Submission
//
// [Submit] is the entry point. It moves through identity resolution,
// routing (direct branch for collaborators, fork otherwise), branch
// management, atomic staging of the file set plus the merged index, and
// pull-request creation or update. Any failure is wrapped in a
// [SubmissionError] naming the step it happened in.
package core
