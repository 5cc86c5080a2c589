// Package pipeline processes matched pairs for one run.
//
// For each pair the orchestrator downloads the target, extracts its audio
// and text subtitle streams, downloads and probes the source, normalizes the
// extracted tracks to the source's audio profile, merges them into the
// source, and uploads the result. Steps run strictly in that order and the
// run context is checked before each step and after each blocking call.
//
// All artifacts of a run live in one workdir.Scope. Intermediate files are
// deleted as soon as a later step no longer needs them, a failed pair loses
// its whole directory, and the scope is released when Run returns whether
// the run completed, failed, panicked, or was cancelled. A pair failure is
// reported and the run continues; cancellation stops the run.
package pipeline
