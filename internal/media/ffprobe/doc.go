// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// It has no mergeflow-specific dependencies: Args builds the command line and
// Decode parses the payload, leaving process execution to the caller.
package ffprobe
