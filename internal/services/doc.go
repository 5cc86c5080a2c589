// Package services defines shared utilities consumed by the pipeline steps
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp owner IDs, run IDs, pair positions, stage
//     names, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     a taxonomy kind (probe, extract, merge, ...) that events, metrics, and
//     history records can report without string matching.
//
// Use these helpers when wiring new step logic so error handling and
// observability stay uniform across the pipeline.
package services
