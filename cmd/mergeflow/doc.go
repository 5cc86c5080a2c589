// Package main hosts the mergeflow CLI entrypoint and command graph.
//
// The Cobra command tree exposes the label parser, matcher and prober for
// ad-hoc inspection, runs one-shot local merges, starts the daemon, and
// reads status and run history. Configuration resolution and logger setup
// live in commandContext so subcommands stay declarative.
package main
