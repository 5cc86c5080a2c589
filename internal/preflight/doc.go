// Package preflight provides readiness checks for the directories and
// binaries mergeflow depends on.
//
// The daemon runs RunAll at startup and refuses to serve when a check fails.
// The CLI "mergeflow status" command renders the same results for operators.
package preflight
