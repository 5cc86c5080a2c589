// Package daemon wires the long-running mergeflow service.
//
// A Daemon holds a single-instance lock in the state directory, refuses to
// start when preflight checks fail, sweeps work directories orphaned by a
// previous crash, and then runs the control API and the work-directory
// janitor until its context ends. Finished runs are recorded in the history
// store and announced through notifications.
package daemon
