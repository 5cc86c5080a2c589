// Package session tracks one collection-and-processing session per owner.
//
// A session collects source files, then target files, then hands the
// matched pairs to a pipeline run in its own goroutine. The Registry keeps
// exactly one session per owner: starting a new one tears the old one down
// first, and every operation for an owner is serialized by a per-owner lock
// so concurrent requests never interleave. Owners never share state beyond
// their entries in the registry map.
package session
