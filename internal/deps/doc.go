// Package deps reports whether the external binaries mergeflow shells out
// to can be found.
package deps
