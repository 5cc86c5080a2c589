// Package fileutil copies content with cancellation, progress reporting and
// integrity checks.
package fileutil
