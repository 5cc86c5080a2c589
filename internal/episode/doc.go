// Package episode derives season, episode, and quality numbers from free-form
// labels such as filenames or captions, and orders labelled items the way a
// release sequence is expected to be read.
//
// Parsing is pure and total: every input, including the empty string, yields a
// ParsedInfo with Season >= 1 and non-negative Episode and Quality values.
package episode
