// Package matcher pairs source and target files by their season/episode
// key.
//
// The first file seen for a key wins on each side; later files with the same
// key are dropped and counted. Quality never takes part in the key.
package matcher
