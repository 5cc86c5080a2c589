// Package tracks demuxes single streams out of a container and prepares
// them for injection.
//
// Extractor copies one audio or subtitle stream into its own file without
// re-encoding. Normalizer re-encodes audio to a profile matching the base
// file, enforces a size ceiling by recomputing the bitrate, and converts
// text subtitles to SubRip.
package tracks
