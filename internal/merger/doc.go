// Package merger remuxes a base container with injected audio and subtitle
// tracks into a Matroska output.
//
// Every stream is copied; nothing is re-encoded except base mov_text
// subtitles, which Matroska cannot carry and which are converted to SubRip.
// Output is written to a hidden temporary file next to the destination and
// renamed into place only after ffmpeg succeeds.
package merger
