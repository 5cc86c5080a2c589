// Package media describes the files a session collects and the streams found
// inside them.
//
// File is an immutable descriptor whose episode numbers are parsed once from
// its label. Prober turns an ffprobe payload into StreamInfo values, marking
// subtitle streams as text based or image based so callers know which can be
// converted to SubRip.
package media
