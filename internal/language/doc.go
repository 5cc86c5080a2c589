// Package language normalizes language codes for track metadata and guesses
// the language of untagged subtitle text.
package language
