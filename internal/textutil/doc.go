// Package textutil provides text helpers for filename sanitization and
// series-title comparison.
//
// Titles are folded (accents stripped, punctuation dropped, lowercased)
// before comparison, and similarity uses Jaro-Winkler, which rewards shared
// prefixes the way release names tend to share them.
package textutil
