package textutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketPattern = regexp.MustCompile(`[\[\(\{][^\]\)\}]*[\]\)\}]`)
	// episodeMarker matches the first season/episode/resolution token; the
	// series title is whatever precedes it.
	episodeMarker = regexp.MustCompile(`(?i)(\bs\d+|\bseason\s*\d+|\be(p(isode)?)?\s*\d+|\b\d{3,4}p\b|\b\d+\b)`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// SeriesTitle extracts a normalized series title from a release label:
// extension, bracketed tags, and everything from the first episode marker on
// are dropped, then accents, punctuation, and case are folded.
func SeriesTitle(label string) string {
	s := strings.TrimSuffix(label, filepath.Ext(label))
	s = bracketPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(s)
	if loc := episodeMarker.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return foldTitle(s)
}

// TitleSimilarity returns the Jaro-Winkler similarity of the series titles
// of two labels in [0,1]. Labels with no recoverable title on either side
// score 1 so that bare numbered files are not flagged as mismatched.
func TitleSimilarity(a, b string) float64 {
	ta, tb := SeriesTitle(a), SeriesTitle(b)
	if ta == "" || tb == "" {
		return 1
	}
	return float64(edlib.JaroWinklerSimilarity(ta, tb))
}

// stripMarks removes combining accents, so "Pokémon" becomes "Pokemon".
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		return folded
	}
	return s
}

func foldTitle(s string) string {
	s = strings.ToLower(stripMarks(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(b.String(), " "))
}
