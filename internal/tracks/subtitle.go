package tracks

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"mergeflow/internal/language"
)

const (
	subtitleSampleBytes = 64 * 1024
	subtitleSampleLines = 200
)

var (
	subtitleTagPattern  = regexp.MustCompile(`<[^>]*>|\{[^}]*\}`)
	subtitleCuePattern  = regexp.MustCompile(`^\d+$`)
	subtitleTimePattern = regexp.MustCompile(`-->`)
)

// DetectSubtitleLanguage guesses the language of a SubRip file from its cue
// text. Returns an ISO 639-1 code, or "" when the text is inconclusive.
func DetectSubtitleLanguage(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(f, subtitleSampleBytes))
	for scanner.Scan() && len(lines) < subtitleSampleLines {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "\ufeff")
		if line == "" || subtitleCuePattern.MatchString(line) || subtitleTimePattern.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(subtitleTagPattern.ReplaceAllString(line, ""))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return language.Detect(lines)
}
