package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detect guesses the dominant language of lines by majority vote over the
// per-line detections. Lines too short to classify or without any script
// are ignored. Returns an ISO 639-1 code, or "" when nothing was detected.
func Detect(lines []string) string {
	votes := make(map[string]int)
	best, bestCount := "", 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 8 {
			continue
		}
		info := whatlanggo.Detect(line)
		if info.Script == nil {
			continue
		}
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		votes[code]++
		if votes[code] > bestCount || (votes[code] == bestCount && code < best) {
			best, bestCount = code, votes[code]
		}
	}
	return best
}
