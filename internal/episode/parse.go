package episode

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	qualityPattern = regexp.MustCompile(`(\d{3,4})[pP]`)
	seasonPattern  = regexp.MustCompile(`(?i)s(?:eason)?\s*(\d+)`)
	episodePattern = regexp.MustCompile(`(?i)e(?:p(?:isode)?)?\s*(\d+)`)
	digitsPattern  = regexp.MustCompile(`\d+`)
)

const defaultSeason = 1

// ParsedInfo holds the numbers extracted from a label.
type ParsedInfo struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
	Quality int `json:"quality"`
}

// Key identifies an episode independently of its quality.
type Key struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// Key returns the matching key for the parsed label.
func (p ParsedInfo) Key() Key {
	return Key{Season: p.Season, Episode: p.Episode}
}

// String renders the key as S01E02.
func (k Key) String() string {
	return fmt.Sprintf("S%02dE%02d", k.Season, k.Episode)
}

// Less orders keys by season, then episode.
func (k Key) Less(other Key) bool {
	if k.Season != other.Season {
		return k.Season < other.Season
	}
	return k.Episode < other.Episode
}

// Parse extracts season, episode, and quality from label.
//
// The first resolution token (e.g. 1080p) sets Quality, and every such token
// is removed before the season and episode patterns run so that "720p" is
// never read as an episode number. Season defaults to 1 and a literal season
// of 0 is clamped to 1. Episode falls back to the last bare number in the
// stripped label, then to 0. Numbers too large for an int count as absent.
func Parse(label string) ParsedInfo {
	info := ParsedInfo{Season: defaultSeason}

	if m := qualityPattern.FindStringSubmatch(label); m != nil {
		if q, ok := atoi(m[1]); ok {
			info.Quality = q
		}
	}
	clean := qualityPattern.ReplaceAllString(label, "")

	if m := seasonPattern.FindStringSubmatch(clean); m != nil {
		if s, ok := atoi(m[1]); ok && s > 0 {
			info.Season = s
		}
	}

	if m := episodePattern.FindStringSubmatch(clean); m != nil {
		if e, ok := atoi(m[1]); ok {
			info.Episode = e
		}
		return info
	}
	if nums := digitsPattern.FindAllString(clean, -1); len(nums) > 0 {
		if e, ok := atoi(nums[len(nums)-1]); ok {
			info.Episode = e
		}
	}
	return info
}

func atoi(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
