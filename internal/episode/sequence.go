package episode

import (
	"fmt"
	"slices"
	"strings"
)

// Order selects how Sequence arranges items.
type Order string

const (
	// OrderByEpisode sorts by season, episode, then quality so each episode's
	// qualities sit together.
	OrderByEpisode Order = "episode"
	// OrderByQuality sorts by season, quality, then episode so each quality
	// forms a contiguous run.
	OrderByQuality Order = "quality"
)

// ParseOrder accepts the CLI/API spellings of an Order.
func ParseOrder(value string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "episode", "per_ep", "per-episode":
		return OrderByEpisode, nil
	case "quality", "group":
		return OrderByQuality, nil
	default:
		return "", fmt.Errorf("unknown sequence order %q", value)
	}
}

// Labeled is anything that exposes a parsed label.
type Labeled interface {
	Info() ParsedInfo
}

// Sequence returns a stably sorted copy of items.
func Sequence[T Labeled](items []T, order Order) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int {
		return compare(a.Info(), b.Info(), order)
	})
	return out
}

func compare(a, b ParsedInfo, order Order) int {
	keys := func(p ParsedInfo) [3]int {
		if order == OrderByQuality {
			return [3]int{p.Season, p.Quality, p.Episode}
		}
		return [3]int{p.Season, p.Episode, p.Quality}
	}
	ka, kb := keys(a), keys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			if ka[i] < kb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
