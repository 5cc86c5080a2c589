package matcher

import (
	"slices"

	"mergeflow/internal/episode"
	"mergeflow/internal/media"
	"mergeflow/internal/textutil"
)

// Pair joins the source and target file sharing one key. Either side may be
// nil; only pairs with both sides are processed.
type Pair struct {
	Key    episode.Key
	Source *media.File
	Target *media.File
	// TitleSimilarity compares the series titles of both labels, in [0,1].
	// It is informational; a low score never prevents a match.
	TitleSimilarity float64
}

// Valid reports a pair with both sides present.
func (p Pair) Valid() bool {
	return p.Source != nil && p.Target != nil
}

// Result is the outcome of Match.
type Result struct {
	// Pairs holds one entry per key in the union, ascending by key.
	Pairs            []Pair
	DroppedSources   []media.File
	DroppedTargets   []media.File
	UnmatchedSources int
	UnmatchedTargets int
}

// Valid returns the pairs with both sides present, in key order.
func (r Result) Valid() []Pair {
	out := make([]Pair, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

// DroppedDuplicates counts files discarded because their key was taken.
func (r Result) DroppedDuplicates() int {
	return len(r.DroppedSources) + len(r.DroppedTargets)
}

// Match pairs sources with targets by (season, episode).
func Match(sources, targets []media.File) Result {
	var result Result
	sourceByKey, droppedSources := index(sources)
	targetByKey, droppedTargets := index(targets)
	result.DroppedSources = droppedSources
	result.DroppedTargets = droppedTargets

	keys := make([]episode.Key, 0, len(sourceByKey)+len(targetByKey))
	for key := range sourceByKey {
		keys = append(keys, key)
	}
	for key := range targetByKey {
		if _, ok := sourceByKey[key]; !ok {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b episode.Key) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})

	result.Pairs = make([]Pair, 0, len(keys))
	for _, key := range keys {
		pair := Pair{Key: key, Source: sourceByKey[key], Target: targetByKey[key]}
		switch {
		case pair.Valid():
			pair.TitleSimilarity = textutil.TitleSimilarity(pair.Source.Label(), pair.Target.Label())
		case pair.Source != nil:
			result.UnmatchedSources++
		default:
			result.UnmatchedTargets++
		}
		result.Pairs = append(result.Pairs, pair)
	}
	return result
}

func index(files []media.File) (map[episode.Key]*media.File, []media.File) {
	byKey := make(map[episode.Key]*media.File, len(files))
	var dropped []media.File
	for i := range files {
		key := files[i].Key()
		if _, taken := byKey[key]; taken {
			dropped = append(dropped, files[i])
			continue
		}
		byKey[key] = &files[i]
	}
	return byKey, dropped
}
