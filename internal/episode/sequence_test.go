package episode_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"mergeflow/internal/episode"
)

type labelled string

func (l labelled) Info() episode.ParsedInfo { return episode.Parse(string(l)) }

func TestSequenceOrders(t *testing.T) {
	items := []labelled{
		"S01E02 1080p",
		"S01E01 720p",
		"S01E02 720p",
		"S01E01 1080p",
		"S02E01 480p",
	}

	byEpisode := episode.Sequence(items, episode.OrderByEpisode)
	wantEpisode := []labelled{"S01E01 720p", "S01E01 1080p", "S01E02 720p", "S01E02 1080p", "S02E01 480p"}
	if diff := cmp.Diff(wantEpisode, byEpisode); diff != "" {
		t.Fatalf("episode order mismatch (-want +got):\n%s", diff)
	}

	byQuality := episode.Sequence(items, episode.OrderByQuality)
	wantQuality := []labelled{"S01E01 720p", "S01E02 720p", "S01E01 1080p", "S01E02 1080p", "S02E01 480p"}
	if diff := cmp.Diff(wantQuality, byQuality); diff != "" {
		t.Fatalf("quality order mismatch (-want +got):\n%s", diff)
	}

	if items[0] != "S01E02 1080p" {
		t.Fatal("Sequence must not reorder its input")
	}
}

func TestParseOrder(t *testing.T) {
	for input, want := range map[string]episode.Order{
		"":        episode.OrderByEpisode,
		"per_ep":  episode.OrderByEpisode,
		"Quality": episode.OrderByQuality,
		"group":   episode.OrderByQuality,
	} {
		got, err := episode.ParseOrder(input)
		if err != nil || got != want {
			t.Fatalf("ParseOrder(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := episode.ParseOrder("random"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
