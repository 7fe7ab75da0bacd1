package zaps

import (
	"reflect"
	"testing"
)

// passthroughRanker returns candidates unchanged, simulating all-equal scores.
type passthroughRanker struct{}

func (passthroughRanker) Rank(relays []string) []string { return relays }

// reverseRanker inverts the input order so tests can observe that ranking
// happens before the per-source cap is applied.
type reverseRanker struct{}

func (reverseRanker) Rank(relays []string) []string {
	out := make([]string, len(relays))
	for i, r := range relays {
		out[len(relays)-1-i] = r
	}
	return out
}

func TestBuildRelaySelectionPriorityOrder(t *testing.T) {
	src := RelaySources{
		Context:       []string{"wss://ctx.example"},
		SenderWrite:   []string{"wss://sender.example"},
		RecipientRead: []string{"wss://recipient.example"},
		ContentRelays: []string{"wss://content.example"},
	}

	got := BuildRelaySelection(passthroughRanker{}, src)
	want := []string{
		"wss://ctx.example",
		"wss://sender.example",
		"wss://recipient.example",
		"wss://content.example",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestBuildRelaySelectionCapsEachSource(t *testing.T) {
	src := RelaySources{
		SenderWrite: []string{
			"wss://a.example", "wss://b.example", "wss://c.example",
			"wss://d.example", "wss://e.example", "wss://f.example",
		},
	}

	got := BuildRelaySelection(passthroughRanker{}, src)
	if len(got) != topRelaysPerSource {
		t.Fatalf("selection length = %d, want %d", len(got), topRelaysPerSource)
	}
	want := []string{"wss://a.example", "wss://b.example", "wss://c.example", "wss://d.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestBuildRelaySelectionRanksBeforeCapping(t *testing.T) {
	src := RelaySources{
		Context: []string{
			"wss://a.example", "wss://b.example", "wss://c.example",
			"wss://d.example", "wss://e.example",
		},
	}

	// Reverse ranking: the "best" relays are the last candidates, and the
	// cap must keep those, not the first four of the raw input.
	got := BuildRelaySelection(reverseRanker{}, src)
	want := []string{"wss://e.example", "wss://d.example", "wss://c.example", "wss://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestBuildRelaySelectionDeduplicatesKeepingFirst(t *testing.T) {
	shared := "wss://shared.example"
	src := RelaySources{
		Context:       []string{shared, "wss://ctx.example"},
		SenderWrite:   []string{shared, "wss://sender.example"},
		RecipientRead: []string{shared},
	}

	got := BuildRelaySelection(passthroughRanker{}, src)
	want := []string{shared, "wss://ctx.example", "wss://sender.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestBuildRelaySelectionExtrasUncappedAndLast(t *testing.T) {
	src := RelaySources{
		Context: []string{"wss://ctx.example"},
		Extra: []string{
			"wss://x1.example", "wss://x2.example", "wss://x3.example",
			"wss://x4.example", "wss://x5.example", "wss://ctx.example",
		},
	}

	got := BuildRelaySelection(passthroughRanker{}, src)
	want := []string{
		"wss://ctx.example",
		"wss://x1.example", "wss://x2.example", "wss://x3.example",
		"wss://x4.example", "wss://x5.example",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}

func TestBuildRelaySelectionAllEmpty(t *testing.T) {
	got := BuildRelaySelection(passthroughRanker{}, RelaySources{})
	if len(got) != 0 {
		t.Errorf("selection = %v, want empty", got)
	}
}

func TestBuildRelaySelectionSkipsEmptyStrings(t *testing.T) {
	src := RelaySources{
		Context: []string{"", "wss://ctx.example", ""},
		Extra:   []string{""},
	}

	got := BuildRelaySelection(passthroughRanker{}, src)
	want := []string{"wss://ctx.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("selection = %v, want %v", got, want)
	}
}
