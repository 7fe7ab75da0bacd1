package zaps

import (
	"sync"

	"zap-server/internal/util"
)

// topRelaysPerSource bounds how many relays each source contributes, keeping
// the relays tag small while preferring the highest-scored endpoints.
const topRelaysPerSource = 4

// Ranker orders relay URLs by descending quality score. The ordering must be
// deterministic within a single call; tie-breaking is otherwise unspecified.
type Ranker interface {
	Rank(relays []string) []string
}

// RelaySources holds the candidate relays for a zap request, grouped by
// where they came from. Priority order on merge: Context, SenderWrite,
// RecipientRead, ContentRelays, then Extra (unranked, uncapped).
type RelaySources struct {
	Context       []string // relays from the surrounding browsing context
	SenderWrite   []string // the sender's write relays
	RecipientRead []string // the recipient's read relays
	ContentRelays []string // relays the zapped event was seen on
	Extra         []string // caller-supplied additions, passed through as-is
}

// BuildRelaySelection ranks each source independently, keeps the top
// entries of each, concatenates them in priority order plus the extras, and
// deduplicates preserving first occurrence. An empty source simply
// contributes nothing; there is no error path.
func BuildRelaySelection(ranker Ranker, src RelaySources) []string {
	sources := [][]string{src.Context, src.SenderWrite, src.RecipientRead, src.ContentRelays}
	ranked := make([][]string, len(sources))

	// The four rankings are independent, so issue them concurrently and
	// join before merging.
	var wg sync.WaitGroup
	for i, candidates := range sources {
		if len(candidates) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, candidates []string) {
			defer wg.Done()
			ranked[i] = util.LimitSlice(ranker.Rank(candidates), topRelaysPerSource)
		}(i, candidates)
	}
	wg.Wait()

	// Ordered dedup with an explicit seen set so priority order is
	// deterministic regardless of map semantics.
	seen := make(map[string]bool)
	var selection []string
	appendUnique := func(relays []string) {
		for _, relay := range relays {
			if relay == "" || seen[relay] {
				continue
			}
			seen[relay] = true
			selection = append(selection, relay)
		}
	}

	for _, relays := range ranked {
		appendUnique(relays)
	}
	appendUnique(src.Extra)

	return selection
}
