package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"zap-server/internal/nostr"
	"zap-server/internal/scoreboard"
	"zap-server/internal/types"
	"zap-server/internal/util"
	"zap-server/internal/zaps"
)

// One-shot relay fetches: dial, REQ, read until a match or EOSE, close.
// Connection pooling is deliberately out of scope; the zap flow only needs
// a handful of lookups per invocation.

const (
	relayFetchTimeout    = 6 * time.Second
	relayHandshakeWindow = 5 * time.Second
)

// RelayFetcher performs one-shot subscription fetches against a set of
// relays, feeding response times and failures into the scoreboard so relay
// ranking reflects observed behavior.
type RelayFetcher struct {
	scores scoreboard.Store
}

// NewRelayFetcher creates a fetcher reporting into the given scoreboard.
func NewRelayFetcher(scores scoreboard.Store) *RelayFetcher {
	return &RelayFetcher{scores: scores}
}

// FetchProfile fetches the recipient's kind 0 profile from the profile relays.
// Returns nil when no profile is found anywhere.
func (f *RelayFetcher) FetchProfile(ctx context.Context, pubkey string) *types.ProfileInfo {
	evt := f.fetchNewest(ctx, GetRelaysConfig().ProfileRelays, map[string]interface{}{
		"kinds":   []int{0},
		"authors": []string{pubkey},
		"limit":   1,
	})
	if evt == nil {
		return nil
	}

	var profile types.ProfileInfo
	if err := json.Unmarshal([]byte(evt.Content), &profile); err != nil {
		slog.Warn("unparseable profile content", "pubkey", util.ShortID(pubkey), "error", err)
		return nil
	}
	return &profile
}

// FetchRelayList fetches the recipient's kind 10002 relay list (NIP-65).
// Returns nil when the recipient publishes none.
func (f *RelayFetcher) FetchRelayList(ctx context.Context, pubkey string) *types.RelayList {
	evt := f.fetchNewest(ctx, GetRelaysConfig().ProfileRelays, map[string]interface{}{
		"kinds":   []int{10002},
		"authors": []string{pubkey},
		"limit":   1,
	})
	if evt == nil {
		return nil
	}
	return parseRelayList(evt.Tags)
}

// FetchEventByID fetches a single event from the default relays. The
// returned event's RelaysSeen records which relays served it.
func (f *RelayFetcher) FetchEventByID(ctx context.Context, eventID string) *types.Event {
	return f.fetchNewest(ctx, GetRelaysConfig().DefaultRelays, map[string]interface{}{
		"ids":   []string{eventID},
		"limit": 1,
	})
}

// maxReceiptsPerFetch bounds the kind 9735 listing per relay
const maxReceiptsPerFetch = 50

// FetchZapReceipts fetches kind 9735 zap receipts referencing the target
// from the default relays, deduplicated by event id across relays.
func (f *RelayFetcher) FetchZapReceipts(ctx context.Context, target *zaps.TargetRef) []*types.Event {
	filter := map[string]interface{}{
		"kinds": []int{zaps.KindZapReceipt},
		"limit": maxReceiptsPerFetch,
	}
	if target.IsCoordinate() {
		filter["#a"] = []string{target.Coordinate()}
	} else {
		filter["#e"] = []string{target.EventID}
	}
	return f.fetchAll(ctx, GetRelaysConfig().DefaultRelays, filter)
}

// parseRelayList builds a RelayList from NIP-65 r tags. A tag without a
// marker counts for both read and write.
func parseRelayList(tags [][]string) *types.RelayList {
	list := &types.RelayList{}
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		relayURL := nostr.NormalizeRelayURL(tag[1])
		if relayURL == "" {
			continue
		}

		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			list.Read = append(list.Read, relayURL)
		case "write":
			list.Write = append(list.Write, relayURL)
		default:
			list.Read = append(list.Read, relayURL)
			list.Write = append(list.Write, relayURL)
		}
	}

	if len(list.Read) == 0 && len(list.Write) == 0 {
		return nil
	}
	return list
}

// fetchNewest queries every relay in parallel and returns the newest valid
// matching event, with RelaysSeen listing every relay that served it.
func (f *RelayFetcher) fetchNewest(ctx context.Context, relays []string, filter map[string]interface{}) *types.Event {
	if len(relays) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, relayFetchTimeout)
	defer cancel()

	var mu sync.Mutex
	var newest *types.Event
	seenOn := make(map[string][]string)

	var wg sync.WaitGroup
	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()

			relayFetchesTotal.Add(1)
			start := time.Now()
			evt, err := fetchFromRelay(ctx, relayURL, filter)
			if err != nil {
				relayFetchErrorsTotal.Add(1)
				f.scores.RecordFailure(relayURL)
				slog.Debug("relay fetch failed", "relay", relayURL, "error", err)
				return
			}
			f.scores.RecordSuccess(relayURL, time.Since(start))

			if evt == nil {
				return
			}
			mu.Lock()
			seenOn[evt.ID] = append(seenOn[evt.ID], relayURL)
			if newest == nil || evt.CreatedAt > newest.CreatedAt {
				newest = evt
			}
			mu.Unlock()
		}(relayURL)
	}
	wg.Wait()

	if newest != nil {
		newest.RelaysSeen = seenOn[newest.ID]
	}
	return newest
}

// fetchAll queries every relay in parallel and merges all valid matching
// events, deduplicated by event id. Order across relays is not defined;
// callers sort.
func (f *RelayFetcher) fetchAll(ctx context.Context, relays []string, filter map[string]interface{}) []*types.Event {
	if len(relays) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, relayFetchTimeout)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var events []*types.Event

	var wg sync.WaitGroup
	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()

			relayFetchesTotal.Add(1)
			start := time.Now()
			batch, err := fetchAllFromRelay(ctx, relayURL, filter)
			if err != nil {
				relayFetchErrorsTotal.Add(1)
				f.scores.RecordFailure(relayURL)
				slog.Debug("relay fetch failed", "relay", relayURL, "error", err)
				return
			}
			f.scores.RecordSuccess(relayURL, time.Since(start))

			mu.Lock()
			for _, evt := range batch {
				if seen[evt.ID] {
					continue
				}
				seen[evt.ID] = true
				events = append(events, evt)
			}
			mu.Unlock()
		}(relayURL)
	}
	wg.Wait()

	return events
}

// fetchAllFromRelay opens a connection, subscribes with the filter, and
// collects valid events until EOSE.
func fetchAllFromRelay(ctx context.Context, relayURL string, filter map[string]interface{}) ([]*types.Event, error) {
	dialer := websocket.Dialer{HandshakeTimeout: relayHandshakeWindow}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	subID := "zap-receipts"
	reqJSON, err := json.Marshal([]interface{}{"REQ", subID, filter})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqJSON); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(relayFetchTimeout)
	}
	conn.SetReadDeadline(deadline)

	var events []*types.Event
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var msg []json.RawMessage
		if err := json.Unmarshal(message, &msg); err != nil || len(msg) < 2 {
			continue
		}

		var msgType string
		json.Unmarshal(msg[0], &msgType)

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var evt types.Event
			if err := json.Unmarshal(msg[2], &evt); err != nil {
				continue
			}
			if evt.ID == "" || !nostr.ValidateEventSignature(&evt) {
				slog.Debug("dropping event with bad signature", "relay", relayURL, "event_id", util.ShortID(evt.ID))
				continue
			}
			events = append(events, &evt)

		case "EOSE":
			closeMsg, _ := json.Marshal([]interface{}{"CLOSE", subID})
			conn.WriteMessage(websocket.TextMessage, closeMsg)
			return events, nil

		case "NOTICE":
			var notice string
			if len(msg) >= 2 {
				json.Unmarshal(msg[1], &notice)
			}
			slog.Debug("relay notice", "relay", relayURL, "notice", notice)
		}
	}
}

// fetchFromRelay opens a connection, subscribes with the filter, and reads
// until the first matching event or EOSE. A nil event with nil error means
// the relay answered but had nothing.
func fetchFromRelay(ctx context.Context, relayURL string, filter map[string]interface{}) (*types.Event, error) {
	dialer := websocket.Dialer{HandshakeTimeout: relayHandshakeWindow}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	subID := "zap-fetch"
	req := []interface{}{"REQ", subID, filter}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqJSON); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(relayFetchTimeout)
	}
	conn.SetReadDeadline(deadline)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		var msg []json.RawMessage
		if err := json.Unmarshal(message, &msg); err != nil || len(msg) < 2 {
			continue
		}

		var msgType string
		json.Unmarshal(msg[0], &msgType)

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var evt types.Event
			if err := json.Unmarshal(msg[2], &evt); err != nil {
				continue
			}
			if evt.ID == "" || !nostr.ValidateEventSignature(&evt) {
				slog.Debug("dropping event with bad signature", "relay", relayURL, "event_id", util.ShortID(evt.ID))
				continue
			}
			// Tell the relay we're done before hanging up
			closeMsg, _ := json.Marshal([]interface{}{"CLOSE", subID})
			conn.WriteMessage(websocket.TextMessage, closeMsg)
			return &evt, nil

		case "EOSE":
			return nil, nil

		case "NOTICE":
			var notice string
			if len(msg) >= 2 {
				json.Unmarshal(msg[1], &notice)
			}
			slog.Debug("relay notice", "relay", relayURL, "notice", notice)
		}
	}
}
