package main

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"zap-server/internal/types"
	"zap-server/internal/util"
	"zap-server/internal/zaps"
)

// Singleflight groups for deduplicating concurrent requests.
// When multiple goroutines request the same data simultaneously,
// only one actually fetches while others wait and share the result.
var (
	zapGroup       singleflight.Group
	relayListGroup singleflight.Group
)

// zapKey builds a stable key for a zap invocation: recipient, target and
// amount. Two identical invocations in flight share one pipeline run, so a
// double-submitted form cannot request two invoices.
func zapKey(req zaps.Request) string {
	target := ""
	if req.Target != nil {
		if req.Target.IsCoordinate() {
			target = req.Target.Coordinate()
		} else {
			target = req.Target.EventID
		}
	}
	return req.Recipient + "|" + target + "|" + strconv.FormatInt(req.AmountMsats, 10)
}

// RunZapDeduplicated runs the pipeline through the singleflight group and
// returns the validated invoice. Duplicate concurrent invocations share the
// first run's outcome, invoice and error alike.
func RunZapDeduplicated(ctx context.Context, pipeline *zaps.Pipeline, req zaps.Request) (string, error) {
	result, err, shared := zapGroup.Do(zapKey(req), func() (interface{}, error) {
		var invoice string
		err := pipeline.Run(ctx, req, func(inv string) {
			invoice = inv
		})
		return invoice, err
	})

	if shared {
		slog.Debug("singleflight: shared zap invocation", "recipient", util.ShortID(req.Recipient))
	}

	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// fetchRelayListShared fetches a relay list with singleflight deduplication.
func fetchRelayListShared(ctx context.Context, fetcher *RelayFetcher, pubkey string) *types.RelayList {
	result, _, shared := relayListGroup.Do(pubkey, func() (interface{}, error) {
		return fetcher.FetchRelayList(ctx, pubkey), nil
	})

	if shared {
		slog.Debug("singleflight: shared relay list fetch", "pubkey", util.ShortID(pubkey))
	}

	if result == nil {
		return nil
	}
	list, _ := result.(*types.RelayList)
	return list
}
