package zaps

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"

	"zap-server/internal/types"
	"zap-server/internal/util"
)

// KindZapReceipt is the NIP-57 zap receipt event kind
const KindZapReceipt = 9735

// Receipt is one parsed zap receipt, ready for display.
type Receipt struct {
	ID          string // receipt event id
	Sender      string // zapper pubkey, from the embedded zap request
	AmountMsats int64
	Comment     string
	CreatedAt   int64
}

// ParseReceipt extracts the sender, amount and comment from a kind 9735
// receipt. The sender and comment live in the zap request the service echoed
// back in the description tag; the amount comes from the attached bolt11
// invoice, not from any tag the service could fabricate independently.
func ParseReceipt(evt *types.Event, decode AmountDecoder) (*Receipt, error) {
	if evt == nil || evt.Kind != KindZapReceipt {
		return nil, errors.New("not a zap receipt")
	}

	description := util.GetTagValue(evt.Tags, "description")
	if description == "" {
		return nil, errors.New("receipt missing description tag")
	}
	var request types.Event
	if err := json.Unmarshal([]byte(description), &request); err != nil {
		return nil, errors.New("receipt description is not valid JSON")
	}
	if request.Kind != KindZapRequest {
		return nil, errors.New("receipt description is not a zap request")
	}

	invoice := util.GetTagValue(evt.Tags, "bolt11")
	if invoice == "" {
		return nil, errors.New("receipt missing bolt11 tag")
	}
	amountMsats, err := decode(invoice)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		ID:          evt.ID,
		Sender:      request.PubKey,
		AmountMsats: amountMsats,
		Comment:     request.Content,
		CreatedAt:   evt.CreatedAt,
	}, nil
}

// CollectReceipts parses every valid receipt among the events, drops the
// malformed ones, and orders the result newest first.
func CollectReceipts(events []*types.Event, decode AmountDecoder) []*Receipt {
	var receipts []*Receipt
	for _, evt := range events {
		if evt == nil {
			continue
		}
		receipt, err := ParseReceipt(evt, decode)
		if err != nil {
			slog.Debug("skipping malformed zap receipt", "event_id", util.ShortID(evt.ID), "error", err)
			continue
		}
		receipts = append(receipts, receipt)
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt > receipts[j].CreatedAt
	})
	return receipts
}
