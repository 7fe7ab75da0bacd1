package zaps

import (
	"errors"
	"testing"

	"zap-server/internal/types"
)

const receiptSender = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func receiptEvent(id string, createdAt int64) *types.Event {
	return &types.Event{
		ID:        id,
		Kind:      KindZapReceipt,
		CreatedAt: createdAt,
		Tags: [][]string{
			{"p", testRecipient},
			{"bolt11", "lnbc210n1pvjluez"},
			{"description", `{"kind":9734,"pubkey":"` + receiptSender + `","content":"great post"}`},
		},
	}
}

func TestParseReceipt(t *testing.T) {
	receipt, err := ParseReceipt(receiptEvent("r1", 1700000000), exactDecoder(21000))
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}

	if receipt.ID != "r1" {
		t.Errorf("ID = %q", receipt.ID)
	}
	if receipt.Sender != receiptSender {
		t.Errorf("Sender = %q, want the zap request pubkey", receipt.Sender)
	}
	if receipt.AmountMsats != 21000 {
		t.Errorf("AmountMsats = %d, want 21000", receipt.AmountMsats)
	}
	if receipt.Comment != "great post" {
		t.Errorf("Comment = %q", receipt.Comment)
	}
	if receipt.CreatedAt != 1700000000 {
		t.Errorf("CreatedAt = %d", receipt.CreatedAt)
	}
}

func TestParseReceiptRejectsMalformed(t *testing.T) {
	valid := receiptEvent("r1", 1700000000)

	withTags := func(tags [][]string) *types.Event {
		evt := *valid
		evt.Tags = tags
		return &evt
	}

	tests := []struct {
		name string
		evt  *types.Event
	}{
		{"nil event", nil},
		{"wrong kind", &types.Event{ID: "x", Kind: 1, Tags: valid.Tags}},
		{"no description", withTags([][]string{{"bolt11", "lnbc210n1pvjluez"}})},
		{"description not json", withTags([][]string{
			{"bolt11", "lnbc210n1pvjluez"},
			{"description", "not json"},
		})},
		{"description wrong kind", withTags([][]string{
			{"bolt11", "lnbc210n1pvjluez"},
			{"description", `{"kind":1,"content":"hi"}`},
		})},
		{"no bolt11", withTags([][]string{
			{"description", `{"kind":9734,"content":"hi"}`},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if receipt, err := ParseReceipt(tt.evt, exactDecoder(21000)); err == nil {
				t.Errorf("ParseReceipt = %+v, want error", receipt)
			}
		})
	}
}

func TestParseReceiptSurfacesDecoderError(t *testing.T) {
	decode := func(string) (int64, error) { return 0, errors.New("not a bolt11 invoice") }
	if _, err := ParseReceipt(receiptEvent("r1", 1700000000), decode); err == nil {
		t.Error("decoder error must fail the parse")
	}
}

func TestCollectReceipts(t *testing.T) {
	broken := receiptEvent("r-bad", 1700000300)
	broken.Tags = [][]string{{"bolt11", "lnbc210n1pvjluez"}}

	events := []*types.Event{
		receiptEvent("r-old", 1700000100),
		nil,
		broken,
		receiptEvent("r-new", 1700000200),
	}

	receipts := CollectReceipts(events, exactDecoder(21000))
	if len(receipts) != 2 {
		t.Fatalf("got %d receipts, want 2 (malformed dropped)", len(receipts))
	}
	if receipts[0].ID != "r-new" || receipts[1].ID != "r-old" {
		t.Errorf("order = %s, %s, want newest first", receipts[0].ID, receipts[1].ID)
	}
}
