package types

import (
	"strings"
	"testing"
)

func TestEncodeJSONDoesNotEscapeHTML(t *testing.T) {
	evt := &Event{
		ID:      "id",
		Kind:    9734,
		Content: "a<b & c>d",
		Tags:    [][]string{{"p", "x"}},
	}

	out, err := evt.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if !strings.Contains(out, `"a<b & c>d"`) {
		t.Errorf("HTML characters were escaped: %s", out)
	}
	if strings.Contains(out, "u003c") || strings.Contains(out, "u0026") {
		t.Errorf("found unicode escapes in %s", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("trailing newline not trimmed")
	}
}

func TestEncodeJSONOmitsRelaysSeen(t *testing.T) {
	evt := &Event{ID: "id", RelaysSeen: []string{"wss://relay.one"}}

	out, err := evt.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if strings.Contains(out, "relay.one") || strings.Contains(out, "RelaysSeen") {
		t.Errorf("local-only field leaked into wire format: %s", out)
	}
}

func TestHasLightningAddress(t *testing.T) {
	tests := []struct {
		name    string
		profile *ProfileInfo
		want    bool
	}{
		{"nil profile", nil, false},
		{"empty profile", &ProfileInfo{}, false},
		{"lud16 only", &ProfileInfo{Lud16: "alice@pay.example"}, true},
		{"lud06 only", &ProfileInfo{Lud06: "lnurl1abc"}, true},
		{"both", &ProfileInfo{Lud16: "alice@pay.example", Lud06: "lnurl1abc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.HasLightningAddress(); got != tt.want {
				t.Errorf("HasLightningAddress() = %v, want %v", got, tt.want)
			}
		})
	}
}
