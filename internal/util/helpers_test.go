package util

import (
	"reflect"
	"testing"
)

func TestIsPrivateHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"pay.example.com", false},
		{"localhost", true},
		{"LOCALHOST", true},
		{"127.0.0.1", true},
		{"127.99.0.1", true},
		{"::1", true},
		{"db.internal", true},
		{"printer.local", true},
		{"hidden.onion", true},
		{"app.localhost", true},
		{"notlocalhost.com", false},
	}

	for _, tt := range tests {
		if got := IsPrivateHost(tt.host); got != tt.want {
			t.Errorf("IsPrivateHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestTagHelpers(t *testing.T) {
	tags := [][]string{
		{"p", "pubkey1"},
		{"r", "wss://one.example"},
		{"r", "wss://two.example"},
		{"d", ""},
		{"empty"},
	}

	if got := GetTagValue(tags, "p"); got != "pubkey1" {
		t.Errorf("GetTagValue(p) = %q", got)
	}
	if got := GetTagValue(tags, "missing"); got != "" {
		t.Errorf("GetTagValue(missing) = %q", got)
	}
	if !HasTag(tags, "empty") {
		t.Error("HasTag must match single-element tags")
	}
	if !HasTag(tags, "d") {
		t.Error("HasTag must match tags with empty values")
	}
	if HasTag(tags, "e") {
		t.Error("HasTag matched an absent tag")
	}
}

func TestLimitSlice(t *testing.T) {
	s := []string{"a", "b", "c"}

	if got := LimitSlice(s, 2); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("LimitSlice(s, 2) = %v", got)
	}
	if got := LimitSlice(s, 5); !reflect.DeepEqual(got, s) {
		t.Errorf("LimitSlice(s, 5) = %v", got)
	}
	if got := LimitSlice(s, 0); len(got) != 0 {
		t.Errorf("LimitSlice(s, 0) = %v", got)
	}
}

func TestClampRunes(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, "hello"}, // 0 means no limit
		{"héllo", 2, "hé"},    // rune-aware, not byte-aware
		{"⚡⚡⚡", 2, "⚡⚡"},
		{"", 3, ""},
	}

	for _, tt := range tests {
		if got := ClampRunes(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("ClampRunes(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("82341f882b6eabcd2ba7f1ef"); got != "82341f882b6e" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("short"); got != "short" {
		t.Errorf("ShortID = %q", got)
	}
}
