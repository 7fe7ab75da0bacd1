// Package types provides shared type definitions used across internal packages.
package types

import (
	"bytes"
	"encoding/json"
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// EncodeJSON serializes an event without HTML escaping.
// Relays and LNURL services recompute the event hash from the exact bytes,
// so <, > and & must not be escaped the way json.Marshal does by default.
func (e *Event) EncodeJSON() (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(e); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
