package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"zap-server/internal/types"
)

// LocalSigner signs zap request events with a server-held key. It stands in
// for an external signing authority behind the zaps.Signer port; it never
// declines, so the abort path only triggers with remote signers.
type LocalSigner struct {
	privateKey *btcec.PrivateKey
	PublicKey  string
}

// NewLocalSigner creates a signer from a hex-encoded private key.
func NewLocalSigner(privKeyHex string) (*LocalSigner, error) {
	privKeyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(privKeyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length: %d bytes", len(privKeyBytes))
	}

	privateKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	pubKeyBytes := privateKey.PubKey().SerializeCompressed()[1:] // Remove prefix byte

	return &LocalSigner{
		privateKey: privateKey,
		PublicKey:  hex.EncodeToString(pubKeyBytes),
	}, nil
}

// Sign implements zaps.Signer. The input event is not mutated.
func (s *LocalSigner) Sign(ctx context.Context, evt *types.Event) (*types.Event, error) {
	signed := *evt
	signed.PubKey = s.PublicKey
	signed.ID = ComputeEventID(&signed)

	idBytes, err := hex.DecodeString(signed.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id: %w", err)
	}
	sig, err := schnorr.Sign(s.privateKey, idBytes)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign failed: %w", err)
	}
	signed.Sig = hex.EncodeToString(sig.Serialize())

	return &signed, nil
}

// ComputeEventID computes the Nostr event ID: SHA256 of the canonical JSON
// serialization [0, pubkey, created_at, kind, tags, content].
//
// HTML characters (<, >, &) must NOT be escaped because relays and LNURL
// services recompute the hash from unescaped JSON; json.Marshal escapes them
// by default, so this uses json.Encoder with SetEscapeHTML(false).
func ComputeEventID(event *types.Event) string {
	serialized := []interface{}{
		0,
		event.PubKey,
		event.CreatedAt,
		event.Kind,
		event.Tags,
		event.Content,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.Encode(serialized)

	// Encoder.Encode adds a trailing newline, remove it
	jsonBytes := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}
