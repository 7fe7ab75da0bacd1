// Package lnurl implements LNURL-pay (LUD-06/LUD-16) payment identity
// resolution and invoice retrieval for Lightning tips and NIP-57 zaps.
package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zap-server/internal/nips"
	"zap-server/internal/util"
)

const (
	// HTTPTimeout bounds every LNURL round trip
	HTTPTimeout = 10 * time.Second
)

// ErrNoLightningAddress is returned when a profile has no tip address
// configured at all. Callers distinguish this from fetch failures: "nothing
// to pay" is not the same as "could not reach the pay endpoint".
var ErrNoLightningAddress = errors.New("no lightning address configured")

// httpClient is a dedicated HTTP client for LNURL requests with proper timeouts
var httpClient = &http.Client{
	Timeout: HTTPTimeout,
	Transport: &http.Transport{
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// urlValidator is swapped out in tests so httptest servers on loopback
// addresses can be reached.
var urlValidator = ValidateExternalURL

// ValidateExternalURL validates that a URL is safe to fetch (SSRF prevention)
func ValidateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	// Only allow HTTPS (or HTTP for testing, but prefer HTTPS)
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("invalid scheme: %s (expected https)", parsed.Scheme)
	}

	// Block localhost and common internal hostnames
	host := parsed.Hostname()
	if util.IsPrivateHost(host) || host == "0.0.0.0" {
		return errors.New("internal hosts not allowed")
	}

	// Block private IP ranges
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return errors.New("private IP ranges not allowed")
		}
		// Block cloud metadata endpoint
		if ip.Equal(net.ParseIP("169.254.169.254")) {
			return errors.New("metadata endpoint not allowed")
		}
	}

	return nil
}

// PayInfo contains the payment endpoint info from the initial LNURL fetch
type PayInfo struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`    // millisats
	MaxSendable    int64  `json:"maxSendable"`    // millisats
	Metadata       string `json:"metadata"`       // JSON stringified metadata
	Tag            string `json:"tag"`            // should be "payRequest"
	AllowsNostr    bool   `json:"allowsNostr"`    // supports NIP-57 zaps
	NostrPubkey    string `json:"nostrPubkey"`    // pubkey for zap receipts
	CommentAllowed int    `json:"commentAllowed"` // max comment length, 0 = no comments
}

// PayResponse contains the invoice from the callback
type PayResponse struct {
	PR     string `json:"pr"`     // BOLT11 invoice
	Routes []any  `json:"routes"` // ignored
}

// ErrorEnvelope is returned by LNURL services on errors
type ErrorEnvelope struct {
	Status string `json:"status"` // "ERROR"
	Reason string `json:"reason"`
}

// ResolveAddress resolves a profile's tip address to pay info, preferring
// lud16 over lud06. Returns the address that was used alongside the info.
// Returns ErrNoLightningAddress when both are empty.
func ResolveAddress(ctx context.Context, lud16, lud06 string) (*PayInfo, string, error) {
	if lud16 != "" {
		info, err := ResolveLud16(ctx, lud16)
		return info, lud16, err
	}
	if lud06 != "" {
		info, err := ResolveLud06(ctx, lud06)
		return info, lud06, err
	}
	return nil, "", ErrNoLightningAddress
}

// ResolveLud16 resolves a Lightning address (user@domain.com) to LNURL pay info
func ResolveLud16(ctx context.Context, lud16 string) (*PayInfo, error) {
	// Parse email-like format
	parts := strings.SplitN(lud16, "@", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid lud16 format: expected user@domain")
	}
	username := parts[0]
	domain := parts[1]

	if username == "" || domain == "" {
		return nil, errors.New("invalid lud16: empty username or domain")
	}

	// https://domain.com/.well-known/lnurlp/username
	lnurlURL := fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, strings.ToLower(username))

	return FetchPayInfo(ctx, lnurlURL)
}

// ResolveLud06 decodes a bech32 LNURL and fetches the pay info
func ResolveLud06(ctx context.Context, lud06 string) (*PayInfo, error) {
	if !strings.HasPrefix(strings.ToLower(lud06), "lnurl1") {
		return nil, errors.New("invalid lud06: must start with lnurl1")
	}

	hrp, data, err := nips.Bech32Decode(strings.ToLower(lud06))
	if err != nil {
		return nil, fmt.Errorf("failed to decode lnurl: %v", err)
	}
	if hrp != "lnurl" {
		return nil, errors.New("invalid lnurl hrp")
	}

	// Convert 5-bit to 8-bit
	urlBytes, err := nips.Bech32ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert lnurl bits: %v", err)
	}

	return FetchPayInfo(ctx, string(urlBytes))
}

// FetchPayInfo fetches the LNURL-pay info from the endpoint
func FetchPayInfo(ctx context.Context, lnurlURL string) (*PayInfo, error) {
	// Validate URL to prevent SSRF
	if err := urlValidator(lnurlURL); err != nil {
		return nil, fmt.Errorf("invalid lnurl: %v", err)
	}

	body, err := getJSON(ctx, lnurlURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lnurl: %w", err)
	}

	// Check for error response
	var envelope ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Status == "ERROR" {
		return nil, fmt.Errorf("lnurl error: %s", envelope.Reason)
	}

	var info PayInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lnurl response: %v", err)
	}

	// Validate response
	if info.Tag != "payRequest" {
		return nil, fmt.Errorf("unexpected lnurl tag: %s (expected payRequest)", info.Tag)
	}
	if info.Callback == "" {
		return nil, errors.New("lnurl missing callback")
	}
	if info.MinSendable <= 0 || info.MaxSendable <= 0 {
		return nil, errors.New("lnurl missing amount limits")
	}

	return &info, nil
}

// RequestZapInvoice requests a BOLT11 invoice from the LNURL callback for a
// signed NIP-57 zap request.
// zapRequestJSON is the signed kind 9734 event serialized without HTML escaping.
// lnurlRef is the recipient's lightning address or LNURL, passed along so the
// service can embed it in the zap receipt for verification.
func RequestZapInvoice(ctx context.Context, callback string, amountMsats int64, zapRequestJSON, lnurlRef string) (string, error) {
	callbackURL, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	query := callbackURL.Query()
	query.Set("amount", fmt.Sprintf("%d", amountMsats))
	query.Set("nostr", zapRequestJSON)
	if lnurlRef != "" {
		query.Set("lnurl", lnurlRef)
	}
	callbackURL.RawQuery = query.Encode()

	return FetchInvoice(ctx, callbackURL.String())
}

// FetchInvoice performs the callback request and extracts the invoice.
// The URL must already carry all query parameters (amount, and either the
// signed zap request or a plain comment).
func FetchInvoice(ctx context.Context, callbackURL string) (string, error) {
	// Validate callback URL to prevent SSRF
	if err := urlValidator(callbackURL); err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	body, err := getJSON(ctx, callbackURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch invoice: %w", err)
	}

	// Check for error response
	var envelope ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Status == "ERROR" {
		return "", fmt.Errorf("callback error: %s", envelope.Reason)
	}

	var payResp PayResponse
	if err := json.Unmarshal(body, &payResp); err != nil {
		return "", fmt.Errorf("failed to parse callback response: %v", err)
	}

	if payResp.PR == "" {
		return "", errors.New("callback returned empty invoice")
	}

	return payResp.PR, nil
}

// getJSON performs a GET request with the LNURL client and returns the body
func getJSON(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// SatsToMsats converts satoshis to millisatoshis
func SatsToMsats(sats int64) int64 {
	return sats * 1000
}

// MsatsToSats converts millisatoshis to satoshis (rounds down)
func MsatsToSats(msats int64) int64 {
	return msats / 1000
}
