package nostr

import (
	"net/url"
	"strings"

	"zap-server/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay URL from NIP-65 events.
// Returns empty string if the URL is invalid/malformed.
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick rejects: missing or doubled protocol, encoded spaces
	if !strings.Contains(relayURL, "://") || strings.Count(relayURL, "://") > 1 {
		return ""
	}
	if strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	// Must be ws:// or wss://
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return ""
	}

	host := parsed.Hostname()
	if host == "" || len(host) < 3 || strings.Contains(host, " ") {
		return ""
	}
	if !strings.Contains(host, ".") && host != "localhost" {
		return ""
	}
	// Block unreachable hosts (.onion, .local, .internal); loopback stays
	// allowed for development.
	if util.IsInternalHost(host) {
		return ""
	}

	// Normalize: lowercase, strip trailing slash
	result := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(host)
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += parsed.Path
	}
	return result
}
