package util

import (
	"strings"
)

// =============================================================================
// Host Validation Helpers
// =============================================================================

// IsInternalHost checks if a hostname is internal/private and should not be accessed.
// Used to prevent SSRF attacks by blocking requests to internal networks.
func IsInternalHost(host string) bool {
	host = strings.ToLower(host)
	return strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal") ||
		strings.HasSuffix(host, ".onion") ||
		strings.HasSuffix(host, ".localhost")
}

// IsLoopbackHost checks if a hostname resolves to localhost.
func IsLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		host == "[::1]"
}

// IsPrivateHost checks if a host should be blocked for security reasons.
// Combines internal host and loopback checks.
func IsPrivateHost(host string) bool {
	return IsInternalHost(host) || IsLoopbackHost(host)
}

// =============================================================================
// Tag Extraction Helpers
// =============================================================================

// GetTagValue returns the first value for the given tag name, or empty string if not found.
// Example: GetTagValue(tags, "d") returns the stable identifier of an addressable event.
func GetTagValue(tags [][]string, tagName string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == tagName {
			return tag[1]
		}
	}
	return ""
}

// HasTag returns true if the given tag name exists (even with empty value).
func HasTag(tags [][]string, tagName string) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == tagName {
			return true
		}
	}
	return false
}

// =============================================================================
// Slice Utilities
// =============================================================================

// LimitSlice returns the first n elements of a slice, or the entire slice if
// it has fewer than n elements. Safe to call with n <= 0 (returns empty slice).
func LimitSlice[T any](slice []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(slice) <= n {
		return slice
	}
	return slice[:n]
}

// =============================================================================
// String Utilities
// =============================================================================

// ClampRunes cuts a string to at most maxLen runes (Unicode-aware) with no
// suffix added. Used for comment limits where the text must stay verbatim.
func ClampRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// ShortID truncates an event ID or pubkey to 12 chars for logging.
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
