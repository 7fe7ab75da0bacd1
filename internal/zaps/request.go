package zaps

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"zap-server/internal/types"
)

// KindZapRequest is the NIP-57 zap request event kind
const KindZapRequest = 9734

// BuildZapRequest constructs an unsigned kind 9734 zap request event.
// The amount tag always carries the exact millisatoshi value as decimal
// text. The target reference, when present, is a single tag: the a
// (coordinate) form for replaceable content with a stable identifier, the e
// (event ID) form otherwise — never both. The comment becomes the event
// content verbatim (may be empty).
func BuildZapRequest(recipient string, relays []string, amountMsats int64, comment string, target *TargetRef) *types.Event {
	relaysTag := append([]string{"relays"}, relays...)

	evt := &types.Event{
		Kind:      KindZapRequest,
		CreatedAt: time.Now().Unix(),
		Content:   comment,
		Tags: [][]string{
			{"p", recipient},
			relaysTag,
			{"amount", strconv.FormatInt(amountMsats, 10)},
		},
	}

	if target != nil {
		if target.IsCoordinate() {
			evt.Tags = append(evt.Tags, []string{"a", target.Coordinate()})
		} else {
			evt.Tags = append(evt.Tags, []string{"e", target.EventID})
		}
	}

	return evt
}

// BuildFallbackURL builds the plain LNURL-pay callback URL for recipients
// without zap support: amount as a query parameter, comment only when
// non-empty. The fallback protocol has no concept of relays or signing.
func BuildFallbackURL(callback string, amountMsats int64, comment string) (string, error) {
	callbackURL, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %v", err)
	}

	query := callbackURL.Query()
	query.Set("amount", strconv.FormatInt(amountMsats, 10))
	if comment != "" {
		query.Set("comment", comment)
	}
	callbackURL.RawQuery = query.Encode()

	return callbackURL.String(), nil
}
