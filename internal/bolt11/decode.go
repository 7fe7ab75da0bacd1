// Package bolt11 decodes the amount embedded in a BOLT11 Lightning invoice.
//
// Only the human-readable part is inspected. The invoice is forwarded to the
// wallet verbatim, so full signature/tagged-field decoding is the wallet's
// job; the server only needs the amount to confirm the callback returned an
// invoice for what was actually requested.
package bolt11

import (
	"errors"
	"strconv"
	"strings"
)

// msats in one whole bitcoin (amounts in the HRP are denominated in BTC)
const msatsPerBitcoin = 100_000_000_000

var (
	// ErrNoAmount is returned for amountless invoices. The zap flow always
	// requests a specific amount, so these are never acceptable.
	ErrNoAmount = errors.New("invoice carries no amount")

	errNotInvoice = errors.New("not a bolt11 invoice")
)

// DecodeAmountMsats extracts the invoice amount in millisatoshis from the
// human-readable part of a BOLT11 payment request.
// Format: ln + currency prefix + amount digits + optional multiplier (m/u/n/p).
func DecodeAmountMsats(invoice string) (int64, error) {
	invoice = strings.ToLower(strings.TrimSpace(invoice))

	pos := strings.LastIndex(invoice, "1")
	if pos < 1 {
		return 0, errNotInvoice
	}
	hrp := invoice[:pos]

	if !strings.HasPrefix(hrp, "ln") {
		return 0, errNotInvoice
	}

	// Skip the currency prefix (bc, tb, bcrt, ...): everything up to the
	// first digit belongs to it.
	rest := hrp[2:]
	start := strings.IndexFunc(rest, func(r rune) bool {
		return r >= '0' && r <= '9'
	})
	if start == -1 {
		// Valid invoice, no amount encoded
		return 0, ErrNoAmount
	}
	amount := rest[start:]

	// Optional multiplier suffix
	multiplier := byte(0)
	if last := amount[len(amount)-1]; last < '0' || last > '9' {
		multiplier = last
		amount = amount[:len(amount)-1]
	}
	if amount == "" {
		return 0, errNotInvoice
	}

	value, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return 0, errNotInvoice
	}
	if value <= 0 {
		return 0, errNotInvoice
	}

	switch multiplier {
	case 0:
		return value * msatsPerBitcoin, nil
	case 'm':
		return value * (msatsPerBitcoin / 1_000), nil
	case 'u':
		return value * (msatsPerBitcoin / 1_000_000), nil
	case 'n':
		return value * (msatsPerBitcoin / 1_000_000_000), nil
	case 'p':
		// 1 pico-BTC = 0.1 msat, so the digits must end in 0
		if value%10 != 0 {
			return 0, errors.New("sub-millisatoshi amount")
		}
		return value / 10, nil
	default:
		return 0, errors.New("unknown amount multiplier")
	}
}
