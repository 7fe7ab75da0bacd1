package zaps

import (
	"context"
	"errors"
	"log/slog"

	"zap-server/internal/lnurl"
	"zap-server/internal/types"
	"zap-server/internal/util"
)

// State tracks where a pipeline invocation is. Failed is reachable from
// every state; Aborted only from Signing.
type State int

const (
	StateIdle State = iota
	StateResolvingIdentity
	StateValidatingAmount
	StateBuildingZap
	StateBuildingFallback
	StateSigning
	StateSubmitting
	StateValidatingInvoice
	StateDelivered
	StateAborted
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingIdentity:
		return "resolving_identity"
	case StateValidatingAmount:
		return "validating_amount"
	case StateBuildingZap:
		return "building_zap"
	case StateBuildingFallback:
		return "building_fallback"
	case StateSigning:
		return "signing"
	case StateSubmitting:
		return "submitting"
	case StateValidatingInvoice:
		return "validating_invoice"
	case StateDelivered:
		return "delivered"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IdentityResolver resolves a recipient pubkey to LNURL pay info plus the
// tip address that was used. Implementations return
// lnurl.ErrNoLightningAddress when the recipient has no address configured,
// as opposed to an address that exists but cannot be fetched.
type IdentityResolver interface {
	Resolve(ctx context.Context, pubkey string) (*lnurl.PayInfo, string, error)
}

// Signer signs a zap request event on behalf of the sender. Returning
// (nil, nil) means the user declined; the pipeline aborts silently.
type Signer interface {
	Sign(ctx context.Context, evt *types.Event) (*types.Event, error)
}

// Submitter performs the callback request that yields an invoice. Split out
// as a port so tests can observe exactly what would hit the network.
type Submitter interface {
	// SubmitZap posts the signed zap request to the callback endpoint.
	SubmitZap(ctx context.Context, callback string, amountMsats int64, zapRequestJSON, lnurlRef string) (string, error)
	// SubmitFallback requests an invoice from a prebuilt fallback URL.
	SubmitFallback(ctx context.Context, callbackURL string) (string, error)
}

// AmountDecoder extracts the embedded amount (msats) from an encoded invoice.
type AmountDecoder func(invoice string) (int64, error)

// Request describes one zap/tip invocation.
type Request struct {
	Recipient   string // recipient pubkey (hex)
	AmountMsats int64
	Comment     string
	Target      *TargetRef   // nil when tipping a profile rather than content
	Sources     RelaySources // relay candidates, see BuildRelaySelection
}

// Sink receives the validated invoice exactly once.
type Sink func(invoice string)

// Pipeline wires the ports together. Each Run invocation owns its own
// identity, relay selection and invoice; a Pipeline itself is stateless and
// safe for concurrent use.
type Pipeline struct {
	Resolver     IdentityResolver
	Ranker       Ranker
	Signer       Signer
	Submitter    Submitter
	DecodeAmount AmountDecoder
}

// LNURLSubmitter is the production Submitter backed by the lnurl package.
type LNURLSubmitter struct{}

func (LNURLSubmitter) SubmitZap(ctx context.Context, callback string, amountMsats int64, zapRequestJSON, lnurlRef string) (string, error) {
	return lnurl.RequestZapInvoice(ctx, callback, amountMsats, zapRequestJSON, lnurlRef)
}

func (LNURLSubmitter) SubmitFallback(ctx context.Context, callbackURL string) (string, error) {
	return lnurl.FetchInvoice(ctx, callbackURL)
}

// Run executes one invoice request end to end and hands the validated
// invoice to sink. It returns nil on delivery, ErrAborted when the user
// declined signing (deliver nothing, say nothing), or a *Error whose
// UserMessage is safe to show.
func (p *Pipeline) Run(ctx context.Context, req Request, sink Sink) error {
	log := slog.Default().With("recipient", util.ShortID(req.Recipient), "amount_msats", req.AmountMsats)
	state := StateIdle
	transition := func(next State) {
		log.Debug("zap pipeline transition", "from", state.String(), "to", next.String())
		state = next
	}

	fail := func(e *Error) error {
		transition(StateFailed)
		log.Warn("zap pipeline failed", "kind", e.Kind.String(), "error", e.Error())
		return e
	}

	transition(StateResolvingIdentity)
	info, address, err := p.Resolver.Resolve(ctx, req.Recipient)
	if err != nil {
		if errors.Is(err, lnurl.ErrNoLightningAddress) {
			return fail(failf(FailureNoPaymentIdentity, err, "recipient has no lightning address"))
		}
		return fail(failf(FailureIdentityFetch, err, "could not fetch payment details"))
	}

	// Bounds are the cheapest check: fail before touching the signer or
	// the callback.
	transition(StateValidatingAmount)
	if req.AmountMsats < info.MinSendable {
		return fail(failf(FailureAmountTooSmall, nil,
			"amount %d msats below minimum %d", req.AmountMsats, info.MinSendable))
	}
	if req.AmountMsats > info.MaxSendable {
		return fail(failf(FailureAmountTooLarge, nil,
			"amount %d msats above maximum %d", req.AmountMsats, info.MaxSendable))
	}

	// A service that does not solicit comments may reject a request that
	// carries one, so the comment only survives when CommentAllowed says so.
	comment := ""
	if info.CommentAllowed > 0 {
		comment = util.ClampRunes(req.Comment, info.CommentAllowed)
	}

	// The zap path needs both the capability flag and a receipt pubkey;
	// anything less goes through plain LNURL-pay. No cross-path retry.
	var invoice string
	if info.AllowsNostr && info.NostrPubkey != "" {
		transition(StateBuildingZap)
		selection := BuildRelaySelection(p.Ranker, req.Sources)
		unsigned := BuildZapRequest(req.Recipient, selection, req.AmountMsats, comment, req.Target)

		transition(StateSigning)
		signed, err := p.Signer.Sign(ctx, unsigned)
		if err != nil {
			return fail(failf(FailureSigning, err, "could not sign zap request"))
		}
		if signed == nil {
			transition(StateAborted)
			log.Debug("zap request signing declined")
			return ErrAborted
		}

		signedJSON, err := signed.EncodeJSON()
		if err != nil {
			return fail(failf(FailureSigning, err, "could not serialize zap request"))
		}

		transition(StateSubmitting)
		invoice, err = p.Submitter.SubmitZap(ctx, info.Callback, req.AmountMsats, signedJSON, address)
		if err != nil {
			return fail(failf(FailureInvoiceRequest, err, "could not get invoice"))
		}
	} else {
		transition(StateBuildingFallback)
		fallbackURL, err := BuildFallbackURL(info.Callback, req.AmountMsats, comment)
		if err != nil {
			return fail(failf(FailureInvoiceRequest, err, "could not get invoice"))
		}

		transition(StateSubmitting)
		invoice, err = p.Submitter.SubmitFallback(ctx, fallbackURL)
		if err != nil {
			return fail(failf(FailureInvoiceRequest, err, "could not get invoice"))
		}
	}

	transition(StateValidatingInvoice)
	decoded, err := p.DecodeAmount(invoice)
	if err != nil {
		return fail(failf(FailureInvoiceRequest, err, "could not decode invoice"))
	}
	if decoded != req.AmountMsats {
		// Paying a mismatched invoice would send the wrong amount; it
		// must never reach the caller.
		return fail(failf(FailureAmountMismatch, nil,
			"invoice amount %d msats does not match requested %d", decoded, req.AmountMsats))
	}

	// If the caller went away while the callback was in flight, discard
	// the invoice rather than deliver it.
	if ctx.Err() != nil {
		transition(StateFailed)
		log.Debug("zap invocation abandoned, discarding invoice")
		return ctx.Err()
	}

	transition(StateDelivered)
	sink(invoice)
	return nil
}
