package zaps

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"zap-server/internal/lnurl"
	"zap-server/internal/types"
)

type fakeResolver struct {
	info    *lnurl.PayInfo
	address string
	err     error
	calls   int
}

func (f *fakeResolver) Resolve(ctx context.Context, pubkey string) (*lnurl.PayInfo, string, error) {
	f.calls++
	return f.info, f.address, f.err
}

type fakeSigner struct {
	decline bool
	err     error
	calls   int
	lastEvt *types.Event
}

func (f *fakeSigner) Sign(ctx context.Context, evt *types.Event) (*types.Event, error) {
	f.calls++
	f.lastEvt = evt
	if f.err != nil {
		return nil, f.err
	}
	if f.decline {
		return nil, nil
	}
	signed := *evt
	signed.PubKey = "senderpubkey"
	signed.ID = "signedid"
	signed.Sig = "signedsig"
	return &signed, nil
}

type fakeSubmitter struct {
	invoice string
	err     error

	zapCalls      int
	fallbackCalls int

	callback    string
	amountMsats int64
	zapJSON     string
	lnurlRef    string
	fallbackURL string

	onSubmit func()
}

func (f *fakeSubmitter) SubmitZap(ctx context.Context, callback string, amountMsats int64, zapRequestJSON, lnurlRef string) (string, error) {
	f.zapCalls++
	f.callback = callback
	f.amountMsats = amountMsats
	f.zapJSON = zapRequestJSON
	f.lnurlRef = lnurlRef
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return f.invoice, f.err
}

func (f *fakeSubmitter) SubmitFallback(ctx context.Context, callbackURL string) (string, error) {
	f.fallbackCalls++
	f.fallbackURL = callbackURL
	if f.onSubmit != nil {
		f.onSubmit()
	}
	return f.invoice, f.err
}

func exactDecoder(amount int64) AmountDecoder {
	return func(invoice string) (int64, error) { return amount, nil }
}

func zapPayInfo() *lnurl.PayInfo {
	return &lnurl.PayInfo{
		Callback:    "https://pay.example/callback",
		MinSendable: 1000,
		MaxSendable: 100_000_000,
		Tag:         "payRequest",
		AllowsNostr: true,
		NostrPubkey: "servicepubkey",
	}
}

func fallbackPayInfo() *lnurl.PayInfo {
	info := zapPayInfo()
	info.AllowsNostr = false
	info.NostrPubkey = ""
	return info
}

func newTestPipeline(resolver *fakeResolver, signer *fakeSigner, submitter *fakeSubmitter, decode AmountDecoder) *Pipeline {
	return &Pipeline{
		Resolver:     resolver,
		Ranker:       passthroughRanker{},
		Signer:       signer,
		Submitter:    submitter,
		DecodeAmount: decode,
	}
}

func TestPipelineZapPathDelivers(t *testing.T) {
	resolver := &fakeResolver{info: zapPayInfo(), address: "alice@pay.example"}
	signer := &fakeSigner{}
	submitter := &fakeSubmitter{invoice: "lnbc210n1rest"}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(21000))

	var delivered []string
	err := p.Run(context.Background(), Request{
		Recipient:   testRecipient,
		AmountMsats: 21000,
		Comment:     "nice",
		Sources:     RelaySources{SenderWrite: []string{"wss://relay.one"}},
	}, func(inv string) { delivered = append(delivered, inv) })

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "lnbc210n1rest" {
		t.Fatalf("delivered = %v, want exactly one invoice", delivered)
	}
	if submitter.zapCalls != 1 || submitter.fallbackCalls != 0 {
		t.Errorf("zapCalls = %d, fallbackCalls = %d, want 1/0", submitter.zapCalls, submitter.fallbackCalls)
	}
	if submitter.callback != "https://pay.example/callback" {
		t.Errorf("callback = %q", submitter.callback)
	}
	if submitter.amountMsats != 21000 {
		t.Errorf("amountMsats = %d, want 21000", submitter.amountMsats)
	}
	if submitter.lnurlRef != "alice@pay.example" {
		t.Errorf("lnurlRef = %q", submitter.lnurlRef)
	}

	// The submitted JSON must be the signed event, not the unsigned one
	var sent types.Event
	if err := json.Unmarshal([]byte(submitter.zapJSON), &sent); err != nil {
		t.Fatalf("submitted zap request is not valid JSON: %v", err)
	}
	if sent.Sig != "signedsig" || sent.Kind != KindZapRequest {
		t.Errorf("submitted event = kind %d sig %q", sent.Kind, sent.Sig)
	}
}

func TestPipelineFallbackPathSkipsSigning(t *testing.T) {
	resolver := &fakeResolver{info: fallbackPayInfo(), address: "alice@pay.example"}
	signer := &fakeSigner{}
	submitter := &fakeSubmitter{invoice: "lnbc210n1rest"}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(21000))

	var delivered int
	err := p.Run(context.Background(), Request{
		Recipient:   testRecipient,
		AmountMsats: 21000,
		Comment:     "thanks",
	}, func(string) { delivered++ })

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if signer.calls != 0 {
		t.Error("fallback path must not invoke the signer")
	}
	if submitter.fallbackCalls != 1 || submitter.zapCalls != 0 {
		t.Errorf("fallbackCalls = %d, zapCalls = %d, want 1/0", submitter.fallbackCalls, submitter.zapCalls)
	}
	if delivered != 1 {
		t.Errorf("delivered %d times, want 1", delivered)
	}
}

func TestPipelineZapPathRequiresReceiptPubkey(t *testing.T) {
	// allowsNostr without a receipt pubkey cannot produce a verifiable
	// receipt, so the plain path is used.
	info := zapPayInfo()
	info.NostrPubkey = ""
	resolver := &fakeResolver{info: info, address: "alice@pay.example"}
	signer := &fakeSigner{}
	submitter := &fakeSubmitter{invoice: "lnbc210n1rest"}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(21000))

	if err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if signer.calls != 0 || submitter.fallbackCalls != 1 {
		t.Errorf("signer calls = %d, fallback calls = %d, want 0/1", signer.calls, submitter.fallbackCalls)
	}
}

func TestPipelineNoPaymentIdentity(t *testing.T) {
	resolver := &fakeResolver{err: lnurl.ErrNoLightningAddress}
	signer := &fakeSigner{}
	submitter := &fakeSubmitter{}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(0))

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 1000}, func(string) {
		t.Error("sink must not fire on failure")
	})

	if FailureKindOf(err) != FailureNoPaymentIdentity {
		t.Errorf("failure kind = %v, want no_payment_identity", FailureKindOf(err))
	}
	if signer.calls != 0 || submitter.zapCalls != 0 || submitter.fallbackCalls != 0 {
		t.Error("failed resolve must not trigger signing or submission")
	}
}

func TestPipelineIdentityFetchFailed(t *testing.T) {
	// A configured address that cannot be fetched is a different failure
	// than a missing one.
	resolver := &fakeResolver{err: errors.New("connection refused")}
	p := newTestPipeline(resolver, &fakeSigner{}, &fakeSubmitter{}, exactDecoder(0))

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 1000}, func(string) {})
	if FailureKindOf(err) != FailureIdentityFetch {
		t.Errorf("failure kind = %v, want identity_fetch_failed", FailureKindOf(err))
	}
}

func TestPipelineAmountBounds(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   FailureKind
	}{
		{"below minimum", 999, FailureAmountTooSmall},
		{"at minimum", 1000, FailureNone},
		{"at maximum", 100_000_000, FailureNone},
		{"above maximum", 100_000_001, FailureAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{info: zapPayInfo(), address: "alice@pay.example"}
			signer := &fakeSigner{}
			submitter := &fakeSubmitter{invoice: "lnbc1rest"}
			p := newTestPipeline(resolver, signer, submitter, exactDecoder(tt.amount))

			err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: tt.amount}, func(string) {})

			if got := FailureKindOf(err); got != tt.want {
				t.Fatalf("failure kind = %v, want %v (err=%v)", got, tt.want, err)
			}
			if tt.want != FailureNone {
				if signer.calls != 0 || submitter.zapCalls != 0 || submitter.fallbackCalls != 0 {
					t.Error("out-of-bounds amount must fail before signing or submission")
				}
			}
		})
	}
}

func TestPipelineAbortIsSilent(t *testing.T) {
	resolver := &fakeResolver{info: zapPayInfo(), address: "alice@pay.example"}
	signer := &fakeSigner{decline: true}
	submitter := &fakeSubmitter{}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(0))

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {
		t.Error("sink must not fire on abort")
	})

	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if FailureKindOf(err) != FailureNone {
		t.Error("abort must not classify as a failure")
	}
	if submitter.zapCalls != 0 || submitter.fallbackCalls != 0 {
		t.Error("abort must not reach the callback")
	}
}

func TestPipelineSignerError(t *testing.T) {
	resolver := &fakeResolver{info: zapPayInfo(), address: "alice@pay.example"}
	signer := &fakeSigner{err: errors.New("signer unreachable")}
	p := newTestPipeline(resolver, signer, &fakeSubmitter{}, exactDecoder(0))

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {})
	if FailureKindOf(err) != FailureSigning {
		t.Errorf("failure kind = %v, want signing_failed", FailureKindOf(err))
	}
	if errors.Is(err, ErrAborted) {
		t.Error("a signer transport error is not an abort")
	}
}

func TestPipelineInvoiceRequestFailed(t *testing.T) {
	resolver := &fakeResolver{info: zapPayInfo(), address: "alice@pay.example"}
	submitter := &fakeSubmitter{err: errors.New("callback returned 500")}
	p := newTestPipeline(resolver, &fakeSigner{}, submitter, exactDecoder(0))

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {
		t.Error("sink must not fire on failure")
	})
	if FailureKindOf(err) != FailureInvoiceRequest {
		t.Errorf("failure kind = %v, want invoice_request_failed", FailureKindOf(err))
	}
}

func TestPipelineAmountMismatch(t *testing.T) {
	for _, info := range []*lnurl.PayInfo{zapPayInfo(), fallbackPayInfo()} {
		resolver := &fakeResolver{info: info, address: "alice@pay.example"}
		submitter := &fakeSubmitter{invoice: "lnbc1rest"}
		// Invoice says one msat more than requested
		p := newTestPipeline(resolver, &fakeSigner{}, submitter, exactDecoder(21001))

		err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {
			t.Error("mismatched invoice must never reach the sink")
		})
		if FailureKindOf(err) != FailureAmountMismatch {
			t.Errorf("allowsNostr=%v: failure kind = %v, want amount_mismatch", info.AllowsNostr, FailureKindOf(err))
		}
	}
}

func TestPipelineUndecodableInvoice(t *testing.T) {
	resolver := &fakeResolver{info: fallbackPayInfo(), address: "alice@pay.example"}
	submitter := &fakeSubmitter{invoice: "garbage"}
	decode := func(string) (int64, error) { return 0, errors.New("not a bolt11 invoice") }
	p := newTestPipeline(resolver, &fakeSigner{}, submitter, decode)

	err := p.Run(context.Background(), Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {})
	if FailureKindOf(err) != FailureInvoiceRequest {
		t.Errorf("failure kind = %v, want invoice_request_failed", FailureKindOf(err))
	}
}

func TestPipelineClampsComment(t *testing.T) {
	info := zapPayInfo()
	info.CommentAllowed = 5
	resolver := &fakeResolver{info: info, address: "alice@pay.example"}
	signer := &fakeSigner{}
	submitter := &fakeSubmitter{invoice: "lnbc1rest"}
	p := newTestPipeline(resolver, signer, submitter, exactDecoder(21000))

	if err := p.Run(context.Background(), Request{
		Recipient:   testRecipient,
		AmountMsats: 21000,
		Comment:     "way too long comment",
	}, func(string) {}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if signer.lastEvt.Content != "way t" {
		t.Errorf("comment = %q, want clamped to 5 runes", signer.lastEvt.Content)
	}
}

func TestPipelineDropsCommentWhenNotSolicited(t *testing.T) {
	t.Run("fallback path", func(t *testing.T) {
		info := fallbackPayInfo()
		info.CommentAllowed = 0
		resolver := &fakeResolver{info: info, address: "alice@pay.example"}
		submitter := &fakeSubmitter{invoice: "lnbc1rest"}
		p := newTestPipeline(resolver, &fakeSigner{}, submitter, exactDecoder(21000))

		if err := p.Run(context.Background(), Request{
			Recipient:   testRecipient,
			AmountMsats: 21000,
			Comment:     "hello there",
		}, func(string) {}); err != nil {
			t.Fatalf("Run: %v", err)
		}

		parsed, err := url.Parse(submitter.fallbackURL)
		if err != nil {
			t.Fatalf("parse fallback URL: %v", err)
		}
		if _, present := parsed.Query()["comment"]; present {
			t.Errorf("unsolicited comment sent to the callback: %s", submitter.fallbackURL)
		}
	})

	t.Run("zap path", func(t *testing.T) {
		info := zapPayInfo()
		info.CommentAllowed = 0
		resolver := &fakeResolver{info: info, address: "alice@pay.example"}
		signer := &fakeSigner{}
		submitter := &fakeSubmitter{invoice: "lnbc1rest"}
		p := newTestPipeline(resolver, signer, submitter, exactDecoder(21000))

		if err := p.Run(context.Background(), Request{
			Recipient:   testRecipient,
			AmountMsats: 21000,
			Comment:     "hello there",
		}, func(string) {}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if signer.lastEvt.Content != "" {
			t.Errorf("zap request content = %q, want empty when comments are not solicited", signer.lastEvt.Content)
		}
	})
}

func TestPipelineDiscardsInvoiceWhenAbandoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	resolver := &fakeResolver{info: fallbackPayInfo(), address: "alice@pay.example"}
	// Caller goes away while the callback round trip is in flight
	submitter := &fakeSubmitter{invoice: "lnbc1rest", onSubmit: cancel}
	p := newTestPipeline(resolver, &fakeSigner{}, submitter, exactDecoder(21000))

	err := p.Run(ctx, Request{Recipient: testRecipient, AmountMsats: 21000}, func(string) {
		t.Error("invoice must be discarded after the caller abandoned the invocation")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
