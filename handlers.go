package main

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"zap-server/internal/bolt11"
	"zap-server/internal/lnurl"
	"zap-server/internal/nips"
	"zap-server/internal/zaps"
)

// Wired in main()
var (
	appConfig    *Config
	zapPipeline  *zaps.Pipeline
	relayFetcher *RelayFetcher
)

const zapFormTemplate = `<!DOCTYPE html>
<html>
<head><title>Send a zap</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Send a zap</h1>
{{if .Error}}<p style="color:#b00">{{.Error}}</p>{{end}}
<form method="post" action="/zap">
  <p><label>Recipient (npub or hex)<br><input name="pubkey" value="{{.Pubkey}}" size="70" required></label></p>
  <p><label>Event to zap (note or hex, optional)<br><input name="event" value="{{.Event}}" size="70"></label></p>
  <p><label>Amount (sats)<br><input name="amount" type="number" min="1" step="1" value="{{.Amount}}" required></label></p>
  <p><label>Comment (optional)<br><input name="comment" value="{{.Comment}}" size="70"></label></p>
  <p><label>Context relays (optional, space separated)<br><input name="relays" value="{{.Relays}}" size="70"></label></p>
  <p><button type="submit">Request invoice</button></p>
</form>
</body>
</html>`

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head><title>Invoice</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Pay {{.AmountSats}} sats</h1>
<p><img src="/zap/qr?invoice={{.Invoice}}" alt="invoice QR code" width="256" height="256"></p>
<p><a href="lightning:{{.Invoice}}">Open in wallet</a></p>
<p><code style="word-break:break-all">{{.Invoice}}</code></p>
<p><a href="/zap">Back</a></p>
</body>
</html>`

const receiptsTemplate = `<!DOCTYPE html>
<html>
<head><title>Zaps</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Zaps for {{.Note}}</h1>
<p>{{.Count}} zaps, {{.TotalSats}} sats total</p>
<ul>
{{range .Receipts}}
  <li><strong>{{.Sats}} sats</strong> from <code>{{.Sender}}</code>{{if .Comment}} &mdash; {{.Comment}}{{end}}</li>
{{end}}
</ul>
<p><a href="/zap?event={{.EventRef}}">Zap this too</a></p>
</body>
</html>`

var (
	zapFormTmpl  = template.Must(template.New("zapform").Parse(zapFormTemplate))
	invoiceTmpl  = template.Must(template.New("invoice").Parse(invoiceTemplate))
	receiptsTmpl = template.Must(template.New("receipts").Parse(receiptsTemplate))
)

type zapFormData struct {
	Pubkey  string
	Event   string
	Amount  string
	Comment string
	Relays  string
	Error   string
}

// zapFormHandler renders the zap form, optionally prefilled from query params.
func zapFormHandler(w http.ResponseWriter, r *http.Request) {
	data := zapFormData{
		Pubkey: r.URL.Query().Get("pubkey"),
		Event:  r.URL.Query().Get("event"),
		Amount: r.URL.Query().Get("amount"),
	}
	if data.Amount == "" {
		data.Amount = "100"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	zapFormTmpl.Execute(w, data)
}

// zapSubmitHandler runs the zap pipeline for a form submission and renders
// the resulting invoice.
func zapSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	data := zapFormData{
		Pubkey:  strings.TrimSpace(r.FormValue("pubkey")),
		Event:   strings.TrimSpace(r.FormValue("event")),
		Amount:  strings.TrimSpace(r.FormValue("amount")),
		Comment: r.FormValue("comment"),
		Relays:  strings.TrimSpace(r.FormValue("relays")),
	}

	renderFormError := func(msg string) {
		data.Error = msg
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		zapFormTmpl.Execute(w, data)
	}

	recipient, err := parsePubkeyParam(data.Pubkey)
	if err != nil {
		renderFormError("Invalid recipient: " + err.Error())
		return
	}

	amountSats, err := strconv.ParseInt(data.Amount, 10, 64)
	if err != nil || amountSats <= 0 {
		renderFormError("Invalid amount")
		return
	}
	amountMsats := lnurl.SatsToMsats(amountSats)

	req := zaps.Request{
		Recipient:   recipient,
		AmountMsats: amountMsats,
		Comment:     data.Comment,
	}
	req.Sources.Context = append(strings.Fields(data.Relays), appConfig.ContextRelays...)
	req.Sources.SenderWrite = GetRelaysConfig().PublishRelays

	ctx := r.Context()

	if data.Event != "" {
		eventID, err := parseEventParam(data.Event)
		if err != nil {
			renderFormError("Invalid event reference: " + err.Error())
			return
		}
		if evt := relayFetcher.FetchEventByID(ctx, eventID); evt != nil {
			req.Target = zaps.TargetFromEvent(evt)
			req.Sources.ContentRelays = evt.RelaysSeen
		} else {
			// Not found on our relays; reference it by ID anyway
			req.Target = &zaps.TargetRef{EventID: eventID}
		}
	}

	if list := fetchRelayListShared(ctx, relayFetcher, recipient); list != nil {
		req.Sources.RecipientRead = list.Read
	}

	zapRequestsTotal.Add(1)
	invoice, err := RunZapDeduplicated(ctx, zapPipeline, req)
	if err != nil {
		if errors.Is(err, zaps.ErrAborted) {
			// User declined signing: no message, back to the form
			zapAbortedTotal.Add(1)
			http.Redirect(w, r, "/zap", http.StatusSeeOther)
			return
		}
		var zapErr *zaps.Error
		if errors.As(err, &zapErr) {
			zapFailedTotal.Add(1)
			renderFormError(zapErr.UserMessage())
			return
		}
		LoggerFromContext(ctx).Error("zap pipeline error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	zapDeliveredTotal.Add(1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	invoiceTmpl.Execute(w, struct {
		Invoice    string
		AmountSats int64
	}{Invoice: invoice, AmountSats: amountSats})
}

// zapQRHandler renders an invoice as a QR code PNG.
func zapQRHandler(w http.ResponseWriter, r *http.Request) {
	invoice := r.URL.Query().Get("invoice")
	if invoice == "" || len(invoice) > 4096 {
		http.Error(w, "missing or oversized invoice", http.StatusBadRequest)
		return
	}

	// Wallets scan lightning: URIs; uppercase keeps the QR alphanumeric mode compact
	png, err := qrcode.Encode("lightning:"+strings.ToUpper(invoice), qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "could not encode QR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=300")
	w.Write(png)
}

type receiptView struct {
	Sender  string
	Sats    int64
	Comment string
}

// zapReceiptsHandler lists the kind 9735 zap receipts published for an event.
func zapReceiptsHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseEventParam(strings.TrimSpace(r.URL.Query().Get("event")))
	if err != nil {
		http.Error(w, "invalid event reference: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Receipts for addressable content reference the coordinate, so resolve
	// the form first when the event is reachable.
	target := &zaps.TargetRef{EventID: eventID}
	if evt := relayFetcher.FetchEventByID(ctx, eventID); evt != nil {
		target = zaps.TargetFromEvent(evt)
	}

	receipts := zaps.CollectReceipts(relayFetcher.FetchZapReceipts(ctx, target), bolt11.DecodeAmountMsats)

	var views []receiptView
	var totalSats int64
	for _, receipt := range receipts {
		sender := receipt.Sender
		if npub, err := nips.EncodePubkey(sender); err == nil {
			sender = npub
		}
		views = append(views, receiptView{
			Sender:  sender,
			Sats:    lnurl.MsatsToSats(receipt.AmountMsats),
			Comment: receipt.Comment,
		})
		totalSats += lnurl.MsatsToSats(receipt.AmountMsats)
	}

	note := eventID
	if encoded, err := nips.EncodeEventID(eventID); err == nil {
		note = encoded
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	receiptsTmpl.Execute(w, struct {
		Note      string
		EventRef  string
		Count     int
		TotalSats int64
		Receipts  []receiptView
	}{Note: note, EventRef: eventID, Count: len(views), TotalSats: totalSats, Receipts: views})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// parsePubkeyParam accepts a 64-char hex pubkey or an npub
func parsePubkeyParam(value string) (string, error) {
	if strings.HasPrefix(strings.ToLower(value), "npub1") {
		hrp, hexKey, err := nips.DecodeEntity(value)
		if err != nil {
			return "", err
		}
		if hrp != "npub" {
			return "", errors.New("expected an npub")
		}
		return hexKey, nil
	}
	if len(value) != 64 || !isHex(value) {
		return "", errors.New("expected 64 hex characters or an npub")
	}
	return strings.ToLower(value), nil
}

// parseEventParam accepts a 64-char hex event ID or a note
func parseEventParam(value string) (string, error) {
	if strings.HasPrefix(strings.ToLower(value), "note1") {
		hrp, hexID, err := nips.DecodeEntity(value)
		if err != nil {
			return "", err
		}
		if hrp != "note" {
			return "", errors.New("expected a note")
		}
		return hexID, nil
	}
	if len(value) != 64 || !isHex(value) {
		return "", errors.New("expected 64 hex characters or a note")
	}
	return strings.ToLower(value), nil
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
