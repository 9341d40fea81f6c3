// Package payment implements the Lightning payment gate: quote
// validation, the default paying-client policy, proof construction,
// and payment verification on the expert side. BOLT-11 parsing uses
// lnd's zpay32 decoder, the same library the retrieved Lightning
// wallet code (other_examples' muun/libwallet) builds invoices with.
package payment

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/nostrask/askrelay"
)

// Invoice is one payment method's quoted invoice, matching the quote
// payload schema's {method, unit, amount, invoice} shape.
type Invoice struct {
	Method      string `json:"method"` // "lightning"
	Unit        string `json:"unit"`   // "sat"
	AmountSats  int64  `json:"amount"`
	InvoiceText string `json:"invoice"` // BOLT-11 payment request
}

// Proof is what the client publishes once it has paid: either a
// successful method/preimage pair or an error explaining why it did
// not pay.
type Proof struct {
	Method   string `json:"method,omitempty"`
	Preimage string `json:"preimage,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Wallet is the opaque payment backend: pay an invoice and learn the
// preimage, or verify that a claimed preimage actually pays a given
// invoice. Concrete wallets (LND, a custodial API, a test double) are
// callers' responsibility; askrelay bundles only an in-memory fake for
// tests.
type Wallet interface {
	Pay(ctx context.Context, invoice string) (preimage string, err error)
	VerifyPayment(ctx context.Context, invoice, preimage string) (bool, error)
}

// ValidateQuote requires that, for every Lightning invoice in the
// quote, the parsed BOLT-11 amount matches the invoice's stated
// amount. Malformed invoices and mismatches both fail with
// PaymentRejected.
func ValidateQuote(invoices []Invoice) error {
	if len(invoices) == 0 {
		return askrelay.PaymentRejected("quote carries no invoices")
	}
	for _, inv := range invoices {
		if inv.Method != "lightning" {
			continue
		}
		parsed, err := zpay32.Decode(inv.InvoiceText, &chaincfg.MainNetParams)
		if err != nil {
			return askrelay.PaymentRejected(fmt.Sprintf("malformed invoice: %v", err))
		}
		if parsed.MilliSat == nil {
			return askrelay.PaymentRejected("invoice carries no amount")
		}
		parsedSats := int64(*parsed.MilliSat / 1000)
		if parsedSats != inv.AmountSats {
			return askrelay.PaymentRejected(fmt.Sprintf(
				"invoice amount %d sats does not match quoted amount %d sats", parsedSats, inv.AmountSats))
		}
	}
	return nil
}

// DefaultOnQuote is the paying client's default on_quote policy: accept
// iff a lightning invoice exists, parses, and its amount is at or below
// maxAmountSats.
func DefaultOnQuote(invoices []Invoice, maxAmountSats int64) (bool, error) {
	for _, inv := range invoices {
		if inv.Method != "lightning" {
			continue
		}
		if _, err := zpay32.Decode(inv.InvoiceText, &chaincfg.MainNetParams); err != nil {
			return false, askrelay.PaymentRejected(fmt.Sprintf("malformed invoice: %v", err))
		}
		if inv.AmountSats > maxAmountSats {
			return false, askrelay.PaymentRejected(fmt.Sprintf(
				"invoice amount %d sats exceeds maximum %d sats", inv.AmountSats, maxAmountSats))
		}
		return true, nil
	}
	return false, askrelay.PaymentRejected("no lightning invoice in quote")
}

// DefaultOnPay delegates to the wallet to pay the first lightning
// invoice in the quote and returns the resulting Proof.
func DefaultOnPay(ctx context.Context, wallet Wallet, invoices []Invoice) (*Proof, error) {
	for _, inv := range invoices {
		if inv.Method != "lightning" {
			continue
		}
		preimage, err := wallet.Pay(ctx, inv.InvoiceText)
		if err != nil {
			return nil, askrelay.PaymentFailed("wallet payment failed", err)
		}
		return &Proof{Method: "lightning", Preimage: preimage}, nil
	}
	return nil, askrelay.PaymentRejected("no lightning invoice to pay")
}

// ErrorProof builds the {error: reason} proof a client publishes when
// it refuses to pay a quote, letting the expert terminate its state
// machine without waiting out the proof timeout.
func ErrorProof(reason string) *Proof {
	return &Proof{Error: reason}
}

// VerifyPayment is the expert-side check that a claimed preimage
// actually satisfies the invoice it quoted. It is intentionally opaque
// about mechanism: a wallet may check the preimage hash locally or ask
// a remote node.
func VerifyPayment(ctx context.Context, wallet Wallet, invoice, preimage string) error {
	ok, err := wallet.VerifyPayment(ctx, invoice, preimage)
	if err != nil {
		return askrelay.PaymentFailed("payment verification error", err)
	}
	if !ok {
		return askrelay.PaymentRejected("preimage does not satisfy invoice")
	}
	return nil
}
