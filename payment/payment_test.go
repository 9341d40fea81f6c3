package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrask/askrelay"
)

func TestValidateQuoteRejectsEmptyInvoiceList(t *testing.T) {
	err := ValidateQuote(nil)
	require.Error(t, err)
	var e *askrelay.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, askrelay.CodePaymentRejected, e.Code)
}

func TestValidateQuoteRejectsMalformedInvoice(t *testing.T) {
	err := ValidateQuote([]Invoice{{Method: "lightning", AmountSats: 100, InvoiceText: "not-a-real-invoice"}})
	require.Error(t, err)
	var e *askrelay.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, askrelay.CodePaymentRejected, e.Code)
}

func TestValidateQuoteSkipsNonLightningMethods(t *testing.T) {
	err := ValidateQuote([]Invoice{{Method: "on-chain", AmountSats: 100, InvoiceText: "bc1qirrelevant"}})
	assert.NoError(t, err)
}

func TestDefaultOnQuoteRejectsMalformedInvoice(t *testing.T) {
	ok, err := DefaultOnQuote([]Invoice{{Method: "lightning", AmountSats: 100, InvoiceText: "garbage"}}, 1000)
	assert.False(t, ok)
	require.Error(t, err)
}

func TestDefaultOnQuoteRejectsWhenNoLightningInvoice(t *testing.T) {
	ok, err := DefaultOnQuote([]Invoice{{Method: "on-chain", AmountSats: 100}}, 1000)
	assert.False(t, ok)
	require.Error(t, err)
}

func TestMemoryWalletPayAndVerifyRoundTrip(t *testing.T) {
	w := NewMemoryWallet()
	ctx := context.Background()

	preimage, err := w.Pay(ctx, "lnbc100n1...")
	require.NoError(t, err)
	assert.NotEmpty(t, preimage)

	ok, err := w.VerifyPayment(ctx, "lnbc100n1...", preimage)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.VerifyPayment(ctx, "lnbc100n1...", "wrong-preimage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorProofCarriesReason(t *testing.T) {
	p := ErrorProof("insufficient balance")
	assert.Equal(t, "insufficient balance", p.Error)
	assert.Empty(t, p.Preimage)
}
