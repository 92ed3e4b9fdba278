package signer_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/signer"
)

const testPrivateKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func sampleReceipt() signer.Receipt {
	return signer.Receipt{
		OrderID:        "o1",
		MarketID:       "m1",
		UserAddress:    "0xAbC0000000000000000000000000000000000D",
		Outcome:        domain.OutcomeYes,
		Side:           domain.Buy,
		Price:          decimal.RequireFromString("0.65"),
		Quantity:       10,
		FilledQuantity: 10,
		Status:         domain.OrderFilled,
		TradeIDs:       []string{"t1", "t2"},
		Timestamp:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSigner_SignProducesVerifiableSignature(t *testing.T) {
	s, err := signer.New(testPrivateKeyHex)
	require.NoError(t, err)

	signed, err := s.Sign(sampleReceipt())
	require.NoError(t, err)

	assert.NotEmpty(t, signed.Signature)
	assert.Equal(t, s.Address().Hex(), signed.SignerAddress)
}

func TestSigner_SignIsDeterministicForSameReceipt(t *testing.T) {
	s, err := signer.New(testPrivateKeyHex)
	require.NoError(t, err)

	r := sampleReceipt()
	first, err := s.Sign(r)
	require.NoError(t, err)
	second, err := s.Sign(r)
	require.NoError(t, err)

	assert.Equal(t, first.Signature, second.Signature)
}

func TestSigner_SignDiffersWhenReceiptDiffers(t *testing.T) {
	s, err := signer.New(testPrivateKeyHex)
	require.NoError(t, err)

	r1 := sampleReceipt()
	r2 := sampleReceipt()
	r2.FilledQuantity = 5

	s1, err := s.Sign(r1)
	require.NoError(t, err)
	s2, err := s.Sign(r2)
	require.NoError(t, err)

	assert.NotEqual(t, s1.Signature, s2.Signature)
}

func TestNew_RejectsMalformedKey(t *testing.T) {
	_, err := signer.New("not-hex")
	assert.Error(t, err)
}
